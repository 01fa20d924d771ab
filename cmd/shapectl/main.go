// Command shapectl inspects bias shaping coefficient tables.
//
// Subcommands:
//
//	shapectl inspect [--knots=0,5,10,...]   validate a table and print its intervals
//	shapectl preview [--samples=100000]     sample the bias distribution over the entropy domain
//
// With no knots the built-in default table is used.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/DBYGuy/truthforge/scoring"
	"github.com/DBYGuy/truthforge/shaping"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = runInspect(os.Args[2:])
	case "preview":
		err = runPreview(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: shapectl <inspect|preview> [flags]")
}

func loadTable(knotsFlag string, version int) (*shaping.Table, error) {
	if knotsFlag == "" {
		return shaping.DefaultTable(), nil
	}

	parts := strings.Split(knotsFlag, ",")
	if len(parts) != shaping.Intervals+1 {
		return nil, fmt.Errorf("need exactly %d knots, got %d", shaping.Intervals+1, len(parts))
	}

	var knots [shaping.Intervals + 1]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("knot %d: %w", i, err)
		}
		knots[i] = v
	}

	return shaping.NewTable(version, knots)
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	knotsFlag := fs.String("knots", "", "Comma-separated knot values (11 entries)")
	version := fs.Int("version", 1, "Table version")
	fs.Parse(args)

	table, err := loadTable(*knotsFlag, *version)
	if err != nil {
		return err
	}

	knots := table.Knots()
	fmt.Printf("version: %d\n", table.Version())
	fmt.Printf("domain:  [0, %d)\n", uint64(shaping.Domain))
	for i := 0; i < shaping.Intervals; i++ {
		fmt.Printf("interval %2d: bias %3d -> %3d\n", i, knots[i], knots[i+1])
	}
	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	knotsFlag := fs.String("knots", "", "Comma-separated knot values (11 entries)")
	version := fs.Int("version", 1, "Table version")
	samples := fs.Uint64("samples", 100000, "Number of evenly spaced entropy samples")
	threshold := fs.Int64("flag-threshold", scoring.DefaultFlagThreshold, "Bias flag threshold")
	fs.Parse(args)

	table, err := loadTable(*knotsFlag, *version)
	if err != nil {
		return err
	}
	if *samples == 0 {
		return fmt.Errorf("samples must be positive")
	}

	stride := uint64(shaping.Domain) / *samples
	if stride == 0 {
		stride = 1
	}

	var (
		count   uint64
		sum     int64
		flagged uint64
		buckets [11]uint64
	)
	for u := uint64(0); u < uint64(shaping.Domain); u += stride {
		bias := table.Shape(u)
		sum += bias
		count++
		if scoring.BiasFlagged(bias, *threshold) {
			flagged++
		}
		buckets[bias/10]++
	}

	fmt.Printf("samples:  %d\n", count)
	fmt.Printf("mean:     %.2f\n", float64(sum)/float64(count))
	fmt.Printf("flagged:  %.2f%% (bias > %d)\n", 100*float64(flagged)/float64(count), *threshold)
	fmt.Println("histogram:")
	for i, b := range buckets {
		lo, hi := i*10, i*10+9
		if i == 10 {
			hi = 100
		}
		fmt.Printf("  %3d-%3d: %6.2f%%\n", lo, hi, 100*float64(b)/float64(count))
	}
	return nil
}
