// Package common provides shared constants for TruthForge components.
package common

// PackageName identifies the project in metrics and logs.
const PackageName = "truthforge"

// Version is the reported build version. Overridden at build time via
// -ldflags "-X github.com/DBYGuy/truthforge/common.Version=...".
var Version = "dev"
