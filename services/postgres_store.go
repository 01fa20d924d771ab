package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/DBYGuy/truthforge/consensus"
	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/sybil"
)

// PostgresStore persists the durable facts of the protocol: consumed
// nullifiers (which must survive restarts or credentials could vote
// twice), pool records with their votes, and the accepted-transition
// event journal. It implements sybil.Registry, PoolStore and
// consensus.EventSink.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens the database, verifies connectivity and runs
// migrations.
func NewPostgresStore(config *PostgresConfig, log *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	store := &PostgresStore{db: db, log: log.With("component", "postgres-store")}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS consumed_nullifiers (
		nullifier VARCHAR(64) PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id UUID PRIMARY KEY,
		event_type VARCHAR(32) NOT NULL,
		pool VARCHAR(128) NOT NULL,
		voter VARCHAR(128),
		side SMALLINT NOT NULL,
		stake NUMERIC(78,0),
		bias BIGINT NOT NULL DEFAULT 0,
		weight BIGINT NOT NULL DEFAULT 0,
		gravity BIGINT NOT NULL DEFAULT 0,
		pool_state VARCHAR(16) NOT NULL,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_events_pool ON ledger_events(pool);
	CREATE INDEX IF NOT EXISTS idx_events_occurred ON ledger_events(occurred_at);

	CREATE TABLE IF NOT EXISTS pools (
		id VARCHAR(128) PRIMARY KEY,
		claim VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		end_time TIMESTAMP WITH TIME ZONE NOT NULL,
		min_stake NUMERIC(78,0) NOT NULL,
		weights JSONB NOT NULL,
		state SMALLINT NOT NULL,
		close_cause SMALLINT NOT NULL,
		winner SMALLINT NOT NULL,
		total_claimed NUMERIC(78,0) NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS pool_votes (
		pool VARCHAR(128) NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		voter VARCHAR(128) NOT NULL,
		side SMALLINT NOT NULL,
		stake NUMERIC(78,0) NOT NULL,
		nullifier VARCHAR(64) NOT NULL,
		bias BIGINT NOT NULL,
		weight BIGINT NOT NULL,
		gravity BIGINT NOT NULL,
		bias_flagged BOOLEAN NOT NULL,
		claimed BOOLEAN NOT NULL,
		cast_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (pool, voter)
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Register consumes both nullifiers atomically. Either both rows insert
// in one transaction, or the transaction rolls back and ErrReplay is
// returned; a restart can never observe a half-consumed pair.
func (s *PostgresStore) Register(nullifier, domainNullifier crypto.Nullifier) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO consumed_nullifiers (nullifier) VALUES ($1) ON CONFLICT DO NOTHING`
	for _, n := range []crypto.Nullifier{nullifier, domainNullifier} {
		res, err := tx.ExecContext(ctx, insert, n.String())
		if err != nil {
			return fmt.Errorf("insert nullifier: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert nullifier: %w", err)
		}
		if affected == 0 {
			return sybil.ErrReplay
		}
	}

	return tx.Commit()
}

// Contains reports whether a nullifier has been consumed.
func (s *PostgresStore) Contains(n crypto.Nullifier) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM consumed_nullifiers WHERE nullifier = $1)`,
		n.String()).Scan(&exists)
	if err != nil {
		s.log.Error("nullifier lookup failed", "err", err)
		// Fail closed: an unreachable registry must not admit votes.
		return true
	}
	return exists
}

// Emit journals one accepted transition. Events are observational; a
// failed insert is logged, never propagated into the ledger operation.
func (s *PostgresStore) Emit(ctx context.Context, event *consensus.Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stake := "0"
	if event.Stake != nil {
		stake = event.Stake.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events
			(id, event_type, pool, voter, side, stake, bias, weight, gravity, pool_state, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID,
		string(event.Type),
		string(event.Pool),
		string(event.Voter),
		int(event.Side),
		stake,
		event.Bias,
		event.Weight,
		event.Gravity,
		event.State,
		event.At,
	)
	if err != nil {
		s.log.Error("event journal insert failed", "event_id", event.ID, "err", err)
	}
}

// RecentEvents returns the newest journaled events for a pool.
func (s *PostgresStore) RecentEvents(ctx context.Context, pool crypto.PoolID, limit int) ([]*consensus.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, pool, voter, side, stake, bias, weight, gravity, pool_state, occurred_at
		FROM ledger_events WHERE pool = $1
		ORDER BY occurred_at DESC LIMIT $2`,
		string(pool), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*consensus.Event
	for rows.Next() {
		var (
			ev    consensus.Event
			pool  string
			voter sql.NullString
			side  int
			stake string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &pool, &voter, &side, &stake,
			&ev.Bias, &ev.Weight, &ev.Gravity, &ev.State, &ev.At); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ev.Pool = crypto.PoolID(pool)
		ev.Voter = crypto.VoterID(voter.String)
		ev.Side = protocolSide(side)
		ev.Stake, _ = newBigInt(stake)
		events = append(events, &ev)
	}

	return events, rows.Err()
}

// SavePool upserts a pool record and its votes in one transaction.
// Votes never leave a pool, so rows are only ever inserted or updated.
func (s *PostgresStore) SavePool(ctx context.Context, rec *consensus.PoolRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	weights, err := json.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("encoding weight table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pools
			(id, claim, created_at, end_time, min_stake, weights, state, close_cause, winner, total_claimed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			close_cause = EXCLUDED.close_cause,
			winner = EXCLUDED.winner,
			total_claimed = EXCLUDED.total_claimed,
			updated_at = NOW()`,
		string(rec.ID),
		rec.Claim.String(),
		rec.CreatedAt,
		rec.EndTime,
		rec.MinStake.String(),
		weights,
		int(rec.State),
		int(rec.CloseCause),
		int(rec.Winner),
		rec.TotalClaimed.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}

	const upsertVote = `
		INSERT INTO pool_votes
			(pool, voter, side, stake, nullifier, bias, weight, gravity, bias_flagged, claimed, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pool, voter) DO UPDATE SET claimed = EXCLUDED.claimed`
	for i := range rec.Votes {
		v := &rec.Votes[i]
		if _, err := tx.ExecContext(ctx, upsertVote,
			string(rec.ID), string(v.Voter), int(v.Side), v.Stake.String(), v.Nullifier,
			v.Bias, v.Weight, v.Gravity, v.BiasFlagged, v.Claimed, v.CastAt,
		); err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}
	}

	return tx.Commit()
}

// LoadPool reads one pool record with its votes.
func (s *PostgresStore) LoadPool(ctx context.Context, id crypto.PoolID) (*consensus.PoolRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		rec          consensus.PoolRecord
		claim        string
		minStake     string
		weights      []byte
		state        int
		cause        int
		winner       int
		totalClaimed string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, claim, created_at, end_time, min_stake, weights, state, close_cause, winner, total_claimed
		FROM pools WHERE id = $1`, string(id)).Scan(
		&rec.ID, &claim, &rec.CreatedAt, &rec.EndTime, &minStake,
		&weights, &state, &cause, &winner, &totalClaimed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading pool: %w", err)
	}

	if rec.Claim, err = crypto.NewClaimHashFromString(claim); err != nil {
		return nil, fmt.Errorf("decoding claim hash: %w", err)
	}
	if err := json.Unmarshal(weights, &rec.Weights); err != nil {
		return nil, fmt.Errorf("decoding weight table: %w", err)
	}
	var ok bool
	if rec.MinStake, ok = newBigInt(minStake); !ok {
		return nil, fmt.Errorf("malformed min stake %q", minStake)
	}
	if rec.TotalClaimed, ok = newBigInt(totalClaimed); !ok {
		return nil, fmt.Errorf("malformed claimed total %q", totalClaimed)
	}
	rec.State = consensus.State(state)
	rec.CloseCause = consensus.CloseCause(cause)
	rec.Winner = protocolSide(winner)

	rows, err := s.db.QueryContext(ctx, `
		SELECT voter, side, stake, nullifier, bias, weight, gravity, bias_flagged, claimed, cast_at
		FROM pool_votes WHERE pool = $1
		ORDER BY cast_at, voter`, string(id))
	if err != nil {
		return nil, fmt.Errorf("loading votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v     consensus.VoteRecord
			voter string
			side  int
			stake string
		)
		if err := rows.Scan(&voter, &side, &stake, &v.Nullifier,
			&v.Bias, &v.Weight, &v.Gravity, &v.BiasFlagged, &v.Claimed, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scanning vote: %w", err)
		}
		v.Voter = crypto.VoterID(voter)
		v.Side = protocolSide(side)
		if v.Stake, ok = newBigInt(stake); !ok {
			return nil, fmt.Errorf("malformed stake %q for voter %s", stake, voter)
		}
		rec.Votes = append(rec.Votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListPools returns every stored pool id.
func (s *PostgresStore) ListPools(ctx context.Context) ([]crypto.PoolID, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM pools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []crypto.PoolID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, crypto.PoolID(id))
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
