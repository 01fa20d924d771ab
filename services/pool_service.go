package services

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DBYGuy/truthforge/consensus"
	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/sybil"
)

// PoolServiceConfig contains deployment settings for the pool service.
type PoolServiceConfig struct {
	// DefaultPoolTTL is the voting window granted to pools created
	// without an explicit end time.
	DefaultPoolTTL time.Duration `yaml:"default_pool_ttl"`

	// SweepInterval is how often the expiry sweeper scans for pools past
	// their end time.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultPoolServiceConfig returns the reference deployment settings.
func DefaultPoolServiceConfig() *PoolServiceConfig {
	return &PoolServiceConfig{
		DefaultPoolTTL: 24 * time.Hour,
		SweepInterval:  10 * time.Second,
	}
}

// PoolService is the claim-pool factory and lifecycle driver around the
// consensus engine. It mints pool ids, forwards operations with wall
// clock time, and runs the background sweeper that expires pools whose
// end time has passed.
type PoolService struct {
	config *PoolServiceConfig
	engine *consensus.Engine
	store  PoolStore
	clock  func() time.Time
	log    *slog.Logger
}

// NewPoolService creates a pool service over an engine.
func NewPoolService(config *PoolServiceConfig, engine *consensus.Engine, log *slog.Logger) *PoolService {
	if config == nil {
		config = DefaultPoolServiceConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &PoolService{
		config: config,
		engine: engine,
		clock:  time.Now,
		log:    log.With("component", "pool-service"),
	}
}

// Engine exposes the underlying engine for administrative surfaces.
func (s *PoolService) Engine() *consensus.Engine {
	return s.engine
}

// AttachStore restores every stored pool into the engine and enables
// write-through persistence: from here on each accepted mutation saves
// the pool's record back to the store.
func (s *PoolService) AttachStore(ctx context.Context, store PoolStore) error {
	ids, err := store.ListPools(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := store.LoadPool(ctx, id)
		if err != nil {
			return err
		}
		if err := s.engine.Restore(rec); err != nil {
			return err
		}
	}
	s.store = store
	s.log.Info("pool store attached", "restored_pools", len(ids))
	return nil
}

// persist writes a pool's current record back to the store. Persistence
// is write-behind relative to the ledger: a failed save is logged and
// retried on the pool's next mutation or sweep.
func (s *PoolService) persist(ctx context.Context, pool crypto.PoolID) {
	if s.store == nil {
		return
	}
	rec, err := s.engine.Export(pool)
	if err != nil {
		s.log.Error("pool export failed", "pool", string(pool), "err", err)
		return
	}
	if err := s.store.SavePool(ctx, rec); err != nil {
		s.log.Error("pool save failed", "pool", string(pool), "err", err)
	}
}

// NewGuard assembles the sybil guard for a deployment: a Redis-backed
// limiter when a client is provided (shared across instances), otherwise
// an in-process sliding window, or no limiting at all when max ops is
// zero.
func NewGuard(cfg *protocol.Config, registry sybil.Registry, redisClient *redis.Client, log *slog.Logger) *sybil.Guard {
	var limiter sybil.RateLimiter = sybil.NopLimiter{}
	if cfg.RateMaxOps > 0 {
		window := sybil.WindowConfig{Window: cfg.RateWindow, MaxOps: cfg.RateMaxOps}
		if redisClient != nil {
			limiter = sybil.NewRedisLimiter(redisClient, window)
		} else {
			limiter = sybil.NewMemoryLimiter(window)
		}
	}
	return sybil.NewGuard(registry, limiter, log)
}

// mintPoolID derives a pool id from the claim fingerprint plus a random
// suffix, so repeated pools over the same claim remain distinguishable.
func mintPoolID(claim crypto.ClaimHash) crypto.PoolID {
	return crypto.PoolID(claim.String()[:16] + "-" + uuid.NewString()[:8])
}

// CreatePool opens a new pool for a claim. A zero ttl falls back to the
// configured default.
func (s *PoolService) CreatePool(claim crypto.ClaimHash, ttl time.Duration) (*consensus.Snapshot, error) {
	if ttl <= 0 {
		ttl = s.config.DefaultPoolTTL
	}
	now := s.clock()
	snap, err := s.engine.CreatePool(now, mintPoolID(claim), claim, now.Add(ttl), nil)
	if err != nil {
		return nil, err
	}
	s.persist(context.Background(), snap.ID)
	return snap, nil
}

// CastVote forwards a vote with the current wall clock time.
func (s *PoolService) CastVote(ctx context.Context, pool crypto.PoolID, req *protocol.VoteRequest) (*consensus.Vote, error) {
	vote, err := s.engine.CastVote(ctx, s.clock(), pool, req)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, pool)
	return vote, nil
}

// EarlyResolve forwards a signed resolution signal.
func (s *PoolService) EarlyResolve(ctx context.Context, pool crypto.PoolID,
	signed *protocol.Signed[protocol.ResolutionSignal]) (*consensus.Snapshot, error) {
	snap, err := s.engine.EarlyResolve(ctx, s.clock(), pool, signed)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, pool)
	return snap, nil
}

// Expire closes a pool past its end time.
func (s *PoolService) Expire(ctx context.Context, pool crypto.PoolID) (*consensus.Snapshot, error) {
	snap, err := s.engine.Expire(ctx, s.clock(), pool)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, pool)
	return snap, nil
}

// Claim pays out a voter's entitlement.
func (s *PoolService) Claim(ctx context.Context, pool crypto.PoolID, voter crypto.VoterID) (*big.Int, error) {
	payout, err := s.engine.Claim(ctx, s.clock(), pool, voter)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, pool)
	return payout, nil
}

// RunExpirySweeper expires overdue pools until the context is canceled.
// Expiry stays callable through the API as well; the sweeper only
// guarantees pools do not linger open when nobody asks.
func (s *PoolService) RunExpirySweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *PoolService) sweepExpired(ctx context.Context) {
	now := s.clock()
	for _, id := range s.engine.Pools() {
		snap, err := s.engine.Snapshot(id)
		if err != nil || snap.State != "open" || now.Before(snap.EndTime) {
			continue
		}
		if _, err := s.engine.Expire(ctx, now, id); err != nil {
			// Lost a race with an explicit expiry or resolution; harmless.
			s.log.Debug("sweep expire skipped", "pool", string(id), "err", err)
			continue
		}
		s.persist(ctx, id)
	}
}
