package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DBYGuy/truthforge/consensus"
	"github.com/DBYGuy/truthforge/crypto"
	"github.com/DBYGuy/truthforge/protocol"
	"github.com/DBYGuy/truthforge/scoring"
	"github.com/DBYGuy/truthforge/shaping"
)

// HTTPServer exposes the pool service over HTTP.
type HTTPServer struct {
	service *PoolService
	config  *protocol.Config
	log     *slog.Logger
}

// NewHTTPServer creates the HTTP surface over a pool service.
func NewHTTPServer(service *PoolService, config *protocol.Config, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPServer{
		service: service,
		config:  config,
		log:     log.With("component", "http-server"),
	}
}

// RegisterRoutes mounts the public API routes.
func (s *HTTPServer) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/pools", s.handleCreatePool)
	r.Get("/api/v1/pools", s.handleListPools)
	r.Get("/api/v1/pools/{pool}", s.handleGetPool)
	r.Post("/api/v1/pools/{pool}/votes", s.handleCastVote)
	r.Post("/api/v1/pools/{pool}/resolve", s.handleEarlyResolve)
	r.Post("/api/v1/pools/{pool}/expire", s.handleExpire)
	r.Post("/api/v1/pools/{pool}/claims", s.handleClaim)
	r.Get("/api/v1/pools/{pool}/entitlement", s.handleEntitlement)
	r.Get("/api/v1/bias", s.handleBiasPreview)
}

// RegisterAdminRoutes mounts the administrative routes. Callers are
// expected to mount these behind their own authentication.
func (s *HTTPServer) RegisterAdminRoutes(r chi.Router) {
	r.Post("/admin/pause", s.handlePause)
	r.Post("/admin/resume", s.handleResume)
	r.Post("/admin/shaping", s.handleUpgradeShaping)
}

// writeError maps the ledger error taxonomy onto HTTP status codes.
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, consensus.ErrReplay):
		status = http.StatusConflict
	case errors.Is(err, consensus.ErrResourceExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, consensus.ErrState):
		status = http.StatusConflict
	case errors.Is(err, consensus.ErrCoefficientsLocked):
		status = http.StatusConflict
	// Custody failures carry ErrValidation too, so the funds check must
	// come first.
	case errors.Is(err, ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, consensus.ErrValidation):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *HTTPServer) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	claim, err := crypto.NewClaimHashFromString(req.Claim)
	if err != nil {
		http.Error(w, "invalid claim hash", http.StatusBadRequest)
		return
	}

	snap, err := s.service.CreatePool(claim, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *HTTPServer) handleListPools(w http.ResponseWriter, r *http.Request) {
	ids := s.service.Engine().Pools()
	resp := &PoolListResponse{Pools: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.Pools = append(resp.Pools, string(id))
	}
	writeJSON(w, resp)
}

func (s *HTTPServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Engine().Snapshot(crypto.PoolID(chi.URLParam(r, "pool")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *HTTPServer) handleCastVote(w http.ResponseWriter, r *http.Request) {
	poolID := crypto.PoolID(chi.URLParam(r, "pool"))

	var sub VoteSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	credential, err := crypto.NewCredentialHashFromString(sub.Credential)
	if err != nil {
		http.Error(w, "invalid credential hash", http.StatusBadRequest)
		return
	}

	stake, ok := new(big.Int).SetString(sub.Stake, 10)
	if !ok {
		http.Error(w, "invalid stake", http.StatusBadRequest)
		return
	}

	snap, err := s.service.Engine().Snapshot(poolID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	claim, err := crypto.NewClaimHashFromString(snap.Claim)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	vote, err := s.service.CastVote(r.Context(), poolID, &protocol.VoteRequest{
		Voter:      crypto.VoterID(sub.Voter),
		Side:       sub.Side,
		Stake:      stake,
		Credential: credential,
		Claim:      claim,
		Tier:       scoring.Tier(sub.Tier),
		Relevance:  sub.Relevance,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, &VoteResponse{
		Pool:        string(poolID),
		Voter:       sub.Voter,
		Side:        vote.Side,
		Stake:       vote.Stake.String(),
		Bias:        vote.Bias,
		Weight:      vote.Weight,
		Gravity:     vote.Gravity,
		BiasFlagged: vote.BiasFlagged,
		CastAt:      vote.CastAt,
	})
}

func (s *HTTPServer) handleEarlyResolve(w http.ResponseWriter, r *http.Request) {
	poolID := crypto.PoolID(chi.URLParam(r, "pool"))

	signed, err := protocol.DecodeMessage[protocol.Signed[protocol.ResolutionSignal]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.service.EarlyResolve(r.Context(), poolID, signed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *HTTPServer) handleExpire(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Expire(r.Context(), crypto.PoolID(chi.URLParam(r, "pool")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *HTTPServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	poolID := crypto.PoolID(chi.URLParam(r, "pool"))

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payout, err := s.service.Claim(r.Context(), poolID, crypto.VoterID(req.Voter))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, &ClaimResponse{
		Pool:   string(poolID),
		Voter:  req.Voter,
		Payout: payout.String(),
	})
}

func (s *HTTPServer) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	poolID := crypto.PoolID(chi.URLParam(r, "pool"))
	voter := crypto.VoterID(r.URL.Query().Get("voter"))

	amount, err := s.service.Engine().Entitlement(poolID, voter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, &EntitlementResponse{
		Pool:        string(poolID),
		Voter:       string(voter),
		Entitlement: amount.String(),
	})
}

func (s *HTTPServer) handleBiasPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	credential, err := crypto.NewCredentialHashFromString(q.Get("credential"))
	if err != nil {
		http.Error(w, "invalid credential hash", http.StatusBadRequest)
		return
	}
	claim, err := crypto.NewClaimHashFromString(q.Get("claim"))
	if err != nil {
		http.Error(w, "invalid claim hash", http.StatusBadRequest)
		return
	}

	bias := s.service.Engine().BiasPreview(credential, claim,
		crypto.VoterID(q.Get("voter")), crypto.PoolID(q.Get("pool")))

	writeJSON(w, &BiasPreviewResponse{
		Bias:        bias,
		BiasFlagged: scoring.BiasFlagged(bias, s.config.FlagThreshold),
	})
}

func (s *HTTPServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.service.Engine().Pause()
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.service.Engine().Resume()
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) handleUpgradeShaping(w http.ResponseWriter, r *http.Request) {
	var req ShapingUpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(req.Knots) != shaping.Intervals+1 {
		http.Error(w, "shaping table needs exactly 11 knots", http.StatusBadRequest)
		return
	}
	var knots [shaping.Intervals + 1]int64
	copy(knots[:], req.Knots)

	table, err := shaping.NewTable(req.Version, knots)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.service.Engine().UpgradeShaping(table); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
