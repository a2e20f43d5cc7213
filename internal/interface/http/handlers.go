package http

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/application/query"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// healthCheckTimeout bounds every dependency check.
const healthCheckTimeout = 2 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "healthy", Uptime: s.Uptime().Truncate(time.Second).String()}
	code := http.StatusOK

	if len(s.deps.Checks) > 0 {
		names := make([]string, 0, len(s.deps.Checks))
		for name := range s.deps.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		status.Checks = make(map[string]string, len(names))
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.deps.Checks[name](ctx)
			cancel()
			if err != nil {
				status.Checks[name] = err.Error()
				status.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[name] = "ok"
		}
	}

	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & RANK
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/guilds/{guild}/leaderboard.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	res, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), query.GetLeaderboardQuery{
		GuildID: r.PathValue("guild"),
		Limit:   limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res.Board)
}

// handleGetRank handles GET /api/v1/guilds/{guild}/members/{user}/rank.
func (s *Server) handleGetRank(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetRankHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Rank handler not configured")
		return
	}

	res, err := s.deps.GetRankHandler.Handle(r.Context(), query.GetRankQuery{
		GuildID:         r.PathValue("guild"),
		CallerID:        r.PathValue("user"),
		IncludePosition: true,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "The progress store is unavailable")
	}
}
