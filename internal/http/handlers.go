package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"agfdash/internal/core"
	applog "agfdash/internal/log"
	"agfdash/internal/middleware/auth"
	"agfdash/internal/store"
)

// handleDashData builds the dashboard for the requested entity. The entity
// comes from the query, or from the bearer token when the query omits it.
func (s *Server) handleDashData(w http.ResponseWriter, r *http.Request) {
	entityID := entityParam(r)
	if entityID == "" {
		entityID, _ = auth.EntityFromContext(r.Context())
	}
	if entityID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, core.ErrMissingEntityID.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.options.RequestTimeout)
	defer cancel()

	res, err := s.reports.Build(ctx, entityID)
	if err != nil {
		s.writeBuildError(ctx, w, entityID, err)
		return
	}

	d := res.Payload.Diagnostics
	s.structured.LogReportServed(ctx, res.RunID, res.EntityID, d.Records.Cells, d.Dropped.Total())
	w.Header().Set("X-Run-ID", res.RunID)
	writeJSON(w, http.StatusOK, res.Payload)
}

// writeBuildError maps pipeline failures: bad input is 400, a failed remote
// fetch is 502 and anything else is 500. No partial payload is returned.
func (s *Server) writeBuildError(ctx context.Context, w http.ResponseWriter, entityID string, err error) {
	fields := applog.NewFields().WithRun("", entityID)

	var rfe *store.RemoteFetchError
	switch {
	case errors.Is(err, core.ErrMissingEntityID):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.As(err, &rfe):
		s.structured.LogError(ctx, "Remote fetch failed", err, applog.ComponentStore, applog.OpFetch,
			fields.WithRemote(rfe.Collection, rfe.Status).WithErrorType(applog.ErrorTypeRemote))
		writeError(w, http.StatusBadGateway, codeRemoteFetch,
			fmt.Sprintf("fetch %s failed with status %d", rfe.Collection, rfe.Status))
	default:
		errType := applog.ErrorTypeInternal
		if errors.Is(err, context.DeadlineExceeded) {
			errType = applog.ErrorTypeTimeout
		}
		s.structured.LogError(ctx, "Report build failed", err, applog.ComponentReport, applog.OpBuild,
			fields.WithErrorType(errType))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to build report")
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs the configured dependency checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "shutting_down"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.options.ReadyChecks))
	for name := range s.options.ReadyChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, httpStatus := "ready", http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.options.ReadyChecks[name](ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
