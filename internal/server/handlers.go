package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/soroe/internal/models"
	"github.com/hyperjump/soroe/internal/syncer"
)

// handleSync triggers an incremental cycle. With ?wait=true the cycle runs in
// the request and its stats are returned; otherwise the trigger is enqueued
// and 202 returned. A cycle already in flight yields 409.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, models.TriggerIncremental)
}

// handleRebuild triggers a full rebuild with the same wait semantics as sync.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, models.TriggerRebuild)
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request, trigger models.Trigger) {
	if r.URL.Query().Get("wait") == "true" {
		var stats *models.SyncRunStats
		var err error
		if trigger == models.TriggerRebuild {
			stats, err = s.orchestrator.RunFullRebuild(r.Context())
		} else {
			stats, err = s.orchestrator.RunIncrementalSync(r.Context())
		}
		if errors.Is(err, syncer.ErrCycleInProgress) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			s.logger.Error("sync cycle failed", zap.String("trigger", string(trigger)), zap.Error(err))
			s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error": err.Error(),
				"stats": stats,
			})
			return
		}
		s.respondJSON(w, http.StatusOK, stats)
		return
	}

	if !s.queue.Enqueue(trigger) {
		s.respondError(w, http.StatusTooManyRequests, "trigger queue full")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"trigger": string(trigger),
		"status":  "queued",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"phase":   string(s.orchestrator.Phase()),
		"running": s.orchestrator.Running(),
		"tracker": s.tracker.Summary(),
	}
	if last := s.orchestrator.LastRun(); last != nil {
		resp["last_run"] = last
	}
	if stats, err := s.index.Stats(r.Context()); err == nil {
		resp["index"] = stats
	} else {
		s.logger.Debug("index stats unavailable", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs": s.tracker.History(),
	})
}

// handleHealth probes external dependencies. Any failing probe degrades the
// response to 503 so load balancers stop routing triggers here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.probes))
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	resp := map[string]interface{}{
		"status":  "ok",
		"tracker": s.tracker.Summary(),
	}
	if status != http.StatusOK {
		resp["status"] = "degraded"
	}
	if len(checks) > 0 {
		resp["checks"] = checks
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
