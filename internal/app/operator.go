package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"xrpl-lp-bot/internal/config"
	"xrpl-lp-bot/internal/risk"
	"xrpl-lp-bot/internal/state"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const operatorAuditPrefix = "ops:audit:"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type operatorAuditEvent struct {
	Time         time.Time `json:"time"`
	Action       string    `json:"action"`
	Remote       string    `json:"remote"`
	PausedBefore bool      `json:"paused_before"`
	PausedAfter  bool      `json:"paused_after"`
	AlertID      string    `json:"alert_id,omitempty"`
}

type statusResponse struct {
	Connection  string            `json:"connection"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Paused      bool              `json:"paused"`
	Halted      bool              `json:"halted"`
	LiveTrading bool              `json:"live_trading"`
	Account     risk.Account      `json:"account"`
	Window      risk.VolumeWindow `json:"window"`
	Limits      config.RiskConfig `json:"limits"`
	Completed   uint64            `json:"cycles_completed"`
	Skipped     uint64            `json:"cycles_skipped"`
	LastCycle   *CycleResult      `json:"last_cycle,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
}

// Router serves the operator API.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.logRequests)
	router.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/alerts", a.handleAlerts).Methods(http.MethodGet)
	router.HandleFunc("/alerts/{id}/ack", a.handleAcknowledge).Methods(http.MethodPost)
	router.HandleFunc("/pause", a.handlePause(true)).Methods(http.MethodPost)
	router.HandleFunc("/resume", a.handlePause(false)).Methods(http.MethodPost)
	if a.prom != nil {
		router.Handle(a.cfg.Metrics.Path, a.prom.Handler()).Methods(http.MethodGet)
	}
	router.Handle("/ws", a.feed)
	return router
}

func (a *App) startHTTP() {
	addr := a.cfg.HTTP.Address
	if addr == "" {
		return
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("operator http listening", zap.String("address", addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("operator http failed", zap.Error(err))
		}
	}()
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path == "/ws" {
			return
		}
		a.log.Debug("operator request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

func (a *App) status() statusResponse {
	last, lastErr := a.lastCycle()
	resp := statusResponse{
		Connection:  a.ledger.State().String(),
		Paused:      a.paused.Load(),
		Halted:      a.risk.Halted(),
		LiveTrading: a.risk.LiveTrading(),
		Account:     a.risk.Account(),
		Window:      a.risk.Window(),
		Limits:      a.risk.Limits(),
		Completed:   a.completed.Load(),
		Skipped:     a.skipped.Load(),
		LastCycle:   last,
		LastError:   lastErr,
	}
	if endpoint, ok := a.ledger.Active(); ok {
		resp.Endpoint = endpoint.Address
	}
	return resp
}

func (a *App) handleAlerts(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("pending") == "true"
	out := make([]risk.Alert, 0)
	for _, alert := range a.risk.Alerts() {
		if pendingOnly && alert.Acknowledged {
			continue
		}
		out = append(out, alert)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, err := a.risk.AcknowledgeAlert(id)
	if errors.Is(err, risk.ErrAlertNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	paused := a.paused.Load()
	a.audit(r.Context(), operatorAuditEvent{
		Action:       "ack",
		Remote:       r.RemoteAddr,
		PausedBefore: paused,
		PausedAfter:  paused,
		AlertID:      id,
	})
	writeJSON(w, http.StatusOK, alert)
}

func (a *App) handlePause(paused bool) http.HandlerFunc {
	action := "resume"
	if paused {
		action = "pause"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		before := a.paused.Swap(paused)
		a.audit(r.Context(), operatorAuditEvent{
			Action:       action,
			Remote:       r.RemoteAddr,
			PausedBefore: before,
			PausedAfter:  paused,
		})
		if before != paused {
			a.log.Info("operator "+action, zap.String("remote", r.RemoteAddr))
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

func (a *App) audit(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	event.Time = a.now()
	key := fmt.Sprintf("%s%d", operatorAuditPrefix, event.Time.UnixNano())
	if err := state.Save(ctx, a.store, key, event); err != nil {
		a.log.Warn("operator audit failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
