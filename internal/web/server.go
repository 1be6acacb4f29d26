package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/goods-scheduler/internal/engine"
)

// Server exposes a read-only JSON view of the engine: the timetable snapshot
// and the last probe result. It subscribes to nothing itself; everything it
// shows comes from engine snapshot accessors, so live timetable state is
// never iterated directly.
type Server struct {
	Engine *engine.Engine
	Log    logrus.FieldLogger
}

type planRow struct {
	ID         string `json:"id"`
	AccountUID string `json:"account_uid"`
	GoodName   string `json:"good_name"`
	FireAt     string `json:"fire_at"`
	State      string `json:"state"`
}

type pingRow struct {
	State     string  `json:"state"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
	CheckedAt string  `json:"checked_at,omitempty"`
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/plans", s.handlePlans)
	mux.HandleFunc("/ping", s.handlePing)
	return mux
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	loc := s.Engine.Location()
	views := s.Engine.Snapshot()
	rows := make([]planRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, planRow{
			ID:         v.Plan.ID.String(),
			AccountUID: v.Plan.Account.UID,
			GoodName:   v.Plan.Good.Name,
			FireAt:     v.FireAt.In(loc).Format(time.RFC3339),
			State:      string(v.State),
		})
	}
	s.writeJSON(w, rows)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	res := s.Engine.LastProbe()
	row := pingRow{State: string(res.State), LatencyMS: res.LatencyMS}
	if !res.CheckedAt.IsZero() {
		row.CheckedAt = res.CheckedAt.Format(time.RFC3339)
	}
	s.writeJSON(w, row)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil && s.Log != nil {
		s.Log.WithError(err).Warn("web: write response")
	}
}

// Start serves h until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if log != nil {
		log.WithField("addr", addr).Info("status API listening")
	}
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
