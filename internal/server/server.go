// Package server exposes the bot's state as JSON, start/stop controls per
// leg, Prometheus metrics and a WebSocket trade stream.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"options-momentum-bot/internal/journal"
	"options-momentum-bot/internal/ledger"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/runner"
	"options-momentum-bot/internal/types"
)

// Ledger is the read side of *ledger.Ledger.
type Ledger interface {
	Summary() ledger.Summary
	Trades(leg types.Leg) []types.TradeRecord
	Subscribe(buffer int) (<-chan types.TradeRecord, func())
}

// Controller is satisfied by *runner.Group.
type Controller interface {
	Legs() []types.Leg
	Start(leg types.Leg) error
	Stop(leg types.Leg) error
	Running(leg types.Leg) bool
	Health() []runner.Health
}

// Journal is the read side of *journal.Journal.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]journal.Row, error)
	NetByLeg(ctx context.Context, since time.Time) (map[string]float64, error)
}

// Market is satisfied by *markethours.Session.
type Market interface {
	Status(t time.Time) markethours.Status
}

type Option func(*Server)

func WithMetrics(h http.Handler) Option          { return func(s *Server) { s.metrics = h } }
func WithClock(now func() time.Time) Option      { return func(s *Server) { s.now = now } }
func WithMode(mode types.Mode) Option            { return func(s *Server) { s.mode = mode } }
func WithStreamBuffer(n int) Option              { return func(s *Server) { s.streamBuffer = n } }
func WithShutdownTimeout(d time.Duration) Option { return func(s *Server) { s.shutdownTimeout = d } }
func WithJournal(j Journal) Option               { return func(s *Server) { s.journal = j } }

type Server struct {
	addr    string
	ledger  Ledger
	ctl     Controller
	market  Market
	metrics http.Handler
	journal Journal
	mode    types.Mode
	now     func() time.Time

	streamBuffer    int
	shutdownTimeout time.Duration
	started         time.Time
}

func New(addr string, l Ledger, ctl Controller, market Market, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		ledger:          l,
		ctl:             ctl,
		market:          market,
		now:             time.Now,
		streamBuffer:    64,
		shutdownTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	return s
}

// Handler returns the routed and logged mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/ce_pe_details", s.handleDetails)
	mux.HandleFunc("GET /api/trades/{leg}", s.handleTrades)
	mux.HandleFunc("GET /api/market_status", s.handleMarketStatus)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/start", s.handleControl(true))
	mux.HandleFunc("POST /api/stop", s.handleControl(false))
	mux.HandleFunc("GET /ws/trades", s.handleStream)
	if s.journal != nil {
		mux.HandleFunc("GET /api/journal", s.handleJournal)
		mux.HandleFunc("GET /api/journal/net", s.handleJournalNet)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
