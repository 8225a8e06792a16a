package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"options-momentum-bot/internal/journal"
	"options-momentum-bot/internal/ledger"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/runner"
	"options-momentum-bot/internal/types"
)

type legState struct {
	Leg     types.Leg `json:"leg"`
	Running bool      `json:"running"`
	Enabled bool      `json:"enabled"`
}

type summaryResponse struct {
	Mode          types.Mode     `json:"mode"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Summary       ledger.Summary `json:"summary"`
	Legs          []legState     `json:"legs"`
}

func (s *Server) legStates() []legState {
	health := map[types.Leg]runner.Health{}
	for _, h := range s.ctl.Health() {
		health[h.Leg] = h
	}
	var out []legState
	for _, leg := range s.ctl.Legs() {
		out = append(out, legState{Leg: leg, Running: s.ctl.Running(leg), Enabled: health[leg].Enabled})
	}
	return out
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, summaryResponse{
		Mode:          s.mode,
		UptimeSeconds: int64(s.now().Sub(s.started) / time.Second),
		Summary:       s.ledger.Summary(),
		Legs:          s.legStates(),
	})
}

type legDetails struct {
	Leg     types.Leg           `json:"leg"`
	Running bool                `json:"running"`
	Health  runner.Health       `json:"health"`
	Stats   ledger.LegSummary   `json:"stats"`
	Trades  []types.TradeRecord `json:"trades"`
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	summary := s.ledger.Summary()
	out := map[types.Leg]legDetails{}
	for _, h := range s.ctl.Health() {
		trades := s.ledger.Trades(h.Leg)
		if trades == nil {
			trades = []types.TradeRecord{}
		}
		out[h.Leg] = legDetails{
			Leg:     h.Leg,
			Running: s.ctl.Running(h.Leg),
			Health:  h,
			Stats:   summary.Legs[h.Leg],
			Trades:  trades,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	leg, err := types.ParseOptionType(r.PathValue("leg"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trades := s.ledger.Trades(leg)
	if trades == nil {
		trades = []types.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Status(s.now()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   s.mode,
		"legs":   s.ctl.Health(),
	})
}

// handleControl enables or disables the leg named by ?leg=, or every leg
// when the parameter is absent.
func (s *Server) handleControl(start bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		legs := s.ctl.Legs()
		if q := r.URL.Query().Get("leg"); q != "" {
			leg, err := types.ParseOptionType(q)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			legs = []types.Leg{leg}
		}

		for _, leg := range legs {
			var err error
			if start {
				err = s.ctl.Start(leg)
			} else {
				err = s.ctl.Stop(leg)
			}
			if errors.Is(err, runner.ErrUnknownLeg) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			logger.Info(r.Context(), "Leg control", "leg", leg, "start", start)
		}
		writeJSON(w, http.StatusOK, map[string]any{"legs": s.legStates()})
	}
}

// handleJournal returns the newest journal rows, ?limit= (default 50, max 500).
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	rows, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Journal read failed", err, "limit", limit)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if rows == nil {
		rows = []journal.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleJournalNet sums net profit per leg since ?since=YYYY-MM-DD, which
// defaults to today in IST.
func (s *Server) handleJournalNet(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(markethours.IST)
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, markethours.IST)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, markethours.IST)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = t
	}
	net, err := s.journal.NetByLeg(r.Context(), since)
	if err != nil {
		logger.ErrorWithErr(r.Context(), "Journal read failed", err, "since", since.Format("2006-01-02"))
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since": since.Format("2006-01-02"),
		"net":   net,
	})
}
