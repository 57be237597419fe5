package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"dailytrade/internal/command"
	"dailytrade/internal/game"
	"dailytrade/internal/metrics"
	"dailytrade/internal/model"
	"dailytrade/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the ledger read-only. Commands are only ever executed from thread
// comments by the worker.
type Server struct {
	log   *slog.Logger
	store store.Store
	game  *game.Service
	now   func() time.Time
	mux   *chi.Mux
}

func New(logger *slog.Logger, st store.Store, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:   logger,
		store: st,
		game:  gameSvc,
		now:   time.Now,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/players", s.handlePlayers)
		r.Get("/players/{username}", s.handlePlayer)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/loans", s.handleLoans)
		r.Get("/subreddits", s.handleSubreddits)
		r.Get("/thread", s.handleThread)
		r.Post("/parse", s.handleParse)
	})
}

type PlayerView struct {
	model.Account
	Loan      int64            `json:"loan"`
	Positions []model.Position `json:"positions"`
	// Worth is omitted when the post counts for today are not available.
	Worth *int64 `json:"worth,omitempty"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	var accounts []model.Account
	err := s.store.View(r.Context(), func(tx store.Tx) error {
		var err error
		accounts, err = tx.Accounts(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": accounts})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	ctx := r.Context()

	var view PlayerView
	err := s.store.View(ctx, func(tx store.Tx) error {
		gems, err := tx.Balance(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			return game.ErrNotPlayer
		}
		if err != nil {
			return err
		}
		view.Username, view.Gems = username, gems
		if view.Loan, err = tx.Loan(ctx, username); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if view.Positions, err = tx.Positions(ctx, username); err != nil {
			return err
		}

		worth, err := s.game.VirtualWorth(ctx, tx, username, s.now())
		switch {
		case errors.Is(err, game.ErrOracleUnavailable):
			s.log.Warn("virtual worth unavailable", "username", username, "err", err)
		case err != nil:
			return err
		default:
			view.Worth = &worth
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if view.Positions == nil {
		view.Positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLeaderboard ranks by gems, or by virtual worth with ?by=worth.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	by := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("by")))
	if by != "" && by != "gems" && by != "worth" {
		writeError(w, http.StatusBadRequest, "by must be gems or worth")
		return
	}

	var entries []LeaderboardEntry
	err := s.store.View(ctx, func(tx store.Tx) error {
		accounts, err := tx.Accounts(ctx)
		if err != nil {
			return err
		}
		entries = make([]LeaderboardEntry, 0, len(accounts))
		for _, a := range accounts {
			score := a.Gems
			if by == "worth" {
				if score, err = s.game.VirtualWorth(ctx, tx, a.Username, s.now()); err != nil {
					return err
				}
			}
			entries = append(entries, LeaderboardEntry{Username: a.Username, Score: score})
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username > entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	type loanView struct {
		model.Loan
		Interest int64 `json:"interest"`
	}
	var out []loanView
	err := s.store.View(r.Context(), func(tx store.Tx) error {
		loans, err := tx.Loans(r.Context())
		if err != nil {
			return err
		}
		out = make([]loanView, 0, len(loans))
		for _, l := range loans {
			out = append(out, loanView{Loan: l, Interest: game.Interest(l.Amount)})
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": out})
}

func (s *Server) handleSubreddits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"subreddits": s.game.Universe().Names()})
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	var (
		post   model.Post
		number int
	)
	err := s.store.View(r.Context(), func(tx store.Tx) error {
		var err error
		if post, err = tx.LatestPost(r.Context()); err != nil {
			return err
		}
		number, err = tx.PostNumber(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": post.ID, "date": model.DayKey(post.Date), "day": number})
}

// handleParse shows how the worker would read a comment, without executing anything.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmds := command.Parse(in.Text)
	if cmds == nil {
		cmds = []command.Command{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotPlayer), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrOracleUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
