// Package site serves the HTML leaderboard page.
package site

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/pagination"
	"github.com/okian/leaderboard/internal/domain/submission"
	"github.com/okian/leaderboard/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/leaderboard.html"))

// ErrRender is returned when the page template fails.
var ErrRender = errors.New("leaderboard page render failed")

// Dependencies required by the page.
type Dependencies interface {
	Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error)
	Leaderboard(ctx context.Context, q pagination.Query) (pagination.Result, error)
}

// Handler renders the leaderboard and accepts score submissions from its form.
type Handler struct {
	deps Dependencies
	log  logger.Logger
}

// NewHandler creates a new page handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, log: logger.Named("site")}
}

// Register attaches the page routes to mux.
func Register(mux *http.ServeMux, deps Dependencies) {
	if mux == nil {
		panic("mux is nil")
	}
	h := NewHandler(deps)
	mux.HandleFunc("GET /leaderboard", h.HandleGet)
	mux.HandleFunc("POST /leaderboard", h.HandlePost)
	mux.Handle("GET /{$}", http.RedirectHandler("/leaderboard", http.StatusFound))
}

type view struct {
	Level     int
	FormLevel int
	Player    string
	Error     string
	Levels    []int
	Result    pagination.Result
}

func (v view) IsPlayer(name string) bool {
	return v.Player != "" && strings.EqualFold(name, model.NormalizeName(v.Player))
}

func (v view) Prev() int { return v.Result.Page - 1 }
func (v view) Next() int { return v.Result.Page + 1 }

// HandleGet handles GET /leaderboard?level=&page=&player=.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := view{
		Level:  clampLevel(atoi(q.Get("level"))),
		Player: strings.TrimSpace(q.Get("player")),
	}
	v.FormLevel = max(v.Level, model.MinLevel)
	h.render(w, r, http.StatusOK, v, max(atoi(q.Get("page")), 0))
}

// HandlePost handles the submit form and redirects to the page holding the player.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	sub := model.Submission{
		PlayerName: r.PostForm.Get("playerName"),
		Level:      atoi(r.PostForm.Get("level")),
		Score:      atoi(r.PostForm.Get("score")),
	}
	rec, err := h.deps.Submit(r.Context(), sub)
	if err != nil {
		v := view{
			Level:     clampLevel(sub.Level),
			FormLevel: max(clampLevel(sub.Level), model.MinLevel),
			Player:    model.NormalizeName(sub.PlayerName),
		}
		status := http.StatusBadRequest
		v.Error = "Please enter a valid player name, level, and score."
		if !errors.Is(err, submission.ErrValidation) {
			status = http.StatusInternalServerError
			v.Error = "Failed to submit score."
			h.log.Error(r.Context(), "form submission failed", logger.Error(err))
		}
		h.render(w, r, status, v, pagination.AutoPage)
		return
	}

	target := url.Values{}
	target.Set("page", strconv.Itoa(pagination.AutoPage))
	target.Set("level", strconv.Itoa(rec.Level))
	target.Set("player", rec.PlayerName)
	http.Redirect(w, r, "/leaderboard?"+target.Encode(), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, v view, page int) {
	v.Levels = []int{1, 2, 3, 4, 5}
	res, err := h.deps.Leaderboard(r.Context(), pagination.Query{Page: page, Level: v.Level, Player: v.Player})
	if err != nil {
		h.log.Error(r.Context(), "leaderboard unavailable", logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	v.Result = res

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, v); err != nil {
		h.log.Error(r.Context(), ErrRender.Error(), logger.Error(err))
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func clampLevel(level int) int {
	if !model.IsRankedLevel(level) {
		return model.AggregateLevel
	}
	return level
}
