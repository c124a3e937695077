package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/pagination"
)

// LeaderboardHandler serves score submission and leaderboard reads.
type LeaderboardHandler struct {
	deps         Dependencies
	maxBodyBytes int64
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps Dependencies, maxBodyBytes int64) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleSubmit handles POST /api/leaderboard.
func (h *LeaderboardHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	var sub model.Submission
	if err := decodeBody(w, r, h.maxBodyBytes, &sub); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	rec, err := h.deps.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleGetLeaderboard handles GET /api/leaderboard?page=&pageSize=&level=&player=.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Leaderboard(r.Context(), q)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetByID handles GET /api/leaderboard/{id}.
func (h *LeaderboardHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_by_id"
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("id must be a positive integer")))
		return
	}
	rec, err := h.deps.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleListAll handles GET /api/leaderboard/all.
func (h *LeaderboardHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_all"
	recs, err := h.deps.ListAll(r.Context())
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	if recs == nil {
		recs = []model.ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ParseQuery reads leaderboard query parameters. Missing values are left
// at zero: auto page, default page size and the overall board.
func ParseQuery(v url.Values) (pagination.Query, error) {
	var q pagination.Query
	var err error
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, err
	}
	if q.Page < 0 {
		return q, errors.New("page must not be negative")
	}
	if v.Has("pageSize") {
		if q.PageSize, err = intParam(v, "pageSize"); err != nil {
			return q, err
		}
		if q.PageSize <= 0 {
			return q, errors.New("pageSize must be positive")
		}
	}
	if q.Level, err = intParam(v, "level"); err != nil {
		return q, err
	}
	if !model.IsRankedLevel(q.Level) {
		return q, fmt.Errorf("level must be between %d and %d", model.AggregateLevel, model.MaxLevel)
	}
	q.Player = strings.TrimSpace(v.Get("player"))
	return q, nil
}

func intParam(v url.Values, name string) (int, error) {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("body larger than %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	return nil
}
