package api

import (
	"errors"
	"net/http"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/seed"
)

// IdempotencyKeyHeader names the header that makes imports idempotent.
const IdempotencyKeyHeader = "Idempotency-Key"

// AdminHandler serves bulk operations: clear, populate and import.
type AdminHandler struct {
	deps            Dependencies
	populatePlayers int
	maxBodyBytes    int64
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies, populatePlayers int, maxBodyBytes int64) *AdminHandler {
	return &AdminHandler{deps: deps, populatePlayers: populatePlayers, maxBodyBytes: maxBodyBytes}
}

type clearResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
}

type populateResponse struct {
	Status string `json:"status"`
	seed.Summary
}

type importResponse struct {
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate"`
	Submissions int    `json:"submissions"`
}

// HandleClear handles GET and POST /api/leaderboard/clear.
func (h *AdminHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear"
	n, err := h.deps.ClearAll(r.Context())
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Status: "cleared", Deleted: n})
}

// HandlePopulate handles GET and POST /api/leaderboard/populate?players=N.
func (h *AdminHandler) HandlePopulate(w http.ResponseWriter, r *http.Request) {
	const op = "api.populate"
	players, err := intParam(r.URL.Query(), "players")
	if err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if players < 0 || players > seed.MaxPlayers {
		writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("players out of range")))
		return
	}
	if players == 0 {
		players = h.populatePlayers
	}
	sum, err := h.deps.Populate(r.Context(), players)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, populateResponse{Status: "populated", Summary: sum})
}

// HandleImport handles POST /api/leaderboard/import. The batch is applied
// asynchronously; an Idempotency-Key header makes retries safe.
func (h *AdminHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import"
	var subs []model.Submission
	if err := decodeBody(w, r, h.maxBodyBytes, &subs); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(subs) == 0 {
		writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("no submissions")))
		return
	}

	accepted, duplicate, err := h.deps.Import(r.Context(), r.Header.Get(IdempotencyKeyHeader), subs)
	switch {
	case err != nil:
		writeError(w, r, Wrap(op, err))
	case duplicate:
		writeJSON(w, http.StatusOK, importResponse{Status: "duplicate", Duplicate: true})
	case accepted:
		writeJSON(w, http.StatusAccepted, importResponse{Status: "accepted", Submissions: len(subs)})
	default:
		writeError(w, r, NewKind(op, ErrBackpressure))
	}
}
