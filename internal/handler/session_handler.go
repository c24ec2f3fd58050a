package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/auth"
	"github.com/freeeve/markov-rps/internal/model"
	"github.com/freeeve/markov-rps/internal/service"
	"github.com/freeeve/markov-rps/pkg/rps"
)

// SessionHandler handles play session endpoints.
type SessionHandler struct {
	svc    *service.SessionService
	jwtMgr *auth.JWTManager
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *service.SessionService, jwtMgr *auth.JWTManager) *SessionHandler {
	return &SessionHandler{svc: svc, jwtMgr: jwtMgr}
}

// sessionView is the public shape of a session. The agent's internal state
// is never exposed since it would let the opponent predict the next move.
type sessionView struct {
	ID            string     `json:"id"`
	Opponent      string     `json:"opponent"`
	Status        string     `json:"status"`
	MaxRounds     int        `json:"max_rounds"`
	Rounds        int        `json:"rounds"`
	AgentMoves    []rps.Move `json:"agent_moves"`
	OpponentMoves []rps.Move `json:"opponent_moves"`
	Wins          int        `json:"wins"`
	Losses        int        `json:"losses"`
	Ties          int        `json:"ties"`
	Score         int        `json:"score"`
	PeakScore     int        `json:"peak_score"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func viewSession(s *model.Session) sessionView {
	v := sessionView{
		ID:            s.ID,
		Opponent:      s.Opponent,
		Status:        s.Status,
		MaxRounds:     s.MaxRounds,
		Rounds:        s.RoundsPlayed(),
		AgentMoves:    s.AgentMoves,
		OpponentMoves: s.OpponentMoves,
		Wins:          s.Wins,
		Losses:        s.Losses,
		Ties:          s.Ties,
		Score:         s.Score,
		PeakScore:     s.PeakScore,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if v.AgentMoves == nil {
		v.AgentMoves = []rps.Move{}
	}
	if v.OpponentMoves == nil {
		v.OpponentMoves = []rps.Move{}
	}
	return v
}

// CreateSession handles POST /sessions. The body is optional.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Opponent string `json:"opponent"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.Create(r.Context(), req.Opponent)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	token, err := h.jwtMgr.GenerateSessionToken(sess.ID, sess.Opponent)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to sign session token")
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session":    viewSession(sess),
		"token":      token,
		"expires_in": int(h.jwtMgr.Expiry().Seconds()),
	})
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

// PlayRound handles POST /api/v1/sessions/{id}/rounds
func (h *SessionHandler) PlayRound(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Move string `json:"move"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Move == "" {
		writeError(w, http.StatusBadRequest, "move is required")
		return
	}
	move, err := rps.ParseMove(req.Move)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	round, err := h.svc.Play(r.Context(), id, move)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// FinishSession handles POST /api/v1/sessions/{id}/finish
func (h *SessionHandler) FinishSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}
	match, err := h.svc.Finish(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// ListMatches handles GET /api/v1/matches?limit=N
func (h *SessionHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	matches, err := h.svc.ListMatches(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if matches == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// Health handles GET /healthz
func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ActiveSessions(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Health check could not reach session store")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_sessions": n})
}

// authorizedSession returns the {id} path value when the caller's token
// was issued for that session.
func (h *SessionHandler) authorizedSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id != auth.SessionIDFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "token is not valid for this session")
		return "", false
	}
	return id, true
}
