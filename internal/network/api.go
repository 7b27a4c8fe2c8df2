// Package network - api.go
// REST surface of the robot: status, overrides, learning, history and telemetry replay.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/domain/rules"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/events"
	"github.com/dewwy/petbot/internal/infra/storage"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	requestTimeout   = 3 * time.Second
	defaultPageLimit = 50
	maxPageLimit     = 500
	maxRecapHours    = 24 * 365
)

// Controller is the engine as seen by the API.
type Controller interface {
	Apply(ctx context.Context, o engine.Override) (engine.Result, error)
	Status() engine.Status
}

// API serves the HTTP endpoints.
type API struct {
	ctl          Controller
	eventLog     *events.EventLog
	interactions storage.InteractionRepository
	learned      storage.LearnedResponseRepository
	recapper     *storage.Recapper
	hub          *Hub
	upgrader     websocket.Upgrader
	logger       *logger.Logger
}

// APIDeps are the collaborators of the API. Stores and hub may be nil.
type APIDeps struct {
	Controller   Controller
	Events       *events.EventLog
	Interactions storage.InteractionRepository
	Learned      storage.LearnedResponseRepository
	Hub          *Hub
	Logger       *logger.Logger
}

// NewAPI creates the HTTP handler set.
func NewAPI(deps APIDeps) *API {
	a := &API{
		ctl:          deps.Controller,
		eventLog:     deps.Events,
		interactions: deps.Interactions,
		learned:      deps.Learned,
		hub:          deps.Hub,
		logger:       deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if deps.Interactions != nil {
		a.recapper = storage.NewRecapper(deps.Interactions)
	}
	return a
}

// RegisterRoutes sets up the API routes.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.HandleStatus)
	mux.HandleFunc("/api/state", a.HandleState)
	mux.HandleFunc("/api/emotion", a.HandleEmotion)
	mux.HandleFunc("/api/nudge", a.HandleNudge)
	mux.HandleFunc("/api/command", a.HandleCommand)
	mux.HandleFunc("/api/learn", a.HandleLearn)
	mux.HandleFunc("/api/interactions", a.HandleInteractions)
	mux.HandleFunc("/api/recap", a.HandleRecap)
	mux.HandleFunc("/api/events", a.HandleEvents)
	if a.hub != nil {
		mux.HandleFunc("/ws", a.HandleWebSocket)
	}
}

// HandleStatus returns the last published snapshot.
// GET /api/status
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	jsonResponse(w, http.StatusOK, a.ctl.Status())
}

// HandleState forces a behavior state.
// POST /api/state {"state": "sleeping"}
func (a *API) HandleState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	a.apply(w, r, engine.Override{Type: engine.OverrideTransition, State: req.State}, http.StatusAccepted)
}

// HandleEmotion forces an emotion.
// POST /api/emotion {"emotion": "happy"}
func (a *API) HandleEmotion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emotion string `json:"emotion"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	a.apply(w, r, engine.Override{Type: engine.OverrideEmotion, Emotion: req.Emotion}, http.StatusAccepted)
}

// HandleNudge runs a short manual motion.
// POST /api/nudge {"nudge": "left"}
func (a *API) HandleNudge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nudge string `json:"nudge"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	a.apply(w, r, engine.Override{Type: engine.OverrideNudge, Nudge: req.Nudge}, http.StatusAccepted)
}

// HandleCommand interprets a phrase.
// POST /api/command {"text": "go to sleep"}
func (a *API) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	a.apply(w, r, engine.Override{Type: engine.OverrideCommand, Text: req.Text}, http.StatusOK)
}

// HandleLearn teaches or looks up keyword responses.
// POST /api/learn {"keyword": "...", "response": "..."}
// GET /api/learn?keyword=... (or without keyword for the full table)
func (a *API) HandleLearn(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Keyword  string `json:"keyword"`
			Response string `json:"response"`
		}
		if !a.decode(w, r, &req) {
			return
		}
		a.apply(w, r, engine.Override{Type: engine.OverrideTeach, Keyword: req.Keyword, Response: req.Response}, http.StatusOK)
	case http.MethodGet:
		a.lookupLearned(w, r)
	default:
		methodNotAllowed(w)
	}
}

type learnedView struct {
	memory.LearnedResponse
	Recallable bool `json:"recallable"`
}

func (a *API) lookupLearned(w http.ResponseWriter, r *http.Request) {
	if a.learned == nil {
		jsonError(w, fmt.Errorf("learned store: %w", memory.ErrNotFound))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		all, err := a.learned.List(ctx)
		if err != nil {
			a.internal(w, "failed to list learned responses", err)
			return
		}
		views := make([]learnedView, 0, len(all))
		for _, l := range all {
			views = append(views, learnedView{LearnedResponse: l, Recallable: rules.Recallable(l.Confidence)})
		}
		jsonResponse(w, http.StatusOK, map[string]interface{}{"learned": views, "total": len(views)})
		return
	}

	l, err := a.learned.Get(ctx, memory.NormalizeKeyword(keyword))
	if err != nil {
		jsonError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, learnedView{LearnedResponse: *l, Recallable: rules.Recallable(l.Confidence)})
}

// HandleInteractions returns the newest interaction records.
// GET /api/interactions?limit=50
func (a *API) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, err := pageLimit(r)
	if err != nil {
		jsonError(w, err)
		return
	}
	if a.interactions == nil {
		jsonResponse(w, http.StatusOK, map[string]interface{}{"interactions": []memory.InteractionRecord{}, "total": 0})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	recs, err := a.interactions.Recent(ctx, limit)
	if err != nil {
		a.internal(w, "failed to read interactions", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"interactions": recs, "total": len(recs)})
}

// HandleRecap summarizes the last hours of interactions.
// GET /api/recap?hours=24
func (a *API) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRecapHours {
			jsonError(w, fmt.Errorf("%w: hours must be between 1 and %d", domain.ErrInvalidArgument, maxRecapHours))
			return
		}
		hours = n
	}
	if a.recapper == nil {
		jsonError(w, fmt.Errorf("interaction log: %w", memory.ErrNotFound))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	until := time.Now()
	recap, err := a.recapper.Build(ctx, until.Add(-time.Duration(hours)*time.Hour), until)
	if err != nil {
		a.internal(w, "failed to build recap", err)
		return
	}
	jsonResponse(w, http.StatusOK, recap)
}

// HandleEvents replays retained telemetry.
// GET /api/events?since=SEQ&type=STARTLED&limit=100
func (a *API) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	var since uint64
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			jsonError(w, fmt.Errorf("%w: since must be a sequence number", domain.ErrInvalidArgument))
			return
		}
		since = n
	}
	limit, err := pageLimit(r)
	if err != nil {
		jsonError(w, err)
		return
	}

	eventType := events.EventType(q.Get("type"))
	filtered := make([]events.BehaviorEvent, 0)
	for _, e := range a.eventLog.Since(since) {
		if eventType != "" && e.Type != eventType {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"events":       filtered,
		"total":        len(filtered),
		"last_seq":     a.eventLog.Seq(),
		"generated_at": time.Now().Format(time.RFC3339),
	})
}

// HandleWebSocket upgrades to the telemetry stream.
// GET /ws
func (a *API) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(a.hub, conn)
	client.Register()
	go client.WritePump()
	go client.ReadPump()
}

func (a *API) apply(w http.ResponseWriter, r *http.Request, o engine.Override, okStatus int) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := a.ctl.Apply(ctx, o)
	if err != nil {
		if ErrorCode(err) == CodeInternal {
			a.logger.Error("override failed", zap.String("type", string(o.Type)), zap.Error(err))
		}
		jsonError(w, err)
		return
	}
	jsonResponse(w, okStatus, res)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(dst); err != nil {
		jsonError(w, fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument))
		return false
	}
	return true
}

func (a *API) internal(w http.ResponseWriter, msg string, err error) {
	a.logger.Error(msg, zap.Error(err))
	jsonError(w, err)
}

func pageLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultPageLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidArgument)
	}
	if n > maxPageLimit {
		n = maxPageLimit
	}
	return n, nil
}
