package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/service"
	ws "github.com/quizora/quizora-backend/internal/websocket"
)

// autosaveBufferTTL bounds how long an autosave hash may outlive its
// attempt. Long enough to cover any exam sitting plus sweep grace.
const autosaveBufferTTL = 24 * time.Hour

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams an in-progress attempt: answer autosave and the
// server clock. Submission is not available here; finalizing goes
// through the HTTP submit endpoint so there is a single grading path.
type WSHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?session_token=...
// Upgrades to WebSocket for real-time autosave and clock sync.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	// Browsers cannot set headers on WebSocket dials, so the session
	// token rides the query string here.
	sessionToken := c.Query("session_token")
	if sessionToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
		return
	}

	// Validate before upgrading: a submitted or foreign attempt never
	// gets a stream.
	attempt, err := h.attemptService.VerifyOpen(c.Request.Context(), attemptID, sessionToken)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "attempt is not open"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())

	wsLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Str("exam_id", attempt.ExamID.String()).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, answersKey, attemptID, &msg)
		case ws.ActionClock:
			h.handleClock(conn, attemptID, sessionToken)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave buffers a single answer in Redis and queues it for
// persistence into the attempt row.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, answersKey string, attemptID uuid.UUID, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.QID == "" {
		ws.WriteError(conn, "q_id is required")
		return
	}
	// Well-formed UUIDs only, to keep Redis keys and the later
	// persistence free of client-controlled garbage.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	// The TTL (refreshed per save) bounds the life of the buffer: submit
	// deletes it, but a socket still writing after finalization would
	// otherwise recreate the hash with no expiry.
	pipe := h.rdb.Pipeline()
	pipe.HSet(ctx, answersKey, msg.QID, msg.Answer)
	pipe.Expire(ctx, answersKey, autosaveBufferTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosave Redis error")
		ws.WriteError(conn, "save failed")
		return
	}

	payload, _ := json.Marshal(model.AutosaveEnvelope{
		AttemptID: attemptID.String(),
		QID:       msg.QID,
		Answer:    msg.Answer,
		SavedAt:   time.Now().Unix(),
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

// handleClock reports the server-authoritative remaining time.
func (h *WSHandler) handleClock(conn *websocket.Conn, attemptID uuid.UUID, sessionToken string) {
	state, err := h.attemptService.State(context.Background(), attemptID, sessionToken)
	if err != nil {
		ws.WriteError(conn, "attempt is not open")
		return
	}
	ws.WriteTyped(conn, ws.ClockResponse{Event: ws.EventClock, RemainingSeconds: state.RemainingSeconds})
}
