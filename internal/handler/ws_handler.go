package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/middleware"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/service"
	"github.com/courseloop/assessment-backend/internal/store"
	ws "github.com/courseloop/assessment-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
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

// WSHandler streams one attempt over a WebSocket: autosave with a Redis
// fast lane, ping with the authoritative countdown, and submit.
type WSHandler struct {
	rdb            *redis.Client
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/questionnaires/:questionnaire_id/stream
// Upgrades to WebSocket for real-time autosave and submission.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	questionnaireID, err := uuid.Parse(c.Param("questionnaire_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid questionnaire ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	// Streaming requires an open attempt; start over HTTP first.
	state, err := h.sessionService.GetState(c.Request.Context(), questionnaireID, studentID)
	if err != nil {
		ws.WriteError(conn, "no open attempt for this questionnaire")
		return
	}
	attemptID := state.AttemptID
	answersKey := config.CacheKey.AttemptAnswersKey(questionnaireID.String(), studentID)

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("questionnaire_id", questionnaireID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestEnvelope
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
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, attemptID, studentID, msg.Auto)
		case ws.ActionPing:
			h.handlePing(conn, questionnaireID, studentID)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave buffers a single answer in Redis and queues it for
// persistence by the autosave worker.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, answersKey string, attemptID uuid.UUID, msg *ws.RequestEnvelope) {
	ctx := context.Background()

	if msg.QuestionID == "" || len(msg.Value) == 0 {
		ws.WriteError(conn, "question_id and value are required")
		return
	}

	// Validate question_id is a well-formed UUID to prevent Redis key abuse.
	if _, err := uuid.Parse(msg.QuestionID); err != nil {
		ws.WriteError(conn, "invalid question_id format")
		return
	}
	if !json.Valid(msg.Value) {
		ws.WriteError(conn, "value must be valid JSON")
		return
	}

	if err := h.rdb.HSet(ctx, answersKey, msg.QuestionID, string(msg.Value)).Err(); err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosave Redis error")
		ws.WriteError(conn, "save failed")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  attemptID.String(),
		"question_id": msg.QuestionID,
		"value":       msg.Value,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID})
}

// handleSubmit runs the synchronous submit path; the service folds the
// Redis answer buffer in itself.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, studentID int, auto bool) {
	ctx := context.Background()

	attempt, err := h.sessionService.Submit(ctx, attemptID, studentID, &model.SubmitAttemptRequest{Auto: auto})
	if err != nil {
		var shapeErr *service.AnswerShapeError
		switch {
		case errors.As(err, &shapeErr):
			ws.WriteError(conn, "one or more answers failed validation")
		case errors.Is(err, store.ErrAlreadySubmitted):
			ws.WriteError(conn, "attempt already submitted")
		case errors.Is(err, service.ErrRequiredUnanswered):
			ws.WriteError(conn, "required questions are unanswered")
		case errors.Is(err, service.ErrOverdue):
			ws.WriteError(conn, "past the deadline and late submission is not allowed")
		default:
			wsLog.Error().Err(err).Msg("Submit error")
			ws.WriteError(conn, "submit failed")
		}
		return
	}

	wsLog.Info().
		Bool("late", attempt.Late).
		Bool("graded", attempt.IsGraded).
		Msg("Attempt submitted over WebSocket")

	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event: ws.EventSubmitted,
		State: string(attempt.State()),
		Late:  attempt.Late,
		Score: attempt.Score,
	})
}

// handlePing answers with the server-side countdown so clients can correct
// clock drift.
func (h *WSHandler) handlePing(conn *websocket.Conn, questionnaireID uuid.UUID, studentID int) {
	state, err := h.sessionService.GetState(context.Background(), questionnaireID, studentID)
	if err != nil {
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		return
	}
	ws.WriteTyped(conn, ws.PongResponse{
		Event:            ws.EventPong,
		RemainingSeconds: state.RemainingSeconds,
	})
}
