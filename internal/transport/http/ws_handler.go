package http

import (
	"context"
	"encoding/json"
	"net/http"

	"live-quiz-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type WSHandler struct {
	coord    Coordinator
	upgrader websocket.Upgrader
}

func NewWSHandler(coord Coordinator) *WSHandler {
	return &WSHandler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of the router.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex  int     `json:"questionIndex"`
	ChosenIndex    int     `json:"chosenIndex"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

type advancePayload struct {
	FromIndex *int `json:"fromIndex"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ServeWS streams one participant's session and question-state snapshots and accepts their
// commands on the same connection.
func (h *WSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Query("sessionId")
	participantID := c.Query("participantId")
	if sessionID == "" || participantID == "" {
		badRequest(c, "missing sessionId or participantId")
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Fail before the upgrade so plain HTTP clients get a proper status.
	session, err := h.coord.GetSession(ctx, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if session.Player(participantID) == nil {
		writeError(c, domain.ErrParticipantNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("session_id", sessionID).Str("participant_id", participantID).Logger()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					logger.Debug().Err(err).Msg("ws write failed")
					return
				}
			case <-closeSignals:
				// Flush what is already queued, then stop.
				for {
					select {
					case msg := <-send:
						if err := conn.WriteJSON(msg); err != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	// push never blocks past connection teardown; snapshot callbacks run on store goroutines.
	push := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	stopSession, err := h.coord.SubscribeSession(ctx, sessionID, func(s domain.Session) {
		push(outboundMessage{Type: "session", Payload: s})
	})
	if err != nil {
		push(outboundMessage{Type: "error", Payload: toErrorPayload(err)})
		h.teardown(closeSignals, writerDone)
		return
	}
	stopQuestion, err := h.coord.SubscribeQuestionState(ctx, sessionID, func(q domain.QuestionState) {
		push(outboundMessage{Type: "questionState", Payload: q})
	})
	if err != nil {
		stopSession()
		push(outboundMessage{Type: "error", Payload: toErrorPayload(err)})
		h.teardown(closeSignals, writerDone)
		return
	}
	logger.Info().Msg("participant connected")

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply, leave := h.dispatch(ctx, sessionID, participantID, inbound)
		if reply != nil {
			push(*reply)
		}
		if leave {
			break
		}
	}

	stopSession()
	stopQuestion()
	h.teardown(closeSignals, writerDone)
	logger.Info().Msg("participant disconnected")
}

// teardown signals the writer to flush what is queued and waits for it. send is never
// closed because snapshot callbacks may still be in flight.
func (h *WSHandler) teardown(closeSignals chan struct{}, writerDone chan struct{}) {
	close(closeSignals)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, sessionID, participantID string, in inboundMessage) (*outboundMessage, bool) {
	fail := func(err error) (*outboundMessage, bool) {
		return &outboundMessage{Type: "error", Payload: toErrorPayload(err)}, false
	}

	switch in.Type {
	case "start":
		if err := h.coord.StartRound(ctx, sessionID, participantID); err != nil {
			return fail(err)
		}
		return nil, false
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return fail(domain.ErrInvalidArgument)
		}
		res, err := h.coord.SubmitAnswer(ctx, domain.AnswerSubmission{
			SessionID:      sessionID,
			ParticipantID:  participantID,
			QuestionIndex:  payload.QuestionIndex,
			ChosenIndex:    payload.ChosenIndex,
			ElapsedSeconds: payload.ElapsedSeconds,
		})
		if err != nil {
			return fail(err)
		}
		return &outboundMessage{Type: "answerResult", Payload: res}, false
	case "advance":
		var payload advancePayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				return fail(domain.ErrInvalidArgument)
			}
		}
		from := -1
		if payload.FromIndex != nil {
			from = *payload.FromIndex
		}
		if err := h.coord.AdvanceRound(ctx, sessionID, participantID, from); err != nil {
			return fail(err)
		}
		return nil, false
	case "leaderboard":
		entries, err := h.coord.GetLiveLeaderboard(ctx, sessionID)
		if err != nil {
			return fail(err)
		}
		return &outboundMessage{Type: "leaderboard", Payload: entries}, false
	case "leave":
		if err := h.coord.LeaveSession(ctx, sessionID, participantID); err != nil {
			return fail(err)
		}
		return &outboundMessage{Type: "left"}, true
	default:
		return &outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type", Code: "invalid_argument"}}, false
	}
}
