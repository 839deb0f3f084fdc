package http

import (
	"context"
	"net/http"

	"live-quiz-service/internal/domain"

	"github.com/gin-gonic/gin"
)

// Coordinator is the session API exposed over REST and websockets.
type Coordinator interface {
	HostSession(ctx context.Context, quizID, hostID, hostName string) (domain.HostResult, error)
	JoinSession(ctx context.Context, gameCode, participantID, displayName string) (domain.JoinResult, error)
	StartRound(ctx context.Context, sessionID, callerID string) error
	SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error)
	AdvanceRound(ctx context.Context, sessionID, callerID string, fromIndex int) error
	LeaveSession(ctx context.Context, sessionID, participantID string) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetQuestionState(ctx context.Context, sessionID string) (domain.QuestionState, error)
	GetLiveLeaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error)
	GetGlobalLeaderboard(ctx context.Context, quizID string) ([]domain.GlobalLeaderboardEntry, error)
	SubscribeSession(ctx context.Context, sessionID string, fn func(domain.Session)) (func(), error)
	SubscribeQuestionState(ctx context.Context, sessionID string, fn func(domain.QuestionState)) (func(), error)
}

type APIHandler struct {
	coord Coordinator
}

func NewAPIHandler(coord Coordinator) *APIHandler {
	return &APIHandler{coord: coord}
}

type hostRequest struct {
	QuizID   string `json:"quizId" binding:"required"`
	HostID   string `json:"hostId" binding:"required"`
	HostName string `json:"hostName" binding:"required"`
}

type joinRequest struct {
	GameCode      string `json:"gameCode" binding:"required"`
	ParticipantID string `json:"participantId" binding:"required"`
	DisplayName   string `json:"displayName" binding:"required"`
}

type callerRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

type advanceRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	// FromIndex guards against double advances. Omitted means the current question.
	FromIndex *int `json:"fromIndex"`
}

type answerRequest struct {
	ParticipantID  string  `json:"participantId" binding:"required"`
	QuestionIndex  int     `json:"questionIndex"`
	ChosenIndex    int     `json:"chosenIndex"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

type sessionResponse struct {
	Session       domain.Session        `json:"session"`
	QuestionState *domain.QuestionState `json:"questionState,omitempty"`
}

// Register mounts the REST routes on r.
func (h *APIHandler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/sessions", h.host)
	api.POST("/sessions/join", h.join)
	api.GET("/sessions/:id", h.session)
	api.POST("/sessions/:id/start", h.start)
	api.POST("/sessions/:id/advance", h.advance)
	api.POST("/sessions/:id/answers", h.answer)
	api.POST("/sessions/:id/leave", h.leave)
	api.GET("/sessions/:id/leaderboard", h.liveLeaderboard)
	api.GET("/leaderboard", h.globalLeaderboard)
}

func (h *APIHandler) host(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "quizId, hostId and hostName are required")
		return
	}
	res, err := h.coord.HostSession(c.Request.Context(), req.QuizID, req.HostID, req.HostName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *APIHandler) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "gameCode, participantId and displayName are required")
		return
	}
	res, err := h.coord.JoinSession(c.Request.Context(), req.GameCode, req.ParticipantID, req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *APIHandler) session(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := h.coord.GetSession(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := sessionResponse{Session: session}
	if session.Status != domain.StatusLobby {
		if state, err := h.coord.GetQuestionState(ctx, session.ID); err == nil {
			resp.QuestionState = &state
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIHandler) start(c *gin.Context) {
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "participantId is required")
		return
	}
	if err := h.coord.StartRound(c.Request.Context(), c.Param("id"), req.ParticipantID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) advance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "participantId is required")
		return
	}
	from := -1
	if req.FromIndex != nil {
		from = *req.FromIndex
	}
	if err := h.coord.AdvanceRound(c.Request.Context(), c.Param("id"), req.ParticipantID, from); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "participantId is required")
		return
	}
	res, err := h.coord.SubmitAnswer(c.Request.Context(), domain.AnswerSubmission{
		SessionID:      c.Param("id"),
		ParticipantID:  req.ParticipantID,
		QuestionIndex:  req.QuestionIndex,
		ChosenIndex:    req.ChosenIndex,
		ElapsedSeconds: req.ElapsedSeconds,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *APIHandler) leave(c *gin.Context) {
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "participantId is required")
		return
	}
	if err := h.coord.LeaveSession(c.Request.Context(), c.Param("id"), req.ParticipantID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) liveLeaderboard(c *gin.Context) {
	entries, err := h.coord.GetLiveLeaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *APIHandler) globalLeaderboard(c *gin.Context) {
	entries, err := h.coord.GetGlobalLeaderboard(c.Request.Context(), c.Query("quizId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
