package interfaces

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"

	"frq-generator/application"
	"frq-generator/domain"
)

const (
	defaultUserID = "AI-user"
	defaultTopic  = "baseball"
)

// ContentStore is the read and write surface the HTTP API needs.
type ContentStore interface {
	PutAttempt(ctx context.Context, a *domain.QuestionAttempt) error
	PutEvaluation(ctx context.Context, e *domain.EvaluationRecord) error
	GetFinalAttempt(ctx context.Context, questionID string) (*domain.QuestionAttempt, error)
	ListAttempts(ctx context.Context, questionID string) ([]*domain.QuestionAttempt, error)
	ListEvaluations(ctx context.Context, questionID, graderID string) ([]*domain.EvaluationRecord, error)
	ListAllAttempts(ctx context.Context) ([]*domain.QuestionAttempt, error)
}

type Publisher interface {
	PublishGeneration(ctx context.Context, job domain.GenerationJob) error
	PublishEvaluation(ctx context.Context, job domain.EvaluationJob) error
}

type OrderQuestionRequest struct {
	UserID string `json:"userId"`
	Topic  string `json:"topic"`
}

type OrderEvaluationRequest struct {
	Response string `json:"response"`
}

type QuestionResponse struct {
	QuestionID string               `json:"id"`
	Type       string               `json:"type"`
	Iteration  int                  `json:"iteration"`
	Topic      string               `json:"topic"`
	OwnerID    string               `json:"userId"`
	State      domain.QuestionState `json:"state"`
	Content    any                  `json:"content"`
	CreatedAt  time.Time            `json:"createdAt"`
}

type EvaluationResponse struct {
	QuestionID   string                 `json:"id"`
	Type         string                 `json:"type"`
	EvaluationID string                 `json:"evaluationId"`
	GraderID     string                 `json:"userId"`
	State        domain.EvaluationState `json:"state"`
	Content      any                    `json:"content"`
	CreatedAt    time.Time              `json:"createdAt"`
}

type HTTPHandler struct {
	Store     ContentStore
	Publisher Publisher
	logger    zerolog.Logger
}

func NewHTTPHandler(router *gin.Engine, store ContentStore, publisher Publisher, logger zerolog.Logger) {
	h := &HTTPHandler{
		Store:     store,
		Publisher: publisher,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	router.POST("/frq", h.OrderQuestion)
	router.GET("/frq/:id", h.GetQuestion)
	router.GET("/frq/:id/debug", h.GetQuestionDebug)
	router.GET("/metrics", h.GetMetrics)
	router.POST("/evaluate/:id/:userId", h.OrderEvaluation)
	router.GET("/evaluate/:id/:userId", h.GetEvaluations)
}

// OrderQuestion writes the pending placeholder and queues its generation.
func (h *HTTPHandler) OrderQuestion(c *gin.Context) {
	var req OrderQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = defaultUserID
	}
	if strings.TrimSpace(req.Topic) == "" {
		req.Topic = defaultTopic
	}

	ctx := c.Request.Context()
	job := domain.GenerationJob{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Topic:     req.Topic,
		RequestID: uuid.NewString(),
	}

	if err := h.Store.PutAttempt(ctx, domain.NewPendingAttempt(job.ID, job.Topic, job.UserID, job.RequestID)); err != nil {
		h.logger.Error().Err(err).Str("question_id", job.ID).Msg("failed to store placeholder")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save question"})
		return
	}

	if err := h.Publisher.PublishGeneration(ctx, job); err != nil {
		h.logger.Error().Err(err).Str("question_id", job.ID).Msg("failed to publish generation request")
		if err := h.Store.PutAttempt(context.WithoutCancel(ctx), domain.NewFailedAttempt(job.ID, job.Topic, job.UserID, job.RequestID)); err != nil {
			h.logger.Error().Err(err).Str("question_id", job.ID).Msg("failed to mark question failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue question generation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": job.ID})
}

func (h *HTTPHandler) GetQuestion(c *gin.Context) {
	a, err := h.Store.GetFinalAttempt(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	resp, err := toQuestionResponse(a)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetQuestionDebug returns every attempt of a question, rejected ones included.
func (h *HTTPHandler) GetQuestionDebug(c *gin.Context) {
	attempts, err := h.Store.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, err)
		return
	}
	if len(attempts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}

	questions := make([]QuestionResponse, 0, len(attempts))
	for _, a := range attempts {
		resp, err := toQuestionResponse(a)
		if err != nil {
			h.internalError(c, err)
			return
		}
		questions = append(questions, resp)
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions, "iterations": len(questions)})
}

func (h *HTTPHandler) GetMetrics(c *gin.Context) {
	attempts, err := h.Store.ListAllAttempts(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, application.Summarize(attempts))
}

// OrderEvaluation writes a pending evaluation for the learner and queues the grading.
func (h *HTTPHandler) OrderEvaluation(c *gin.Context) {
	var req OrderEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Response) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "response not provided"})
		return
	}

	ctx := c.Request.Context()
	questionID, userID := c.Param("id"), c.Param("userId")

	question, err := h.Store.GetFinalAttempt(ctx, questionID)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	if question.State == domain.QuestionFailed {
		c.JSON(http.StatusGone, gin.H{"error": domain.StatusUnableToGenerate})
		return
	}

	job := domain.EvaluationJob{
		ID:           questionID,
		EvaluationID: uuid.NewString(),
		UserID:       userID,
		Response:     req.Response,
	}
	if err := h.Store.PutEvaluation(ctx, domain.NewPendingEvaluation(questionID, job.EvaluationID, userID)); err != nil {
		h.internalError(c, err)
		return
	}

	if err := h.Publisher.PublishEvaluation(ctx, job); err != nil {
		h.logger.Error().Err(err).Str("evaluation_id", job.EvaluationID).Msg("failed to publish evaluation request")
		failed := domain.NewFailedEvaluation(questionID, job.EvaluationID, userID, "failed to queue evaluation")
		if err := h.Store.PutEvaluation(context.WithoutCancel(ctx), failed); err != nil {
			h.logger.Error().Err(err).Str("evaluation_id", job.EvaluationID).Msg("failed to mark evaluation failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue evaluation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"evaluationId": job.EvaluationID})
}

func (h *HTTPHandler) GetEvaluations(c *gin.Context) {
	records, err := h.Store.ListEvaluations(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.internalError(c, err)
		return
	}

	out := make([]EvaluationResponse, 0, len(records))
	for _, e := range records {
		resp, err := toEvaluationResponse(e)
		if err != nil {
			h.internalError(c, err)
			return
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) internalError(c *gin.Context, err error) {
	h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func toQuestionResponse(a *domain.QuestionAttempt) (QuestionResponse, error) {
	var resp QuestionResponse
	if err := copier.Copy(&resp, a); err != nil {
		return QuestionResponse{}, fmt.Errorf("render question: %w", err)
	}
	resp.Type = domain.QuestionKey(a.Iteration)
	resp.Content = domain.QuestionContent(a)
	return resp, nil
}

func toEvaluationResponse(e *domain.EvaluationRecord) (EvaluationResponse, error) {
	var resp EvaluationResponse
	if err := copier.Copy(&resp, e); err != nil {
		return EvaluationResponse{}, fmt.Errorf("render evaluation: %w", err)
	}
	resp.Type = domain.EvaluationKey(e.EvaluationID)
	resp.Content = domain.EvaluationContent(e)
	return resp, nil
}
