package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ragchat/internal/models"
	"ragchat/internal/workflow"
)

type queryRequest struct {
	Question *string `json:"question"`
	ThreadID string  `json:"thread_id"`
}

// queryResponse is the turn result as exposed to clients; the transcript stays server-side.
type queryResponse struct {
	Query         string   `json:"query"`
	ThreadID      string   `json:"thread_id"`
	Answer        string   `json:"answer"`
	Headline      string   `json:"headline"`
	RetrievedDocs []string `json:"retrieved_docs"`
}

func (h *Handler) query(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", "Please send a JSON body.")
		return
	}
	if req.Question == nil {
		badRequest(c, "No question provided", "Please provide a question.")
		return
	}
	question := strings.TrimSpace(*req.Question)
	if question == "" {
		badRequest(c, "Empty question", "Please provide a non-empty question.")
		return
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		badRequest(c, "No thread_id provided", "Please provide a thread_id.")
		return
	}

	ctx := c.Request.Context()
	found, err := h.threads.EnsureThread(ctx, threadID, userID)
	if err != nil {
		h.logger.Error("ensure thread", zap.String("thread_id", threadID), zap.String("user_id", userID), zap.Error(err))
		internalError(c)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	result, err := h.turns.Run(ctx, workflow.Input{Query: question, ThreadID: threadID, UserID: userID})
	if err != nil {
		h.logger.Error("run turn", zap.String("thread_id", threadID), zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "failed to process query",
			"response": "Sorry, I encountered an error processing your request.",
		})
		return
	}
	if result.HeadlineGenerated {
		if _, err := h.threads.SetHeadlineOnce(ctx, threadID, userID, result.Headline); err != nil {
			h.logger.Warn("set headline", zap.String("thread_id", threadID), zap.Error(err))
		}
	}
	docs := result.RetrievedDocs
	if docs == nil {
		docs = []string{}
	}
	c.JSON(http.StatusOK, queryResponse{
		Query:         result.Query,
		ThreadID:      result.ThreadID,
		Answer:        result.Answer,
		Headline:      result.Headline,
		RetrievedDocs: docs,
	})
}

type threadRequest struct {
	ThreadID string `json:"thread_id"`
}

func bindThreadID(c *gin.Context) (string, bool) {
	var req threadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", "Please send a JSON body.")
		return "", false
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		badRequest(c, "No thread_id provided", "Please provide a thread_id.")
		return "", false
	}
	return threadID, true
}

func (h *Handler) threadHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	threadID, ok := bindThreadID(c)
	if !ok {
		return
	}
	history, err := h.threads.LoadHistory(c.Request.Context(), threadID, userID)
	if err != nil {
		h.logger.Error("load history", zap.String("thread_id", threadID), zap.Error(err))
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) userThreads(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	threads, err := h.threads.ListActive(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list threads", zap.String("user_id", userID), zap.Error(err))
		internalError(c)
		return
	}
	if threads == nil {
		threads = make([]models.ThreadSummary, 0)
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "threads": threads})
}

func (h *Handler) deleteThread(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	threadID, ok := bindThreadID(c)
	if !ok {
		return
	}
	found, err := h.threads.Deactivate(c.Request.Context(), threadID, userID)
	if err != nil {
		h.logger.Error("deactivate thread", zap.String("thread_id", threadID), zap.Error(err))
		internalError(c)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Thread not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Thread deleted successfully"})
}
