package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docmentor/docmentor/internal/agent"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	generatorStatus := "ok"
	if err := s.chat.CheckHealth(ctx); err != nil {
		generatorStatus = "unavailable"
		s.logger.Warn("generator health check failed", "error", err)
	}

	stats := s.pipeline.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   Version,
		"generator": generatorStatus,
		"documents": stats.Documents,
		"chunks":    stats.Chunks,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipeline.Stats())
}

func (s *Server) handleListDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": s.pipeline.ListDocuments()})
}

// AddDocumentRequest adds a document either from inline text or from a
// file under the server's ingest root.
type AddDocumentRequest struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Path    string `json:"path"`
	Replace bool   `json:"replace"`
}

func (s *Server) handleAddDocument(c *gin.Context) {
	var req AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()

	if req.Path != "" {
		path, err := s.resolveIngestPath(req.Path)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		id, err := s.pipeline.ProcessFile(ctx, path)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.respondDocument(c, id)
		return
	}

	if req.ID == "" {
		badRequest(c, errors.New("either path or id is required"))
		return
	}

	var err error
	if req.Replace {
		err = s.pipeline.Reingest(ctx, req.ID, req.Text)
	} else {
		err = s.pipeline.ProcessDocument(ctx, req.ID, req.Text)
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.respondDocument(c, req.ID)
}

func (s *Server) respondDocument(c *gin.Context, id string) {
	chunks, err := s.pipeline.Chunks(id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":     id,
		"chunks": len(chunks),
	})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	id := c.Param("id")
	chunks, err := s.pipeline.Chunks(id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"chunks": chunks,
	})
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := s.pipeline.RemoveDocument(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "removed": true})
}

// SearchRequest represents a search request
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// handleSearch returns the chunks nearest to the query
func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results, err := s.pipeline.SearchRelatedChunks(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   req.Query,
		"results": results,
	})
}

// TopKRequest changes the default result count
type TopKRequest struct {
	TopK int `json:"top_k" binding:"required"`
}

func (s *Server) handleUpdateTopK(c *gin.Context) {
	var req TopKRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.pipeline.UpdateTopK(req.TopK); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"top_k": req.TopK})
}

// handleCreateSession starts a chat session with its own history
func (s *Server) handleCreateSession(c *gin.Context) {
	generator := s.config.Generator
	generator.Mode = string(agent.ModeChat)

	ragAgent, err := agent.NewRAGAgent(s.pipeline, s.chat, generator, agent.WithLogger(s.logger))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		Agent:     ragAgent,
		CreatedAt: now,
		LastUsed:  now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"created_at": session.CreatedAt,
	})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	sessionID := c.Param("id")

	s.mu.Lock()
	_, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "SessionNotFound", "message": "session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, ok := s.session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "SessionNotFound", "message": "session not found"})
		return
	}

	s.mu.RLock()
	lastUsed := session.LastUsed
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"messages":   len(session.Agent.History()),
		"created_at": session.CreatedAt,
		"last_used":  lastUsed,
	})
}

func (s *Server) session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// agentFor returns the session agent, or the stateless QA agent when
// sessionID is empty.
func (s *Server) agentFor(c *gin.Context, sessionID string) (*agent.RAGAgent, bool) {
	if sessionID == "" {
		return s.qa, true
	}
	session, ok := s.session(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "SessionNotFound", "message": "session not found"})
		return nil, false
	}

	s.mu.Lock()
	session.LastUsed = time.Now()
	s.mu.Unlock()
	return session.Agent, true
}

// ChatRequest represents a chat request
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
	TopK      int    `json:"top_k"`
}

// handleChat handles non-streaming chat requests
func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ragAgent, ok := s.agentFor(c, req.SessionID)
	if !ok {
		return
	}

	answer, err := ragAgent.Ask(c.Request.Context(), req.Message, req.TopK)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// handleChatStream handles SSE streaming chat requests
func (s *Server) handleChatStream(c *gin.Context) {
	message := c.Query("message")
	if message == "" {
		badRequest(c, errors.New("message is required"))
		return
	}

	ragAgent, ok := s.agentFor(c, c.Query("session_id"))
	if !ok {
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sources, err := ragAgent.AskStream(c.Request.Context(), message, 0, func(content string, done bool) error {
		if !done {
			c.SSEvent("message", content)
			c.Writer.Flush()
		}
		return nil
	})
	if err != nil {
		_, kind := statusFor(err)
		s.logger.Warn("stream failed", "request_id", c.GetString("request_id"), "kind", kind, "error", err)
		c.SSEvent("error", kind)
		c.Writer.Flush()
		return
	}

	c.SSEvent("sources", sources)
	c.SSEvent("done", "")
	c.Writer.Flush()
}
