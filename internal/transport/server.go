// Package transport carries questions between the evaluation harness and the
// orchestration loop over HTTP.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
	"finbench/internal/logging"
)

// Asker answers one question. The orchestration engine satisfies this.
type Asker interface {
	Ask(ctx context.Context, q ports.Question) (ports.Answer, error)
}

// AskerFactory builds a fresh Asker per request so no per-question state is
// shared between concurrent cases.
type AskerFactory func() Asker

// AskRequest is the wire form of a question.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	CaseID   string `json:"case_id"`
}

// SourceDTO is one cited source on the wire.
type SourceDTO struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// AskResponse is the wire form of an answer.
type AskResponse struct {
	Text       string      `json:"text"`
	Sources    []SourceDTO `json:"sources"`
	Confidence string      `json:"confidence,omitempty"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Server exposes the agent over HTTP.
type Server struct {
	engine  *gin.Engine
	factory AskerFactory
	logger  logging.Logger
	httpSrv *http.Server
}

// NewServer builds the HTTP server around an asker factory.
func NewServer(factory AskerFactory, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	s := &Server{
		engine:  engine,
		factory: factory,
		logger:  logging.OrNop(logger),
	}

	engine.GET("/readyz", s.handleReady)
	engine.POST("/api/ask", s.handleAsk)
	return s
}

// Handler returns the underlying handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is required",
			Kind:  string(finerrors.KindInvalidArguments),
		})
		return
	}

	started := time.Now()
	answer, err := s.factory().Ask(c.Request.Context(), ports.Question{
		Text:   req.Question,
		CaseID: req.CaseID,
	})
	if err != nil {
		kind := finerrors.KindOf(err)
		s.logger.Warn("ask failed: case=%s kind=%s err=%v", req.CaseID, kind, err)
		c.JSON(statusForKind(kind), ErrorResponse{Error: err.Error(), Kind: string(kind)})
		return
	}

	s.logger.Info("ask ok: case=%s elapsed=%s sources=%d", req.CaseID, time.Since(started).Round(time.Millisecond), len(answer.Sources))
	c.JSON(http.StatusOK, toAskResponse(answer))
}

func toAskResponse(a ports.Answer) AskResponse {
	sources := make([]SourceDTO, 0, len(a.Sources))
	for _, src := range a.Sources {
		sources = append(sources, SourceDTO{URL: src.URL, Name: src.Name})
	}
	return AskResponse{
		Text:       a.Text,
		Sources:    sources,
		Confidence: string(a.Confidence),
	}
}

func statusForKind(kind finerrors.Kind) int {
	switch kind {
	case finerrors.KindInvalidArguments, finerrors.KindToolNotFound:
		return http.StatusBadRequest
	case finerrors.KindTimeout:
		return http.StatusGatewayTimeout
	case finerrors.KindTransientNetwork, finerrors.KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("agent server listening on %s", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}
