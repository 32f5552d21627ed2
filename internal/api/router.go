package api

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nl2sql/internal/audit"
	"nl2sql/internal/dba"
	"nl2sql/internal/pipeline"
	"nl2sql/internal/resolve"
)

type Asker interface {
	Ask(ctx context.Context, session, question string) (pipeline.Answer, error)
	Resolve(ctx context.Context, question string, maxAttempts int) (resolve.Result, error)
}

type SchemaReader interface {
	BuildContext(ctx context.Context, relevant []string) (string, error)
	TableNames(ctx context.Context) ([]string, error)
}

type Approvals interface {
	Propose(ctx context.Context, question, sql, requester string) (dba.Proposal, error)
	Approve(ctx context.Context, id, approver string) (dba.Proposal, error)
	Reject(ctx context.Context, id, approver string) (dba.Proposal, error)
	Pending() []dba.Proposal
}

type DocumentIngester interface {
	IngestDocument(ctx context.Context, source string) (int, error)
}

// Server holds what the handlers need. Approvals, Documents and Audit are
// optional; their routes are only registered when set. Admin routes require
// Accounts.
type Server struct {
	Pipeline  Asker
	Schema    SchemaReader
	Audit     *audit.Logger
	Approvals Approvals
	Documents DocumentIngester
	Accounts  gin.Accounts
	RPS       float64
	Burst     int
	Logger    *zap.Logger

	jobs sync.WaitGroup
}

// SetupRouter builds the engine with tracing, metrics, access logging and a
// rate limit on the /v1 routes.
func (s *Server) SetupRouter() *gin.Engine {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("nl2sql"))
	router.Use(observe(s.Logger))

	router.GET("/ping", handlePing)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if s.RPS > 0 {
		v1.Use(rateLimit(rate.NewLimiter(rate.Limit(s.RPS), max(s.Burst, 1))))
	}
	v1.POST("/query", s.handleQuery)
	v1.POST("/sql/resolve", s.handleResolve)
	v1.POST("/sql/validate", s.handleValidate)
	v1.GET("/schema", s.handleSchema)

	if len(s.Accounts) == 0 {
		return router
	}
	admin := v1.Group("/", gin.BasicAuth(s.Accounts))
	if s.Audit != nil {
		admin.GET("/audit", s.handleAuditTrail)
		admin.GET("/audit/stats", s.handleAuditStats)
	}
	if s.Approvals != nil {
		admin.GET("/dba/proposals", s.handleListProposals)
		admin.POST("/dba/proposals", s.handlePropose)
		admin.POST("/dba/proposals/:id/approve", s.handleApprove)
		admin.POST("/dba/proposals/:id/reject", s.handleReject)
	}
	if s.Documents != nil {
		admin.POST("/documents", s.handleDocument)
	}
	return router
}

// Wait blocks until background document jobs finish or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const documentJobTimeout = 10 * time.Minute
