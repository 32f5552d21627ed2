package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/russross/blackfriday/v2"
	"go.uber.org/zap"

	"nl2sql/internal/audit"
	"nl2sql/internal/dba"
	"nl2sql/internal/models"
	"nl2sql/internal/pipeline"
	"nl2sql/internal/sqlguard"
)

func handlePing(c *gin.Context) {
	c.String(http.StatusOK, "pong! nl2sql is at your command")
}

func (s *Server) handleQuery(c *gin.Context) {
	var request models.QueryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := s.Pipeline.Ask(c.Request.Context(), request.SessionID, request.Question)
	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error("query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"answer": answer, "execution_time": pipeline.FormatExecutionTime(answer.ExecutionTime)}
	if request.Format == "html" && answer.Explanation != "" {
		resp["explanation_html"] = string(blackfriday.Run([]byte(answer.Explanation)))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResolve(c *gin.Context) {
	var request models.ResolveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.Pipeline.Resolve(c.Request.Context(), request.Question, request.MaxAttempts)
	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"result": res}
	if !res.Accepted() {
		resp["failure"] = res.Failure()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleValidate(c *gin.Context) {
	var request models.ValidateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := sqlguard.ParseMode(request.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict := sqlguard.Check(request.SQL, mode)
	resp := gin.H{
		"is_safe":    verdict.IsSafe,
		"issues":     verdict.Issues,
		"query_type": sqlguard.QueryType(request.SQL).String(),
		"complexity": sqlguard.Complexity(request.SQL),
		"tables":     sqlguard.ExtractTables(request.SQL),
	}
	if s.Schema != nil {
		if names, err := s.Schema.TableNames(c.Request.Context()); err == nil {
			_, unknown := sqlguard.ValidateTables(request.SQL, names)
			resp["unknown_tables"] = unknown
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSchema(c *gin.Context) {
	if s.Schema == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "schema not available"})
		return
	}
	var relevant []string
	if t := c.Query("tables"); t != "" {
		for _, name := range strings.Split(t, ",") {
			if name = strings.TrimSpace(name); name != "" {
				relevant = append(relevant, name)
			}
		}
	}
	ctx := c.Request.Context()
	text, err := s.Schema.BuildContext(ctx, relevant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	names, err := s.Schema.TableNames(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": names, "context": text})
}

func (s *Server) handleAuditTrail(c *gin.Context) {
	var q models.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := s.Audit.Trail(c.Request.Context(), audit.Filter{Limit: q.Limit, Mode: q.Mode, SuccessOnly: q.SuccessOnly})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleAuditStats(c *gin.Context) {
	stats, err := s.Audit.Statistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListProposals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"proposals": s.Approvals.Pending()})
}

func (s *Server) handlePropose(c *gin.Context) {
	user := c.MustGet(gin.AuthUserKey).(string)
	var request models.ProposalRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.Approvals.Propose(c.Request.Context(), request.Question, request.SQL, user)
	if err != nil {
		c.JSON(proposalStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleApprove(c *gin.Context) {
	user := c.MustGet(gin.AuthUserKey).(string)
	p, err := s.Approvals.Approve(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		c.JSON(proposalStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleReject(c *gin.Context) {
	user := c.MustGet(gin.AuthUserKey).(string)
	p, err := s.Approvals.Reject(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		c.JSON(proposalStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func proposalStatus(err error) int {
	switch {
	case errors.Is(err, dba.ErrUnknownProposal):
		return http.StatusNotFound
	case errors.Is(err, dba.ErrProposalExpired):
		return http.StatusGone
	case errors.Is(err, dba.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, dba.ErrUnsafeStatement):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDocument(c *gin.Context) {
	var request models.DocumentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), documentJobTimeout)
		defer cancel()
		n, err := s.Documents.IngestDocument(ctx, request.Source)
		if err != nil {
			s.Logger.Error("error processing document embeddings", zap.String("source", request.Source), zap.Error(err))
			return
		}
		s.Logger.Info("document indexed", zap.String("source", request.Source), zap.Int("chunks", n))
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "ok", "message": "Processing started"})
}
