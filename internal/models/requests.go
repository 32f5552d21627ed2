package models

// QueryRequest asks a question end to end.
type QueryRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
	Format    string `json:"format,omitempty" binding:"omitempty,oneof=markdown html"`
}

// ResolveRequest only produces SQL for a question.
type ResolveRequest struct {
	Question    string `json:"question" binding:"required"`
	MaxAttempts int    `json:"max_attempts,omitempty" binding:"omitempty,min=1,max=10"`
}

// ValidateRequest runs the safety guard over a statement.
type ValidateRequest struct {
	SQL  string `json:"sql" binding:"required"`
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=readonly dba"`
}

// ProposalRequest parks a privileged statement for approval.
type ProposalRequest struct {
	Question string `json:"question,omitempty"`
	SQL      string `json:"sql" binding:"required"`
}

// DocumentRequest ingests a data-dictionary file by IPFS CID or local path.
type DocumentRequest struct {
	Source string `json:"source" binding:"required"`
}

// AuditQuery filters the audit trail.
type AuditQuery struct {
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Mode        string `form:"mode" binding:"omitempty,oneof=readonly dba"`
	SuccessOnly bool   `form:"success_only"`
}
