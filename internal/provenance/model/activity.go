package model

import "time"

// Audit action tags.
const (
	ActionProductCreate      = "product.create"
	ActionCheckpointAppend   = "checkpoint.append"
	ActionCheckpointRejected = "checkpoint.rejected"
	ActionUserVerify         = "user.verify"
	ActionAuditList          = "audit.list"
	ActionSuspiciousList     = "suspicious.list"
	ActionAccountsPending    = "accounts.pending"
	ActionChainVerify        = "chain.verify"
)

// AuditLogEntry is one immutable record of an attempted mutation.
// ID ordering is authoritative.
type AuditLogEntry struct {
	ID        int64     `json:"id"        db:"id"`
	ActorID   string    `json:"actor_id"  db:"actor_id"`
	Action    string    `json:"action"    db:"action"`
	Details   string    `json:"details"   db:"details"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// SubjectType names what a suspicious-activity record is about.
type SubjectType string

const (
	SubjectProduct SubjectType = "product"
	SubjectAccount SubjectType = "account"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SuspiciousActivityRecord is an advisory finding produced by the detector.
type SuspiciousActivityRecord struct {
	ID          int64       `json:"id"           db:"id"`
	SubjectType SubjectType `json:"subject_type" db:"subject_type"`
	SubjectID   string      `json:"subject_id"   db:"subject_id"`
	Reason      string      `json:"reason"       db:"reason"`
	Details     string      `json:"details"      db:"details"`
	Severity    Severity    `json:"severity"     db:"severity"`
	Timestamp   time.Time   `json:"timestamp"    db:"timestamp"`
}
