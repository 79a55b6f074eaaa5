package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned when a conditional lead update loses to a concurrent writer.
var ErrVersionConflict = errors.New("lead was modified concurrently")

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusProposal  LeadStatus = "proposal"
	LeadStatusWon       LeadStatus = "won"
	LeadStatusLost      LeadStatus = "lost"
	LeadStatusStale     LeadStatus = "stale"
)

// Terminal reports whether the lead is closed and no longer eligible for reassignment.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusWon || s == LeadStatusLost
}

type Lead struct {
	ID              uuid.UUID  `json:"id"`
	CompanyID       uuid.UUID  `json:"company_id"`
	CompanyName     string     `json:"company_name"`
	AssignedTo      *uuid.UUID `json:"assigned_to,omitempty"`
	Status          LeadStatus `json:"status"`
	Version         int        `json:"version"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Role string

const (
	RoleSalesRep Role = "sales_rep"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

type Profile struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// RepMetrics is the rep_metrics row joined with the rep's profile name.
type RepMetrics struct {
	RepID               uuid.UUID `json:"rep_id"`
	DisplayName         string    `json:"display_name"`
	CloseRate           float64   `json:"close_rate"`
	ResponseTimeSeconds float64   `json:"response_time_seconds"`
	Workload            int       `json:"workload"`
	Specialties         []string  `json:"specialties"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Notification struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"user_id"`
	CompanyID uuid.UUID              `json:"company_id"`
	Kind      string                 `json:"kind"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}

// BrainLog is an ai_brain_logs audit row.
type BrainLog struct {
	ID        uuid.UUID              `json:"id"`
	CompanyID uuid.UUID              `json:"company_id"`
	LeadID    *uuid.UUID             `json:"lead_id,omitempty"`
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type ActionKind string

const (
	ActionFollowUpCall ActionKind = "follow_up_call"
	ActionSMS          ActionKind = "sms"
	ActionEmail        ActionKind = "email"
)

type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionDispatched ActionStatus = "dispatched"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
)

type ScheduledAction struct {
	ID           uuid.UUID              `json:"id"`
	CompanyID    uuid.UUID              `json:"company_id"`
	LeadID       *uuid.UUID             `json:"lead_id,omitempty"`
	Kind         ActionKind             `json:"kind"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	ScheduledFor time.Time              `json:"scheduled_for"`
	Status       ActionStatus           `json:"status"`
	Attempts     int                    `json:"attempts"`
	LastError    string                 `json:"last_error,omitempty"`
	ClaimedAt    *time.Time             `json:"claimed_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

type AgentTaskStatus string

const (
	AgentTaskPending   AgentTaskStatus = "pending"
	AgentTaskRunning   AgentTaskStatus = "running"
	AgentTaskCompleted AgentTaskStatus = "completed"
	AgentTaskFailed    AgentTaskStatus = "failed"
)

type AgentTask struct {
	ID          uuid.UUID              `json:"id"`
	Agent       string                 `json:"agent"`
	TaskType    string                 `json:"task_type"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Status      AgentTaskStatus        `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

type Store interface {
	// CreateLead keeps a caller-supplied lead.ID and assigns one when it is nil.
	CreateLead(ctx context.Context, lead *Lead) error
	GetLead(ctx context.Context, id uuid.UUID) (*Lead, error)
	// ReassignLead sets assigned_to only if the row still carries expectedVersion.
	ReassignLead(ctx context.Context, leadID uuid.UUID, expectedVersion int, repID uuid.UUID) (*Lead, error)
	ListStaleLeads(ctx context.Context, contactedBefore time.Time, limit int) ([]*Lead, error)

	UpsertProfile(ctx context.Context, p *Profile) error
	ListProfilesByRole(ctx context.Context, companyID uuid.UUID, role Role) ([]*Profile, error)
	UpsertRepMetrics(ctx context.Context, m *RepMetrics) error
	ListRepMetrics(ctx context.Context, companyID uuid.UUID) ([]*RepMetrics, error)

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
	CreateBrainLog(ctx context.Context, l *BrainLog) error
	ListBrainLogs(ctx context.Context, leadID uuid.UUID) ([]*BrainLog, error)

	CreateScheduledAction(ctx context.Context, a *ScheduledAction) error
	GetScheduledAction(ctx context.Context, id uuid.UUID) (*ScheduledAction, error)
	// ClaimDueActions moves up to limit pending actions due at or before now to dispatched.
	ClaimDueActions(ctx context.Context, now time.Time, limit int) ([]*ScheduledAction, error)
	// CompleteScheduledAction and FailScheduledAction report false when the row
	// was not in a state the transition accepts.
	CompleteScheduledAction(ctx context.Context, id uuid.UUID) (bool, error)
	FailScheduledAction(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// RequeueStaleActions returns dispatched actions claimed before cutoff to pending,
	// or fails them once maxAttempts is reached.
	RequeueStaleActions(ctx context.Context, cutoff time.Time, maxAttempts int) (requeued int, failed int, err error)

	CreateAgentTask(ctx context.Context, t *AgentTask) error
	GetAgentTask(ctx context.Context, id uuid.UUID) (*AgentTask, error)
	UpdateAgentTask(ctx context.Context, t *AgentTask) error

	Close() error
}
