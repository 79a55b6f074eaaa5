package hermes

import "time"

type LeadReassignedEvent struct {
	LeadID      string  `json:"lead_id"`
	CompanyID   string  `json:"company_id"`
	FromRepID   string  `json:"from_rep_id,omitempty"`
	ToRepID     string  `json:"to_rep_id"`
	Trigger     string  `json:"trigger"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	Improvement string  `json:"improvement"`
	Version     int     `json:"version"`
}

type LeadReassignDeclinedEvent struct {
	LeadID     string  `json:"lead_id"`
	CompanyID  string  `json:"company_id"`
	Trigger    string  `json:"trigger"`
	Cause      string  `json:"cause"`
	Confidence float64 `json:"confidence,omitempty"`
	BestRepID  string  `json:"best_rep_id,omitempty"`
}

type NotificationCreatedEvent struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
}

type ActionDueEvent struct {
	ActionID     string                 `json:"action_id"`
	CompanyID    string                 `json:"company_id"`
	LeadID       string                 `json:"lead_id,omitempty"`
	Kind         string                 `json:"kind"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	ScheduledFor time.Time              `json:"scheduled_for"`
	Attempt      int                    `json:"attempt"`
}

// ActionResultEvent is what workers publish on crm.action.<id>.completed or .failed.
type ActionResultEvent struct {
	ActionID string `json:"action_id"`
	Error    string `json:"error,omitempty"`
}

type AgentTaskEvent struct {
	TaskID   string                 `json:"task_id"`
	Agent    string                 `json:"agent"`
	TaskType string                 `json:"task_type"`
	Status   string                 `json:"status"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type SchedulerStatsEvent struct {
	Dispatched int       `json:"dispatched"`
	Requeued   int       `json:"requeued"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}
