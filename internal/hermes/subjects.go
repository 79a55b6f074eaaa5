package hermes

const (
	// Wildcards used by subscribers.
	SubjectActionCompletedAll = "crm.action.*.completed"
	SubjectActionFailedAll    = "crm.action.*.failed"
	SubjectSchedulerStats     = "crm.scheduler.stats"

	StreamName   = "CRM_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

// Lead subjects
func SubjectLeadReassigned(leadID string) string { return "crm.lead." + leadID + ".reassigned" }
func SubjectLeadReassignDeclined(leadID string) string {
	return "crm.lead." + leadID + ".reassign_declined"
}

func SubjectNotificationCreated(userID string) string { return "crm.notification." + userID + ".created" }

// Scheduled action subjects. Due events are keyed by kind so workers can subscribe per channel;
// results are keyed by action id.
func SubjectActionDue(kind string) string          { return "crm.action." + kind + ".due" }
func SubjectActionCompleted(actionID string) string { return "crm.action." + actionID + ".completed" }
func SubjectActionFailed(actionID string) string    { return "crm.action." + actionID + ".failed" }

func SubjectAgentTask(agent, status string) string { return "crm.agent." + agent + ".task." + status }
