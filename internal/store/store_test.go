package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLeadStatusTerminal(t *testing.T) {
	tests := []struct {
		status   LeadStatus
		terminal bool
	}{
		{LeadStatusNew, false},
		{LeadStatusContacted, false},
		{LeadStatusQualified, false},
		{LeadStatusProposal, false},
		{LeadStatusStale, false},
		{LeadStatusWon, true},
		{LeadStatusLost, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestSQLiteLeadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rep := uuid.New()
	lead := &Lead{CompanyID: uuid.New(), CompanyName: "TechCorp", AssignedTo: &rep}
	require.NoError(t, s.CreateLead(ctx, lead))
	assert.NotEqual(t, uuid.Nil, lead.ID)

	got, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TechCorp", got.CompanyName)
	assert.Equal(t, LeadStatusNew, got.Status)
	assert.Equal(t, 0, got.Version)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, rep, *got.AssignedTo)
	assert.Nil(t, got.LastContactedAt)

	missing, err := s.GetLead(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteCreateLeadKeepsSuppliedID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.New()
	lead := &Lead{ID: id, CompanyID: uuid.New(), CompanyName: "Imported Co"}
	require.NoError(t, s.CreateLead(ctx, lead))
	assert.Equal(t, id, lead.ID)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Imported Co", got.CompanyName)
}

func TestSQLiteReassignLeadVersionGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lead := &Lead{CompanyID: uuid.New(), CompanyName: "Acme"}
	require.NoError(t, s.CreateLead(ctx, lead))

	first := uuid.New()
	updated, err := s.ReassignLead(ctx, lead.ID, 0, first)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, first, *updated.AssignedTo)
	assert.Equal(t, 1, updated.Version)

	// A writer still holding version 0 loses.
	_, err = s.ReassignLead(ctx, lead.ID, 0, uuid.New())
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *got.AssignedTo)
	assert.Equal(t, 1, got.Version)
}

func TestSQLiteListStaleLeads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	company := uuid.New()

	old := time.Now().Add(-96 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	stale := &Lead{CompanyID: company, CompanyName: "Old Co", LastContactedAt: &old}
	fresh := &Lead{CompanyID: company, CompanyName: "New Co", LastContactedAt: &recent}
	won := &Lead{CompanyID: company, CompanyName: "Won Co", Status: LeadStatusWon, LastContactedAt: &old}
	for _, l := range []*Lead{stale, fresh, won} {
		require.NoError(t, s.CreateLead(ctx, l))
	}

	leads, err := s.ListStaleLeads(ctx, time.Now().Add(-72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, stale.ID, leads[0].ID)
}

func TestSQLiteListRepMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	company := uuid.New()

	withMetrics := &Profile{CompanyID: company, DisplayName: "Ava", Role: RoleSalesRep}
	noMetrics := &Profile{CompanyID: company, DisplayName: "Ben", Role: RoleSalesRep}
	manager := &Profile{CompanyID: company, DisplayName: "Mia", Role: RoleManager}
	other := &Profile{CompanyID: uuid.New(), DisplayName: "Zed", Role: RoleSalesRep}
	for _, p := range []*Profile{withMetrics, noMetrics, manager, other} {
		require.NoError(t, s.UpsertProfile(ctx, p))
	}
	require.NoError(t, s.UpsertRepMetrics(ctx, &RepMetrics{
		RepID: withMetrics.ID, CloseRate: 80, ResponseTimeSeconds: 30, Workload: 10,
		Specialties: []string{"tech", "saas"},
	}))

	metrics, err := s.ListRepMetrics(ctx, company)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	byID := map[uuid.UUID]*RepMetrics{}
	for _, m := range metrics {
		byID[m.RepID] = m
	}
	ava := byID[withMetrics.ID]
	require.NotNil(t, ava)
	assert.Equal(t, "Ava", ava.DisplayName)
	assert.Equal(t, 80.0, ava.CloseRate)
	assert.Equal(t, 10, ava.Workload)
	assert.Equal(t, []string{"tech", "saas"}, ava.Specialties)

	ben := byID[noMetrics.ID]
	require.NotNil(t, ben)
	assert.Equal(t, 0.0, ben.CloseRate)
	assert.Empty(t, ben.Specialties)

	managers, err := s.ListProfilesByRole(ctx, company, RoleManager)
	require.NoError(t, err)
	require.Len(t, managers, 1)
	assert.Equal(t, manager.ID, managers[0].ID)
}

func TestSQLiteNotificationsAndBrainLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	lead := uuid.New()

	require.NoError(t, s.CreateNotification(ctx, &Notification{
		UserID: user, CompanyID: uuid.New(), Kind: "lead_reassigned", Title: "New lead",
		Payload: map[string]interface{}{"lead_id": lead.String()},
	}))
	notes, err := s.ListNotifications(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "lead_reassigned", notes[0].Kind)
	assert.False(t, notes[0].Read)
	assert.Equal(t, lead.String(), notes[0].Payload["lead_id"])

	require.NoError(t, s.CreateBrainLog(ctx, &BrainLog{
		CompanyID: uuid.New(), LeadID: &lead, Action: "lead_reassigned",
		Payload: map[string]interface{}{"confidence": 0.9},
	}))
	logs, err := s.ListBrainLogs(ctx, lead)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 0.9, logs[0].Payload["confidence"])
}

func TestSQLiteClaimDueActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	later := &ScheduledAction{CompanyID: uuid.New(), Kind: ActionSMS, ScheduledFor: now.Add(-time.Minute)}
	earlier := &ScheduledAction{CompanyID: uuid.New(), Kind: ActionFollowUpCall, ScheduledFor: now.Add(-time.Hour)}
	future := &ScheduledAction{CompanyID: uuid.New(), Kind: ActionEmail, ScheduledFor: now.Add(time.Hour)}
	for _, a := range []*ScheduledAction{later, earlier, future} {
		require.NoError(t, s.CreateScheduledAction(ctx, a))
	}

	claimed, err := s.ClaimDueActions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, earlier.ID, claimed[0].ID)
	assert.Equal(t, later.ID, claimed[1].ID)
	for _, a := range claimed {
		assert.Equal(t, ActionDispatched, a.Status)
		assert.Equal(t, 1, a.Attempts)
		assert.NotNil(t, a.ClaimedAt)
	}

	// Already-claimed rows are not handed out twice.
	again, err := s.ClaimDueActions(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	ok, err := s.CompleteScheduledAction(ctx, earlier.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := s.GetScheduledAction(ctx, earlier.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, got.Status)
}

func TestSQLiteRequeueStaleActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := &ScheduledAction{CompanyID: uuid.New(), Kind: ActionSMS, ScheduledFor: now.Add(-time.Minute)}
	require.NoError(t, s.CreateScheduledAction(ctx, a))

	// Attempt 1: claimed, never completed, requeued.
	_, err := s.ClaimDueActions(ctx, now, 10)
	require.NoError(t, err)
	requeued, failed, err := s.RequeueStaleActions(ctx, now.Add(time.Second), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 0, failed)

	got, err := s.GetScheduledAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionPending, got.Status)
	assert.Nil(t, got.ClaimedAt)

	// Attempt 2 reaches maxAttempts and fails.
	_, err = s.ClaimDueActions(ctx, now, 10)
	require.NoError(t, err)
	requeued, failed, err = s.RequeueStaleActions(ctx, now.Add(time.Second), 2)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)
	assert.Equal(t, 1, failed)

	got, err = s.GetScheduledAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "delivery attempts exhausted", got.LastError)
}

func TestSQLiteFailScheduledAction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &ScheduledAction{CompanyID: uuid.New(), Kind: ActionEmail, ScheduledFor: time.Now()}
	require.NoError(t, s.CreateScheduledAction(ctx, a))
	ok, err := s.FailScheduledAction(ctx, a.ID, "smtp rejected")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetScheduledAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionFailed, got.Status)
	assert.Equal(t, "smtp rejected", got.LastError)

	// Completing or re-failing a failed action changes nothing.
	ok, err = s.CompleteScheduledAction(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.FailScheduledAction(ctx, a.ID, "again")
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = s.GetScheduledAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionFailed, got.Status)
}

func TestSQLiteAgentTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &AgentTask{Agent: "lead_scorer", TaskType: "score_lead", Input: map[string]interface{}{"lead": "x"}}
	require.NoError(t, s.CreateAgentTask(ctx, task))
	assert.Equal(t, AgentTaskPending, task.Status)

	done := time.Now().UTC()
	task.Status = AgentTaskCompleted
	task.Output = map[string]interface{}{"score": 87.0}
	task.CompletedAt = &done
	require.NoError(t, s.UpdateAgentTask(ctx, task))

	got, err := s.GetAgentTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, AgentTaskCompleted, got.Status)
	assert.Equal(t, 87.0, got.Output["score"])
	assert.Equal(t, "x", got.Input["lead"])
	require.NotNil(t, got.CompletedAt)

	missing, err := s.GetAgentTask(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
