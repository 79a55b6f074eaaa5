package reassign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Reassign/internal/config"
	"github.com/MikeSquared-Agency/Reassign/internal/hermes"
	"github.com/MikeSquared-Agency/Reassign/internal/metrics"
	"github.com/MikeSquared-Agency/Reassign/internal/scoring"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// --- Mocks ---

type mockHermes struct {
	mu        sync.Mutex
	published []string
}

func (m *mockHermes) Publish(subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, subject)
	return nil
}

func (m *mockHermes) Subscribe(string, func(string, []byte)) error { return nil }
func (m *mockHermes) Close()                                       {}

func (m *mockHermes) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

func (m *mockHermes) count(prefix, suffix string) int {
	n := 0
	for _, s := range m.subjects() {
		if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*store.BrainLog
}

func (r *recordingSink) Record(_ context.Context, e *store.BrainLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}
func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) all() []*store.BrainLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*store.BrainLog(nil), r.entries...)
}

// stalledSink blocks every Record until release is closed or the context ends,
// like a Kafka cluster that accepts connections but never acks.
type stalledSink struct {
	release chan struct{}
	started chan struct{}
	recordingSink
}

func (s *stalledSink) Record(ctx context.Context, e *store.BrainLog) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.recordingSink.Record(ctx, e)
}

// racingStore bumps the lead's version right after it is read, as a concurrent
// writer would.
type racingStore struct {
	*store.SQLiteStore
}

func (r *racingStore) GetLead(ctx context.Context, id uuid.UUID) (*store.Lead, error) {
	lead, err := r.SQLiteStore.GetLead(ctx, id)
	if err != nil || lead == nil {
		return lead, err
	}
	if _, err := r.SQLiteStore.ReassignLead(ctx, id, lead.Version, uuid.New()); err != nil {
		return nil, err
	}
	return lead, nil
}

type failingNotifications struct {
	*store.SQLiteStore
}

func (f *failingNotifications) CreateNotification(context.Context, *store.Notification) error {
	return errors.New("notifications table unavailable")
}

// --- Fixtures ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Reassignment: config.ReassignmentConfig{
			ConfidenceThreshold: 0.7,
			StaleAfterHours:     72,
			SweepBatchSize:      100,
			NotifyManagers:      true,
		},
	}
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture struct {
	db      *store.SQLiteStore
	company uuid.UUID
	repA    uuid.UUID
	repB    uuid.UUID
	manager uuid.UUID
}

// seed creates the worked-example roster: A (80%, workload 10, tech) and
// B (40%, workload 30), plus one manager.
func seed(t *testing.T, db *store.SQLiteStore) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{db: db, company: uuid.New()}

	addRep := func(name string, closeRate float64, workload int, specialties ...string) uuid.UUID {
		p := &store.Profile{CompanyID: f.company, DisplayName: name, Role: store.RoleSalesRep}
		require.NoError(t, db.UpsertProfile(ctx, p))
		require.NoError(t, db.UpsertRepMetrics(ctx, &store.RepMetrics{
			RepID: p.ID, CloseRate: closeRate, Workload: workload, Specialties: specialties,
		}))
		return p.ID
	}
	f.repA = addRep("Ava", 80, 10, "tech")
	f.repB = addRep("Ben", 40, 30)

	m := &store.Profile{CompanyID: f.company, DisplayName: "Mia", Role: store.RoleManager}
	require.NoError(t, db.UpsertProfile(ctx, m))
	f.manager = m.ID
	return f
}

func (f fixture) lead(t *testing.T, name string, assigned *uuid.UUID) *store.Lead {
	t.Helper()
	l := &store.Lead{CompanyID: f.company, CompanyName: name, AssignedTo: assigned}
	require.NoError(t, f.db.CreateLead(context.Background(), l))
	return l
}

func newService(t *testing.T, s store.Store, h hermes.Client, sink *recordingSink, cfg *config.Config) *Service {
	t.Helper()
	sc, err := scoring.NewScorer(scoring.DefaultConfig(), discardLogger())
	require.NoError(t, err)
	if sink == nil {
		return New(s, h, nil, sc, metrics.New(prometheus.NewRegistry()), cfg, discardLogger())
	}
	return New(s, h, sink, sc, metrics.New(prometheus.NewRegistry()), cfg, discardLogger())
}

// --- Tests ---

func TestEvaluateReassignmentAppliesDecision(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	h := &mockHermes{}
	sink := &recordingSink{}
	svc := newService(t, db, h, sink, testConfig())
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repB)

	result, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerUnresponsive)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, f.repA, result.ToRepID)
	require.NotNil(t, result.FromRepID)
	assert.Equal(t, f.repB, *result.FromRepID)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.InDelta(t, 92, result.Score, 1e-9)
	assert.Equal(t, "Expected close rate improvement: 40.0%", result.ImprovementEstimate)
	assert.Contains(t, result.Reason, "unresponsive")
	assert.Equal(t, 1, result.Version)

	updated, err := db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, f.repA, *updated.AssignedTo)
	assert.Equal(t, 1, updated.Version)

	logs, err := db.ListBrainLogs(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionLeadReassigned, logs[0].Action)
	assert.Equal(t, f.repA.String(), logs[0].Payload["to_rep_id"])

	repNotes, err := db.ListNotifications(ctx, f.repA, 10)
	require.NoError(t, err)
	require.Len(t, repNotes, 1)
	assert.Equal(t, NotificationLeadAssigned, repNotes[0].Kind)

	mgrNotes, err := db.ListNotifications(ctx, f.manager, 10)
	require.NoError(t, err)
	require.Len(t, mgrNotes, 1)
	assert.Equal(t, NotificationLeadReassigned, mgrNotes[0].Kind)

	assert.Equal(t, 1, h.count("crm.lead."+lead.ID.String(), ".reassigned"))
	assert.Equal(t, 2, h.count("crm.notification.", ".created"))

	svc.Stop()
	assert.Len(t, sink.all(), 1)
}

func TestEvaluateReassignmentUnassignedLead(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	svc := newService(t, db, nil, nil, testConfig())

	lead := f.lead(t, "TechCorp", nil)
	result, err := svc.EvaluateReassignment(context.Background(), lead.ID, f.company, "manual")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.FromRepID)
	assert.Equal(t, "Expected close rate improvement: 80.0%", result.ImprovementEstimate)
	assert.Contains(t, result.Reason, "scored highest")
}

func TestEvaluateReassignmentSameRep(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	h := &mockHermes{}
	svc := newService(t, db, h, nil, testConfig())
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repA)
	result, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerStale)
	require.NoError(t, err)
	assert.Nil(t, result)

	got, err := db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Version)
	assert.Equal(t, 1, h.count("crm.lead.", ".reassign_declined"))

	logs, err := db.ListBrainLogs(ctx, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestEvaluateReassignmentAllOverloaded(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	company := uuid.New()
	for _, workload := range []int{51, 75} {
		p := &store.Profile{CompanyID: company, DisplayName: "Busy", Role: store.RoleSalesRep}
		require.NoError(t, db.UpsertProfile(ctx, p))
		require.NoError(t, db.UpsertRepMetrics(ctx, &store.RepMetrics{RepID: p.ID, CloseRate: 99, Workload: workload}))
	}
	lead := &store.Lead{CompanyID: company, CompanyName: "TechCorp"}
	require.NoError(t, db.CreateLead(ctx, lead))

	svc := newService(t, db, nil, nil, testConfig())

	winner, candidates, err := svc.FindBestRep(ctx, company, lead)
	require.NoError(t, err)
	assert.Nil(t, winner)
	assert.Empty(t, candidates)

	result, err := svc.EvaluateReassignment(ctx, lead.ID, company, TriggerUnresponsive)
	require.NoError(t, err)
	assert.Nil(t, result)

	got, err := db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)
}

func TestEvaluateReassignmentLowConfidence(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	company := uuid.New()
	for _, cr := range []float64{50, 45} {
		p := &store.Profile{CompanyID: company, DisplayName: "Rep", Role: store.RoleSalesRep}
		require.NoError(t, db.UpsertProfile(ctx, p))
		require.NoError(t, db.UpsertRepMetrics(ctx, &store.RepMetrics{RepID: p.ID, CloseRate: cr, Workload: 40}))
	}
	lead := &store.Lead{CompanyID: company, CompanyName: "Acme"}
	require.NoError(t, db.CreateLead(ctx, lead))

	svc := newService(t, db, nil, nil, testConfig())
	result, err := svc.EvaluateReassignment(ctx, lead.ID, company, TriggerIncorrectAssignment)
	require.NoError(t, err)
	assert.Nil(t, result, "busy reps without an industry match only reach 0.5 confidence")
}

func TestEvaluateReassignmentVersionConflict(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	h := &mockHermes{}
	sink := &recordingSink{}
	svc := newService(t, &racingStore{db}, h, sink, testConfig())
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repB)
	result, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerUnresponsive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrVersionConflict))
	assert.Nil(t, result)

	logs, err := db.ListBrainLogs(ctx, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	notes, err := db.ListNotifications(ctx, f.repA, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Zero(t, h.count("crm.lead.", ".reassigned"))

	svc.Stop()
	assert.Empty(t, sink.all())
}

func TestEvaluateReassignmentSwallowsNotificationErrors(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	svc := newService(t, &failingNotifications{db}, nil, nil, testConfig())
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repB)
	result, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerStale)
	require.NoError(t, err)
	require.NotNil(t, result)

	logs, err := db.ListBrainLogs(ctx, lead.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestEvaluateReassignmentSkipsManagersWhenDisabled(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	cfg := testConfig()
	cfg.Reassignment.NotifyManagers = false
	svc := newService(t, db, nil, nil, cfg)
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repB)
	_, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerStale)
	require.NoError(t, err)

	notes, err := db.ListNotifications(ctx, f.manager, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestEvaluateReassignmentIgnoresMissingOrForeignLead(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	svc := newService(t, db, nil, nil, testConfig())
	ctx := context.Background()

	result, err := svc.EvaluateReassignment(ctx, uuid.New(), f.company, TriggerStale)
	require.NoError(t, err)
	assert.Nil(t, result)

	lead := f.lead(t, "TechCorp", &f.repB)
	result, err = svc.EvaluateReassignment(ctx, lead.ID, uuid.New(), TriggerStale)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEvaluateReassignmentSkipsClosedLead(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	svc := newService(t, db, nil, nil, testConfig())
	ctx := context.Background()

	lead := &store.Lead{CompanyID: f.company, CompanyName: "TechCorp", AssignedTo: &f.repB, Status: store.LeadStatusWon}
	require.NoError(t, db.CreateLead(ctx, lead))

	result, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerIncorrectAssignment)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	svc := newService(t, db, nil, nil, testConfig())
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repB)
	p, err := svc.Preview(ctx, lead.ID, f.company)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, metrics.OutcomeReassigned, p.Decision)
	require.NotNil(t, p.Proposed)
	assert.Equal(t, f.repA, p.Proposed.ToRepID)
	assert.Len(t, p.Evaluation.Candidates, 2)
	assert.Equal(t, 0.7, p.Threshold)

	got, err := db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Version)
	assert.Equal(t, f.repB, *got.AssignedTo)

	missing, err := svc.Preview(ctx, uuid.New(), f.company)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSweepOnceReassignsStaleLeads(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	svc := newService(t, db, nil, nil, testConfig())
	ctx := context.Background()

	old := time.Now().Add(-100 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	stale := &store.Lead{CompanyID: f.company, CompanyName: "TechCorp", AssignedTo: &f.repB, LastContactedAt: &old}
	fresh := &store.Lead{CompanyID: f.company, CompanyName: "TechCorp", AssignedTo: &f.repB, LastContactedAt: &recent}
	ownedByBest := &store.Lead{CompanyID: f.company, CompanyName: "TechCorp", AssignedTo: &f.repA, LastContactedAt: &old}
	for _, l := range []*store.Lead{stale, fresh, ownedByBest} {
		require.NoError(t, db.CreateLead(ctx, l))
	}

	report, err := svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Examined: 2, Reassigned: 1, Declined: 1}, report)

	got, err := db.GetLead(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, f.repA, *got.AssignedTo)

	got, err = db.GetLead(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, f.repB, *got.AssignedTo)
}

func TestStartDisabledStopReturns(t *testing.T) {
	db := newSQLite(t)
	svc := newService(t, db, nil, nil, testConfig())
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()
}

func TestStartRunsSweepLoop(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	cfg := testConfig()
	cfg.Reassignment.SweepIntervalMs = 10
	svc := newService(t, db, nil, nil, cfg)
	ctx := context.Background()

	old := time.Now().Add(-100 * time.Hour)
	lead := &store.Lead{CompanyID: f.company, CompanyName: "TechCorp", AssignedTo: &f.repB, LastContactedAt: &old}
	require.NoError(t, db.CreateLead(ctx, lead))

	svc.Start(ctx)
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		got, err := db.GetLead(ctx, lead.ID)
		return err == nil && got.AssignedTo != nil && *got.AssignedTo == f.repA
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEvaluateReassignmentDoesNotWaitForAuditMirror(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	sink := &stalledSink{release: make(chan struct{}), started: make(chan struct{}, 1)}
	sc, err := scoring.NewScorer(scoring.DefaultConfig(), discardLogger())
	require.NoError(t, err)
	svc := New(db, nil, sink, sc, metrics.New(prometheus.NewRegistry()), testConfig(), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	lead := f.lead(t, "TechCorp", &f.repB)

	done := make(chan error, 1)
	go func() {
		_, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerUnresponsive)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("EvaluateReassignment blocked on the audit sink")
	}

	select {
	case <-sink.started:
	case <-time.After(2 * time.Second):
		t.Fatal("audit mirror never started")
	}
	assert.Empty(t, sink.all())

	// The request context ending must not abort the mirror.
	cancel()
	close(sink.release)
	svc.Stop()

	entries := sink.all()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LeadID)
	assert.Equal(t, lead.ID, *entries[0].LeadID)
}

func TestAuditMirrorDropsWhenSaturated(t *testing.T) {
	sink := &stalledSink{release: make(chan struct{}), started: make(chan struct{}, maxMirrorsInFlight+1)}
	svc := New(nil, nil, sink, nil, nil, testConfig(), discardLogger())

	for i := 0; i < maxMirrorsInFlight+5; i++ {
		svc.mirror(context.Background(), &store.BrainLog{ID: uuid.New(), Action: ActionLeadReassigned})
	}
	for i := 0; i < maxMirrorsInFlight; i++ {
		<-sink.started
	}

	close(sink.release)
	svc.Stop()
	assert.Len(t, sink.all(), maxMirrorsInFlight)
}

func TestEvaluationMetricsBoundFreeTextTriggers(t *testing.T) {
	db := newSQLite(t)
	f := seed(t, db)
	reg := prometheus.NewRegistry()
	sc, err := scoring.NewScorer(scoring.DefaultConfig(), discardLogger())
	require.NoError(t, err)
	svc := New(db, nil, nil, sc, metrics.New(reg), testConfig(), discardLogger())
	ctx := context.Background()

	lead := f.lead(t, "TechCorp", &f.repA)
	for i := 0; i < 50; i++ {
		_, err := svc.EvaluateReassignment(ctx, lead.ID, f.company, fmt.Sprintf("customer complaint #%d", i))
		require.NoError(t, err)
	}
	_, err = svc.EvaluateReassignment(ctx, lead.ID, f.company, TriggerStale)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	triggers := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "crm_reassign_evaluations_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "trigger" {
					triggers[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"other": 50, "stale": 1}, triggers)
}

func TestTriggerLabel(t *testing.T) {
	assert.Equal(t, "unresponsive", triggerLabel(TriggerUnresponsive))
	assert.Equal(t, "stale", triggerLabel(TriggerStale))
	assert.Equal(t, "incorrect_assignment", triggerLabel(TriggerIncorrectAssignment))
	assert.Equal(t, "other", triggerLabel("rep on leave"))
	assert.Equal(t, "other", triggerLabel(""))
}
