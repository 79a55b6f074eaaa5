package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profiles_company_role ON profiles(company_id, role);

CREATE TABLE IF NOT EXISTS rep_metrics (
	rep_id TEXT PRIMARY KEY,
	close_rate REAL NOT NULL DEFAULT 0,
	response_time_seconds REAL NOT NULL DEFAULT 0,
	workload INTEGER NOT NULL DEFAULT 0,
	specialties TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(rep_id) REFERENCES profiles(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	assigned_to TEXT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	last_contacted_at INTEGER NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	company_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT 'null',
	read INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);

CREATE TABLE IF NOT EXISTS ai_brain_logs (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	lead_id TEXT NULL,
	action TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT 'null',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_brain_logs_lead ON ai_brain_logs(lead_id, created_at);

CREATE TABLE IF NOT EXISTS scheduled_actions (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	lead_id TEXT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT 'null',
	scheduled_for INTEGER NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	claimed_at INTEGER NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scheduled_actions_due ON scheduled_actions(status, scheduled_for);

CREATE TABLE IF NOT EXISTS agent_tasks (
	id TEXT PRIMARY KEY,
	agent TEXT NOT NULL,
	task_type TEXT NOT NULL,
	input TEXT NOT NULL DEFAULT 'null',
	status TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT 'null',
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	completed_at INTEGER NULL
);
`

// SQLiteStore is a single-file Store for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps ClaimDueActions and ReassignLead atomic without BEGIN IMMEDIATE.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteLeadColumns = `id, company_id, company_name, assigned_to, status, version,
	last_contacted_at, created_at, updated_at`

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *Lead) error {
	now := time.Now().UTC()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.Status == "" {
		lead.Status = LeadStatusNew
	}
	lead.Version = 0
	lead.CreatedAt = now
	lead.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, company_id, company_name, assigned_to, status, version,
			last_contacted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		lead.ID.String(), lead.CompanyID.String(), lead.CompanyName, nullableUUID(lead.AssignedTo),
		string(lead.Status), nullableMillis(lead.LastContactedAt), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	l, err := scanSQLiteLead(s.db.QueryRowContext(ctx, `SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (s *SQLiteStore) ReassignLead(ctx context.Context, leadID uuid.UUID, expectedVersion int, repID uuid.UUID) (*Lead, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET assigned_to = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		repID.String(), time.Now().UTC().UnixMilli(), leadID.String(), expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("reassign lead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrVersionConflict
	}
	return s.GetLead(ctx, leadID)
}

func (s *SQLiteStore) ListStaleLeads(ctx context.Context, contactedBefore time.Time, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteLeadColumns+`
		FROM leads
		WHERE status NOT IN ('won', 'lost')
		  AND COALESCE(last_contacted_at, created_at) < ?
		ORDER BY COALESCE(last_contacted_at, created_at) ASC
		LIMIT ?`, contactedBefore.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, company_id, display_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id, display_name = excluded.display_name, role = excluded.role`,
		p.ID.String(), p.CompanyID.String(), p.DisplayName, string(p.Role), p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListProfilesByRole(ctx context.Context, companyID uuid.UUID, role Role) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, display_name, role, created_at
		FROM profiles WHERE company_id = ? AND role = ?
		ORDER BY id`, companyID.String(), string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		var id, company, r string
		var created int64
		p := &Profile{}
		if err := rows.Scan(&id, &company, &p.DisplayName, &r, &created); err != nil {
			return nil, err
		}
		if p.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if p.CompanyID, err = uuid.Parse(company); err != nil {
			return nil, err
		}
		p.Role = Role(r)
		p.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertRepMetrics(ctx context.Context, m *RepMetrics) error {
	specialties := m.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	specialtiesJSON, _ := json.Marshal(specialties)
	m.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rep_metrics (rep_id, close_rate, response_time_seconds, workload, specialties, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rep_id) DO UPDATE SET
			close_rate = excluded.close_rate,
			response_time_seconds = excluded.response_time_seconds,
			workload = excluded.workload,
			specialties = excluded.specialties,
			updated_at = excluded.updated_at`,
		m.RepID.String(), m.CloseRate, m.ResponseTimeSeconds, m.Workload, string(specialtiesJSON), m.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert rep metrics: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRepMetrics(ctx context.Context, companyID uuid.UUID) ([]*RepMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.display_name,
			COALESCE(m.close_rate, 0), COALESCE(m.response_time_seconds, 0),
			COALESCE(m.workload, 0), COALESCE(m.specialties, '[]'),
			COALESCE(m.updated_at, p.created_at)
		FROM profiles p
		LEFT JOIN rep_metrics m ON m.rep_id = p.id
		WHERE p.company_id = ? AND p.role = 'sales_rep'
		ORDER BY p.id`, companyID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RepMetrics
	for rows.Next() {
		var id, specialtiesJSON string
		var updated int64
		m := &RepMetrics{}
		if err := rows.Scan(&id, &m.DisplayName, &m.CloseRate, &m.ResponseTimeSeconds,
			&m.Workload, &specialtiesJSON, &updated); err != nil {
			return nil, err
		}
		if m.RepID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(specialtiesJSON), &m.Specialties)
		m.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	payloadJSON, _ := json.Marshal(n.Payload)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, company_id, kind, title, body, payload, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID.String(), n.UserID.String(), n.CompanyID.String(), n.Kind, n.Title, n.Body,
		string(payloadJSON), n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, company_id, kind, title, body, payload, read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var id, user, company, payloadJSON string
		var read int
		var created int64
		n := &Notification{}
		if err := rows.Scan(&id, &user, &company, &n.Kind, &n.Title, &n.Body, &payloadJSON, &read, &created); err != nil {
			return nil, err
		}
		n.ID, _ = uuid.Parse(id)
		n.UserID, _ = uuid.Parse(user)
		n.CompanyID, _ = uuid.Parse(company)
		_ = json.Unmarshal([]byte(payloadJSON), &n.Payload)
		n.Read = read != 0
		n.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateBrainLog(ctx context.Context, l *BrainLog) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now().UTC()
	payloadJSON, _ := json.Marshal(l.Payload)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_brain_logs (id, company_id, lead_id, action, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.CompanyID.String(), nullableUUID(l.LeadID), l.Action, string(payloadJSON), l.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create brain log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBrainLogs(ctx context.Context, leadID uuid.UUID) ([]*BrainLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, lead_id, action, payload, created_at
		FROM ai_brain_logs WHERE lead_id = ?
		ORDER BY created_at ASC`, leadID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BrainLog
	for rows.Next() {
		var id, company, payloadJSON string
		var lead sql.NullString
		var created int64
		l := &BrainLog{}
		if err := rows.Scan(&id, &company, &lead, &l.Action, &payloadJSON, &created); err != nil {
			return nil, err
		}
		l.ID, _ = uuid.Parse(id)
		l.CompanyID, _ = uuid.Parse(company)
		l.LeadID = parseNullUUID(lead)
		_ = json.Unmarshal([]byte(payloadJSON), &l.Payload)
		l.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

const sqliteActionColumns = `id, company_id, lead_id, kind, payload, scheduled_for, status,
	attempts, last_error, claimed_at, created_at`

func (s *SQLiteStore) CreateScheduledAction(ctx context.Context, a *ScheduledAction) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	if a.Status == "" {
		a.Status = ActionPending
	}
	payloadJSON, _ := json.Marshal(a.Payload)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_actions (id, company_id, lead_id, kind, payload, scheduled_for, status,
			attempts, last_error, claimed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', NULL, ?)`,
		a.ID.String(), a.CompanyID.String(), nullableUUID(a.LeadID), string(a.Kind), string(payloadJSON),
		a.ScheduledFor.UnixMilli(), string(a.Status), a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create scheduled action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetScheduledAction(ctx context.Context, id uuid.UUID) (*ScheduledAction, error) {
	a, err := scanSQLiteAction(s.db.QueryRowContext(ctx, `SELECT `+sqliteActionColumns+` FROM scheduled_actions WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) ClaimDueActions(ctx context.Context, now time.Time, limit int) ([]*ScheduledAction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		UPDATE scheduled_actions SET status = 'dispatched', claimed_at = ?, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM scheduled_actions
			WHERE status = 'pending' AND scheduled_for <= ?
			ORDER BY scheduled_for ASC
			LIMIT ?
		)
		RETURNING `+sqliteActionColumns, now.UnixMilli(), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due actions: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledAction
	for rows.Next() {
		a, err := scanSQLiteAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (s *SQLiteStore) CompleteScheduledAction(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_actions SET status = 'completed', last_error = ''
		WHERE id = ? AND status = 'dispatched'`, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) FailScheduledAction(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_actions SET status = 'failed', last_error = ?
		WHERE id = ? AND status IN ('pending', 'dispatched')`, reason, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) RequeueStaleActions(ctx context.Context, cutoff time.Time, maxAttempts int) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE scheduled_actions SET status = 'failed', last_error = 'delivery attempts exhausted', claimed_at = NULL
		WHERE status = 'dispatched' AND claimed_at < ? AND attempts >= ?`, cutoff.UnixMilli(), maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	failed, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		UPDATE scheduled_actions SET status = 'pending', claimed_at = NULL
		WHERE status = 'dispatched' AND claimed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, 0, err
	}
	requeued, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return int(requeued), int(failed), nil
}

func (s *SQLiteStore) CreateAgentTask(ctx context.Context, t *AgentTask) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = AgentTaskPending
	}
	inputJSON, _ := json.Marshal(t.Input)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_tasks (id, agent, task_type, input, status, output, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, 'null', '', ?, NULL)`,
		t.ID.String(), t.Agent, t.TaskType, string(inputJSON), string(t.Status), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create agent task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgentTask(ctx context.Context, id uuid.UUID) (*AgentTask, error) {
	var rawID, inputJSON, status, outputJSON string
	var created int64
	var completed sql.NullInt64
	t := &AgentTask{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent, task_type, input, status, output, error, created_at, completed_at
		FROM agent_tasks WHERE id = ?`, id.String(),
	).Scan(&rawID, &t.Agent, &t.TaskType, &inputJSON, &status, &outputJSON, &t.Error, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ID, _ = uuid.Parse(rawID)
	t.Status = AgentTaskStatus(status)
	_ = json.Unmarshal([]byte(inputJSON), &t.Input)
	_ = json.Unmarshal([]byte(outputJSON), &t.Output)
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.CompletedAt = fromNullMillis(completed)
	return t, nil
}

func (s *SQLiteStore) UpdateAgentTask(ctx context.Context, t *AgentTask) error {
	outputJSON, _ := json.Marshal(t.Output)
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks SET status = ?, output = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		string(t.Status), string(outputJSON), t.Error, nullableMillis(t.CompletedAt), t.ID.String(),
	)
	return err
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row sqliteScanner) (*Lead, error) {
	var id, company, status string
	var assigned sql.NullString
	var contacted sql.NullInt64
	var created, updated int64
	l := &Lead{}
	if err := row.Scan(&id, &company, &l.CompanyName, &assigned, &status, &l.Version,
		&contacted, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if l.CompanyID, err = uuid.Parse(company); err != nil {
		return nil, err
	}
	l.AssignedTo = parseNullUUID(assigned)
	l.Status = LeadStatus(status)
	l.LastContactedAt = fromNullMillis(contacted)
	l.CreatedAt = time.UnixMilli(created).UTC()
	l.UpdatedAt = time.UnixMilli(updated).UTC()
	return l, nil
}

func scanSQLiteAction(row sqliteScanner) (*ScheduledAction, error) {
	var id, company, kind, payloadJSON, status string
	var lead sql.NullString
	var scheduled, created int64
	var claimed sql.NullInt64
	a := &ScheduledAction{}
	if err := row.Scan(&id, &company, &lead, &kind, &payloadJSON, &scheduled, &status,
		&a.Attempts, &a.LastError, &claimed, &created); err != nil {
		return nil, err
	}
	a.ID, _ = uuid.Parse(id)
	a.CompanyID, _ = uuid.Parse(company)
	a.LeadID = parseNullUUID(lead)
	a.Kind = ActionKind(kind)
	_ = json.Unmarshal([]byte(payloadJSON), &a.Payload)
	a.ScheduledFor = time.UnixMilli(scheduled).UTC()
	a.Status = ActionStatus(status)
	a.ClaimedAt = fromNullMillis(claimed)
	a.CreatedAt = time.UnixMilli(created).UTC()
	return a, nil
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseNullUUID(v sql.NullString) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return nil
	}
	return &id
}

func nullableMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
