package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const leadColumns = `id, company_id, company_name, assigned_to, status, version,
	last_contacted_at, created_at, updated_at`

func (s *PostgresStore) CreateLead(ctx context.Context, lead *Lead) error {
	if lead.Status == "" {
		lead.Status = LeadStatusNew
	}
	var id *uuid.UUID
	if lead.ID != uuid.Nil {
		id = &lead.ID
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO leads (id, company_id, company_name, assigned_to, status, last_contacted_at)
		VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		RETURNING id, version, created_at, updated_at`,
		id, lead.CompanyID, lead.CompanyName, lead.AssignedTo, lead.Status, lead.LastContactedAt,
	).Scan(&lead.ID, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt)
}

func (s *PostgresStore) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *PostgresStore) ReassignLead(ctx context.Context, leadID uuid.UUID, expectedVersion int, repID uuid.UUID) (*Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, `
		UPDATE leads SET assigned_to = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		leadID, expectedVersion, repID,
	))
	if err == pgx.ErrNoRows {
		return nil, ErrVersionConflict
	}
	return l, err
}

func (s *PostgresStore) ListStaleLeads(ctx context.Context, contactedBefore time.Time, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE status NOT IN ('won', 'lost')
		  AND COALESCE(last_contacted_at, created_at) < $1
		ORDER BY COALESCE(last_contacted_at, created_at) ASC
		LIMIT $2`, contactedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, company_id, display_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id, display_name = EXCLUDED.display_name, role = EXCLUDED.role
		RETURNING created_at`,
		p.ID, p.CompanyID, p.DisplayName, p.Role,
	).Scan(&p.CreatedAt)
}

func (s *PostgresStore) ListProfilesByRole(ctx context.Context, companyID uuid.UUID, role Role) ([]*Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, display_name, role, created_at
		FROM profiles WHERE company_id = $1 AND role = $2
		ORDER BY id`, companyID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p := &Profile{}
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.DisplayName, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *PostgresStore) UpsertRepMetrics(ctx context.Context, m *RepMetrics) error {
	specialties := m.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO rep_metrics (rep_id, close_rate, response_time_seconds, workload, specialties)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rep_id) DO UPDATE SET
			close_rate = EXCLUDED.close_rate,
			response_time_seconds = EXCLUDED.response_time_seconds,
			workload = EXCLUDED.workload,
			specialties = EXCLUDED.specialties,
			updated_at = now()
		RETURNING updated_at`,
		m.RepID, m.CloseRate, m.ResponseTimeSeconds, m.Workload, specialties,
	).Scan(&m.UpdatedAt)
}

// ListRepMetrics returns metrics for every sales rep in the company. Reps without a
// rep_metrics row are returned with zero metrics.
func (s *PostgresStore) ListRepMetrics(ctx context.Context, companyID uuid.UUID) ([]*RepMetrics, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.display_name,
			COALESCE(m.close_rate, 0), COALESCE(m.response_time_seconds, 0),
			COALESCE(m.workload, 0), COALESCE(m.specialties, '{}'),
			COALESCE(m.updated_at, p.created_at)
		FROM profiles p
		LEFT JOIN rep_metrics m ON m.rep_id = p.id
		WHERE p.company_id = $1 AND p.role = 'sales_rep'
		ORDER BY p.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*RepMetrics
	for rows.Next() {
		m := &RepMetrics{}
		if err := rows.Scan(&m.RepID, &m.DisplayName, &m.CloseRate, &m.ResponseTimeSeconds,
			&m.Workload, &m.Specialties, &m.UpdatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n *Notification) error {
	payloadJSON, _ := json.Marshal(n.Payload)
	return s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, company_id, kind, title, body, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		n.UserID, n.CompanyID, n.Kind, n.Title, n.Body, payloadJSON,
	).Scan(&n.ID, &n.CreatedAt)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, company_id, kind, title, body, payload, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var payloadJSON []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.CompanyID, &n.Kind, &n.Title, &n.Body,
			&payloadJSON, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if payloadJSON != nil {
			_ = json.Unmarshal(payloadJSON, &n.Payload)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateBrainLog(ctx context.Context, l *BrainLog) error {
	payloadJSON, _ := json.Marshal(l.Payload)
	return s.pool.QueryRow(ctx, `
		INSERT INTO ai_brain_logs (company_id, lead_id, action, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		l.CompanyID, l.LeadID, l.Action, payloadJSON,
	).Scan(&l.ID, &l.CreatedAt)
}

func (s *PostgresStore) ListBrainLogs(ctx context.Context, leadID uuid.UUID) ([]*BrainLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, lead_id, action, payload, created_at
		FROM ai_brain_logs WHERE lead_id = $1
		ORDER BY created_at ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BrainLog
	for rows.Next() {
		l := &BrainLog{}
		var payloadJSON []byte
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.LeadID, &l.Action, &payloadJSON, &l.CreatedAt); err != nil {
			return nil, err
		}
		if payloadJSON != nil {
			_ = json.Unmarshal(payloadJSON, &l.Payload)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const actionColumns = `id, company_id, lead_id, kind, payload, scheduled_for, status,
	attempts, last_error, claimed_at, created_at`

func (s *PostgresStore) CreateScheduledAction(ctx context.Context, a *ScheduledAction) error {
	if a.Status == "" {
		a.Status = ActionPending
	}
	payloadJSON, _ := json.Marshal(a.Payload)
	return s.pool.QueryRow(ctx, `
		INSERT INTO scheduled_actions (company_id, lead_id, kind, payload, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		a.CompanyID, a.LeadID, a.Kind, payloadJSON, a.ScheduledFor, a.Status,
	).Scan(&a.ID, &a.CreatedAt)
}

func (s *PostgresStore) GetScheduledAction(ctx context.Context, id uuid.UUID) (*ScheduledAction, error) {
	a, err := scanAction(s.pool.QueryRow(ctx, `SELECT `+actionColumns+` FROM scheduled_actions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) ClaimDueActions(ctx context.Context, now time.Time, limit int) ([]*ScheduledAction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE scheduled_actions SET status = 'dispatched', claimed_at = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM scheduled_actions
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+actionColumns, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledAction
	for rows.Next() {
		a, err := scanAction(rows)
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

func (s *PostgresStore) CompleteScheduledAction(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_actions SET status = 'completed', last_error = ''
		WHERE id = $1 AND status = 'dispatched'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FailScheduledAction(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_actions SET status = 'failed', last_error = $2
		WHERE id = $1 AND status IN ('pending', 'dispatched')`, id, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RequeueStaleActions(ctx context.Context, cutoff time.Time, maxAttempts int) (int, int, error) {
	rows, err := s.pool.Query(ctx, `
		WITH stale AS (
			SELECT id, attempts FROM scheduled_actions
			WHERE status = 'dispatched' AND claimed_at < $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_actions a SET
			status = CASE WHEN s.attempts >= $2 THEN 'failed' ELSE 'pending' END,
			last_error = CASE WHEN s.attempts >= $2 THEN 'delivery attempts exhausted' ELSE a.last_error END,
			claimed_at = NULL
		FROM stale s WHERE a.id = s.id
		RETURNING a.status`, cutoff, maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var requeued, failed int
	for rows.Next() {
		var status ActionStatus
		if err := rows.Scan(&status); err != nil {
			return 0, 0, err
		}
		if status == ActionFailed {
			failed++
		} else {
			requeued++
		}
	}
	return requeued, failed, rows.Err()
}

func (s *PostgresStore) CreateAgentTask(ctx context.Context, t *AgentTask) error {
	if t.Status == "" {
		t.Status = AgentTaskPending
	}
	inputJSON, _ := json.Marshal(t.Input)
	return s.pool.QueryRow(ctx, `
		INSERT INTO agent_tasks (agent, task_type, input, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		t.Agent, t.TaskType, inputJSON, t.Status,
	).Scan(&t.ID, &t.CreatedAt)
}

func (s *PostgresStore) GetAgentTask(ctx context.Context, id uuid.UUID) (*AgentTask, error) {
	t := &AgentTask{}
	var inputJSON, outputJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent, task_type, input, status, output, error, created_at, completed_at
		FROM agent_tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.Agent, &t.TaskType, &inputJSON, &t.Status, &outputJSON, &t.Error, &t.CreatedAt, &t.CompletedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if inputJSON != nil {
		_ = json.Unmarshal(inputJSON, &t.Input)
	}
	if outputJSON != nil {
		_ = json.Unmarshal(outputJSON, &t.Output)
	}
	return t, nil
}

func (s *PostgresStore) UpdateAgentTask(ctx context.Context, t *AgentTask) error {
	outputJSON, _ := json.Marshal(t.Output)
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks SET status = $2, output = $3, error = $4, completed_at = $5
		WHERE id = $1`,
		t.ID, t.Status, outputJSON, t.Error, t.CompletedAt,
	)
	return err
}

func scanLead(row pgx.Row) (*Lead, error) {
	l := &Lead{}
	if err := row.Scan(&l.ID, &l.CompanyID, &l.CompanyName, &l.AssignedTo, &l.Status, &l.Version,
		&l.LastContactedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return l, nil
}

func scanAction(row pgx.Row) (*ScheduledAction, error) {
	a := &ScheduledAction{}
	var payloadJSON []byte
	if err := row.Scan(&a.ID, &a.CompanyID, &a.LeadID, &a.Kind, &payloadJSON, &a.ScheduledFor, &a.Status,
		&a.Attempts, &a.LastError, &a.ClaimedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	if payloadJSON != nil {
		_ = json.Unmarshal(payloadJSON, &a.Payload)
	}
	return a, nil
}
