package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/config"
	"github.com/MikeSquared-Agency/Reassign/internal/hermes"
	"github.com/MikeSquared-Agency/Reassign/internal/metrics"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

var (
	ErrActionNotFound    = errors.New("scheduled action not found")
	ErrInvalidTransition = errors.New("invalid scheduled action transition")
	ErrUnknownKind       = errors.New("unknown action kind")
)

// Scheduler hands due scheduled_actions rows to external workers over NATS.
// Delivery is at-least-once: a claimed action that is not completed within the
// redelivery window is published again until it runs out of attempts.
type Scheduler struct {
	store   store.Store
	hermes  hermes.Client
	metrics *metrics.Metrics
	cfg     *config.Config
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(s store.Store, h hermes.Client, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   s,
		hermes:  h,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Schedule stores a pending action. A zero ScheduledFor means now.
func (s *Scheduler) Schedule(ctx context.Context, a *store.ScheduledAction) error {
	switch a.Kind {
	case store.ActionFollowUpCall, store.ActionSMS, store.ActionEmail:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	if a.ScheduledFor.IsZero() {
		a.ScheduledFor = time.Now().UTC()
	}
	a.Status = store.ActionPending
	if err := s.store.CreateScheduledAction(ctx, a); err != nil {
		return err
	}
	s.metrics.ActionScheduled(string(a.Kind))
	s.logger.Info("action scheduled", "action_id", a.ID, "kind", a.Kind, "scheduled_for", a.ScheduledFor)
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.hermes == nil {
		s.logger.Warn("no event bus, scheduled actions will not be dispatched")
		return
	}
	s.wg.Add(2)
	go s.dispatchLoop(ctx)
	go s.redeliveryLoop(ctx)
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx); err != nil {
				s.logger.Error("failed to dispatch due actions", "error", err)
			}
		}
	}
}

func (s *Scheduler) redeliveryLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.RedeliverAfter() / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.Requeue(ctx); err != nil {
				s.logger.Error("failed to requeue stale actions", "error", err)
			}
		}
	}
}

// DispatchDue claims due actions and publishes each on crm.action.<kind>.due.
// A failed publish leaves the action claimed; redelivery picks it up later.
func (s *Scheduler) DispatchDue(ctx context.Context) (int, error) {
	if s.hermes == nil {
		return 0, nil
	}
	actions, err := s.store.ClaimDueActions(ctx, time.Now().UTC(), s.cfg.Scheduler.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due actions: %w", err)
	}

	published := 0
	for _, a := range actions {
		evt := hermes.ActionDueEvent{
			ActionID:     a.ID.String(),
			CompanyID:    a.CompanyID.String(),
			Kind:         string(a.Kind),
			Payload:      a.Payload,
			ScheduledFor: a.ScheduledFor,
			Attempt:      a.Attempts,
		}
		if a.LeadID != nil {
			evt.LeadID = a.LeadID.String()
		}
		if err := s.hermes.Publish(hermes.SubjectActionDue(string(a.Kind)), evt); err != nil {
			s.logger.Warn("failed to publish due action", "action_id", a.ID, "attempt", a.Attempts, "error", err)
			continue
		}
		published++
	}

	if len(actions) > 0 {
		s.metrics.ActionsDispatched(published)
		s.logger.Info("dispatched due actions", "claimed", len(actions), "published", published)
		s.publishStats(published, 0, 0)
	}
	return published, nil
}

// Requeue returns actions claimed longer than the redelivery window ago to
// pending, failing those that have used all their attempts.
func (s *Scheduler) Requeue(ctx context.Context) (int, int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.RedeliverAfter())
	requeued, failed, err := s.store.RequeueStaleActions(ctx, cutoff, s.cfg.Scheduler.MaxAttempts)
	if err != nil {
		return 0, 0, err
	}
	if requeued > 0 || failed > 0 {
		s.metrics.ActionsRequeued(requeued)
		s.metrics.ActionsFailed(failed)
		s.logger.Warn("redelivering unacknowledged actions", "requeued", requeued, "failed", failed)
		s.publishStats(0, requeued, failed)
	}
	return requeued, failed, nil
}

// Complete marks a dispatched action done.
func (s *Scheduler) Complete(ctx context.Context, id uuid.UUID) (*store.ScheduledAction, error) {
	a, err := s.store.GetScheduledAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrActionNotFound
	}
	if a.Status != store.ActionDispatched {
		return nil, fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, a.Status)
	}
	ok, err := s.store.CompleteScheduledAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Redelivery or another worker moved the row after it was read.
		return nil, fmt.Errorf("%w: %s no longer dispatched", ErrInvalidTransition, id)
	}
	a.Status = store.ActionCompleted
	a.LastError = ""
	s.logger.Info("action completed", "action_id", id, "kind", a.Kind, "attempts", a.Attempts)
	return a, nil
}

// Fail marks a pending or dispatched action failed without further redelivery.
func (s *Scheduler) Fail(ctx context.Context, id uuid.UUID, reason string) (*store.ScheduledAction, error) {
	a, err := s.store.GetScheduledAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrActionNotFound
	}
	if a.Status != store.ActionPending && a.Status != store.ActionDispatched {
		return nil, fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, a.Status)
	}
	ok, err := s.store.FailScheduledAction(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s already settled", ErrInvalidTransition, id)
	}
	a.Status = store.ActionFailed
	a.LastError = reason
	s.metrics.ActionsFailed(1)
	s.logger.Warn("action failed", "action_id", id, "kind", a.Kind, "reason", reason)
	return a, nil
}

// SetupSubscriptions lets workers acknowledge actions over NATS instead of HTTP.
func (s *Scheduler) SetupSubscriptions() {
	if s.hermes == nil {
		return
	}

	_ = s.hermes.Subscribe(hermes.SubjectActionCompletedAll, func(subject string, data []byte) {
		id, ok := s.actionIDFrom(subject, data)
		if !ok {
			return
		}
		if _, err := s.Complete(context.Background(), id); err != nil {
			s.logger.Warn("failed to complete action from event", "action_id", id, "error", err)
		}
	})

	_ = s.hermes.Subscribe(hermes.SubjectActionFailedAll, func(subject string, data []byte) {
		id, ok := s.actionIDFrom(subject, data)
		if !ok {
			return
		}
		var evt hermes.ActionResultEvent
		_ = json.Unmarshal(data, &evt)
		reason := evt.Error
		if reason == "" {
			reason = "reported failed by worker"
		}
		if _, err := s.Fail(context.Background(), id, reason); err != nil {
			s.logger.Warn("failed to fail action from event", "action_id", id, "error", err)
		}
	})
}

// actionIDFrom reads the id from crm.action.<id>.<result>, falling back to the payload.
func (s *Scheduler) actionIDFrom(subject string, data []byte) (uuid.UUID, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) == 4 {
		if id, err := uuid.Parse(parts[2]); err == nil {
			return id, true
		}
	}
	var evt hermes.ActionResultEvent
	if err := json.Unmarshal(data, &evt); err == nil {
		if id, err := uuid.Parse(evt.ActionID); err == nil {
			return id, true
		}
	}
	s.logger.Warn("action result without a valid id", "subject", subject)
	return uuid.Nil, false
}

func (s *Scheduler) publishStats(dispatched, requeued, failed int) {
	if s.hermes == nil {
		return
	}
	_ = s.hermes.Publish(hermes.SubjectSchedulerStats, hermes.SchedulerStatsEvent{
		Dispatched: dispatched,
		Requeued:   requeued,
		Failed:     failed,
		Timestamp:  time.Now().UTC(),
	})
}
