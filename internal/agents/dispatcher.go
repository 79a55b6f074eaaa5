package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Reassign/internal/hermes"
	"github.com/MikeSquared-Agency/Reassign/internal/metrics"
	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrUnsupportedTask = errors.New("task type not supported by agent")
)

// Dispatcher runs agent tasks synchronously through the proxy and records
// every task in agent_tasks.
type Dispatcher struct {
	store    store.Store
	client   Client
	registry *Registry
	hermes   hermes.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewDispatcher(s store.Store, c Client, r *Registry, h hermes.Client, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: s, client: c, registry: r, hermes: h, metrics: m, logger: logger}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Submit validates the request, persists a pending task and runs it. A proxy
// failure is recorded on the task, not returned as an error.
func (d *Dispatcher) Submit(ctx context.Context, agentName, taskType string, input map[string]interface{}) (*store.AgentTask, error) {
	agent, ok := d.registry.Lookup(agentName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentName)
	}
	if !agent.Supports(taskType) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedTask, agentName, taskType)
	}

	task := &store.AgentTask{
		Agent:    agentName,
		TaskType: taskType,
		Input:    input,
		Status:   store.AgentTaskPending,
	}
	if err := d.store.CreateAgentTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create agent task: %w", err)
	}

	task.Status = store.AgentTaskRunning
	if err := d.store.UpdateAgentTask(ctx, task); err != nil {
		return nil, fmt.Errorf("mark agent task running: %w", err)
	}
	d.publish(task)

	output, runErr := d.client.Run(ctx, agentName, taskType, input)
	now := time.Now().UTC()
	task.CompletedAt = &now
	if runErr != nil {
		task.Status = store.AgentTaskFailed
		task.Error = runErr.Error()
		d.logger.Warn("agent task failed", "task_id", task.ID, "agent", agentName, "task_type", taskType, "error", runErr)
	} else {
		task.Status = store.AgentTaskCompleted
		task.Output = output
		d.logger.Info("agent task completed", "task_id", task.ID, "agent", agentName, "task_type", taskType)
	}

	// The request context may already be cancelled; the outcome must still be stored.
	if err := d.store.UpdateAgentTask(context.WithoutCancel(ctx), task); err != nil {
		return nil, fmt.Errorf("record agent task result: %w", err)
	}
	d.metrics.AgentTask(agentName, string(task.Status))
	d.publish(task)
	return task, nil
}

func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*store.AgentTask, error) {
	return d.store.GetAgentTask(ctx, id)
}

// HealthCheck probes every registered agent concurrently.
func (d *Dispatcher) HealthCheck(ctx context.Context) []Health {
	agents := d.registry.List()
	out := make([]Health, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			h, err := d.client.Health(ctx, name)
			if err != nil {
				out[i] = Health{Agent: name, Status: "unreachable", Error: err.Error()}
				return
			}
			out[i] = *h
		}(i, a.Name)
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) publish(task *store.AgentTask) {
	if d.hermes == nil {
		return
	}
	_ = d.hermes.Publish(hermes.SubjectAgentTask(task.Agent, string(task.Status)), hermes.AgentTaskEvent{
		TaskID:   task.ID.String(),
		Agent:    task.Agent,
		TaskType: task.TaskType,
		Status:   string(task.Status),
		Output:   task.Output,
		Error:    task.Error,
	})
}
