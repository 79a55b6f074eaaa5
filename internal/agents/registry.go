package agents

import "sort"

// Agent describes one hosted agent and the task types it accepts.
type Agent struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TaskTypes   []string `json:"task_types"`
}

func (a Agent) Supports(taskType string) bool {
	for _, t := range a.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// Registry is the fixed set of agents the CRM can dispatch to.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name] = a
	}
	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(
		Agent{Name: "lead_scorer", Description: "Scores and qualifies inbound leads", TaskTypes: []string{"score_lead", "qualify_lead"}},
		Agent{Name: "email_writer", Description: "Drafts outreach and follow-up emails", TaskTypes: []string{"draft_email", "follow_up_email"}},
		Agent{Name: "call_analyzer", Description: "Summarises and analyses sales calls", TaskTypes: []string{"analyze_call", "summarize_call"}},
		Agent{Name: "deal_predictor", Description: "Predicts close probability for open deals", TaskTypes: []string{"predict_close", "forecast_deal"}},
	)
}

func (r *Registry) Lookup(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// List returns the agents sorted by name.
func (r *Registry) List() []Agent {
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
