package audit

import (
	"context"

	"github.com/MikeSquared-Agency/Reassign/internal/store"
)

// Sink mirrors ai_brain_logs entries to an external log. The database row is
// the source of truth, so sinks are best effort.
type Sink interface {
	Record(ctx context.Context, entry *store.BrainLog) error
	Close() error
}

// NopSink discards every entry. Used when no Kafka brokers are configured.
type NopSink struct{}

func (NopSink) Record(context.Context, *store.BrainLog) error { return nil }
func (NopSink) Close() error                                  { return nil }
