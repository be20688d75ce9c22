package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skillvee/mend/classify"
	"github.com/skillvee/mend/retry"
)

// HandlerFunc processes one job execution attempt
type HandlerFunc func(ctx context.Context, job *Job) error

// HandlerRegistry dispatches job execution to a handler registered for the
// job's kind, wrapping each execution in attempt-level retries with backoff.
// Attempt-level retries absorb transient blips within one execution; the
// controller's bounded job-level retries are a separate, coarser layer on
// top.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	policy   retry.Policy
	log      *zap.SugaredLogger
}

// NewHandlerRegistry creates a registry using the given attempt retry policy
func NewHandlerRegistry(policy retry.Policy, log *zap.SugaredLogger) *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]HandlerFunc),
		policy:   policy,
		log:      log,
	}
}

// Register installs the handler for a job kind, replacing any previous one
func (r *HandlerRegistry) Register(kind string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Kinds returns the registered job kinds
func (r *HandlerRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Execute implements Executor. An unregistered kind is a configuration
// problem, not a transient failure, and comes back non-retryable.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	r.mu.RLock()
	handler, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	if !ok {
		return classify.Tagf(classify.CategoryResource, "no handler registered for job kind %q", job.Kind)
	}

	_, err := retry.Do(ctx, r.policy,
		func(ctx context.Context) (_ struct{}, err error) {
			// A panicking handler fails the attempt instead of taking
			// down the daemon
			defer func() {
				if v := recover(); v != nil {
					err = classify.ClassifyValue(v)
				}
			}()
			return struct{}{}, handler(ctx, job)
		},
		func(attempt int, ce *classify.CategorizedError, delay time.Duration) {
			r.log.Warnw("Job attempt failed, retrying",
				"job_id", job.ID,
				"kind", job.Kind,
				"attempt", attempt,
				"category", ce.Category,
				"delay", delay,
			)
		},
	)
	return err
}
