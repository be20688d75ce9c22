package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skillvee/mend/classify"
	"github.com/skillvee/mend/db"
	"github.com/skillvee/mend/errors"
	"github.com/skillvee/mend/health"
	"github.com/skillvee/mend/logger"
)

// MaxOrphanRecovery limits how many orphaned jobs are recovered on startup
// to avoid overwhelming the system after a crash.
const MaxOrphanRecovery = 1000

// Executor runs the actual processing for a job. Implementations live in the
// surrounding platform (AI pipelines, document parsers); their failures are
// classified here.
type Executor interface {
	Execute(ctx context.Context, job *Job) error
}

// Runner launches accepted retries asynchronously and owns the completion
// bookkeeping the controller deliberately leaves to the execution path:
// marking Completed/Failed, advancing the retry count on failure, recording
// the error log, and reporting outcomes into the dependency health monitor.
type Runner struct {
	store     *Store
	errorLogs *ErrorLogStore
	executor  Executor
	monitor   *health.Monitor
	limiter   *rate.Limiter
	log       *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	onUpdate []func(*Job)
}

// NewRunner creates a runner. launchesPerMinute caps executor launches, since
// vendor rate limits are the dominant failure cause for these jobs.
func NewRunner(ctx context.Context, store *Store, errorLogs *ErrorLogStore, executor Executor, monitor *health.Monitor, launchesPerMinute int, log *zap.SugaredLogger) *Runner {
	runnerCtx, cancel := context.WithCancel(ctx)
	return &Runner{
		store:     store,
		errorLogs: errorLogs,
		executor:  executor,
		monitor:   monitor,
		limiter:   rate.NewLimiter(rate.Limit(float64(launchesPerMinute))/60.0, 1),
		log:       log,
		ctx:       runnerCtx,
		cancel:    cancel,
	}
}

// OnJobUpdate registers a callback invoked after every terminal transition.
// The server uses this to push updates to connected operator UIs.
func (r *Runner) OnJobUpdate(fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = append(r.onUpdate, fn)
}

// SetLaunchRate updates the launch cap; wired to config hot reload
func (r *Runner) SetLaunchRate(launchesPerMinute int) {
	r.limiter.SetLimit(rate.Limit(float64(launchesPerMinute)) / 60.0)
}

// Launch starts asynchronous execution of the job. Each job is handled by at
// most one in-flight execution; the controller's conditional status
// transition guarantees a second Launch for the same job cannot be issued
// while one is running.
func (r *Runner) Launch(jobID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(jobID)
	}()
}

// Stop cancels in-flight executions and waits for them to finish. Jobs caught
// mid-execution stay in Processing and are recovered as orphans on the next
// startup.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) run(jobID string) {
	log := logger.WithJob(r.log, jobID)

	if err := r.limiter.Wait(r.ctx); err != nil {
		log.Warnw("Launch aborted before execution", "error", err)
		return
	}

	job, err := r.store.GetJob(jobID)
	if err != nil {
		// Closed database means the daemon is shutting down mid-launch
		if db.IsDatabaseClosed(err) {
			log.Debugw("Skipping execution: database closed", "error", err)
		} else {
			log.Warnw("Failed to load job for execution", "error", err)
		}
		return
	}
	if job == nil {
		log.Warnw("Job vanished before execution")
		return
	}

	execErr := r.executor.Execute(r.ctx, job)
	if execErr == nil {
		r.monitor.RecordSuccess()
		// The runner owns the job exclusively while it is Processing, so
		// the full-row update cannot clobber a concurrent writer
		job.Complete()
		if err := r.store.UpdateJob(job); err != nil {
			log.Warnw("Failed to mark job completed", "error", err)
			return
		}
		log.Infow("Job completed")
		r.notify(jobID)
		return
	}

	ce := r.monitor.RecordFailure(execErr)
	if err := r.errorLogs.Record(jobID, ce); err != nil {
		log.Warnw("Failed to record job error", "error", err)
	}
	if err := r.store.MarkFailed(jobID, ce.Message); err != nil {
		log.Warnw("Failed to mark job failed", "error", err)
		return
	}

	logger.WithDependency(log, r.monitor.Name()).Warnw("Job failed",
		"category", ce.Category,
		"retryable", ce.Retryable,
		"error", execErr,
	)
	r.notify(jobID)
}

func (r *Runner) notify(jobID string) {
	job, err := r.store.GetJob(jobID)
	if err != nil || job == nil {
		return
	}

	r.mu.RLock()
	callbacks := make([]func(*Job), len(r.onUpdate))
	copy(callbacks, r.onUpdate)
	r.mu.RUnlock()

	for _, fn := range callbacks {
		fn(job)
	}
}

// RecoverOrphans moves jobs stuck in Processing back to Failed after a
// restart. Execution is not exactly-once across process restarts; a crash
// mid-execution leaves the job Processing with no worker attached. The retry
// count is not advanced: the attempt never reported an outcome.
func RecoverOrphans(store *Store, errorLogs *ErrorLogStore, log *zap.SugaredLogger) (int, error) {
	orphans, err := store.ListByStatus(StatusProcessing, MaxOrphanRecovery)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list orphaned jobs")
	}

	recovered := 0
	for _, job := range orphans {
		ce := classify.Classify(errors.New("interrupted by process restart"))
		if err := errorLogs.Record(job.ID, ce); err != nil {
			logger.WithJob(log, job.ID).Warnw("Failed to record orphan error", "error", err)
		}
		// Fail leaves RetryCount alone
		job.Fail(ce.Message)
		if err := store.UpdateJob(job); err != nil {
			return recovered, errors.Wrapf(err, "failed to recover orphaned job %s", job.ID)
		}
		recovered++
	}

	if recovered > 0 {
		log.Infow("Recovered orphaned jobs", "count", recovered)
	}
	return recovered, nil
}
