package server

// Broadcasting and background tickers: job updates fan out to WebSocket
// clients, and a periodic sweep removes old terminal jobs and stale progress
// snapshots.

import (
	"time"

	"github.com/skillvee/mend/jobs"
)

// JobUpdateMessage is pushed to WebSocket clients when a job reaches a
// terminal status.
type JobUpdateMessage struct {
	Type              string      `json:"type"`
	JobID             string      `json:"job_id"`
	Kind              string      `json:"kind"`
	Status            jobs.Status `json:"status"`
	RetryCount        int         `json:"retry_count"`
	LastFailureReason string      `json:"last_failure_reason,omitempty"`
	Timestamp         int64       `json:"timestamp"`
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
func (s *MendServer) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	var slow []*Client
	for _, client := range clients {
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		s.removeSlowClient(client)
	}

	return sent
}

// broadcastJobUpdate pushes a terminal job transition to connected clients.
// Called only from the hub loop.
func (s *MendServer) broadcastJobUpdate(job *jobs.Job) {
	msg := JobUpdateMessage{
		Type:              "job_update",
		JobID:             job.ID,
		Kind:              job.Kind,
		Status:            job.Status,
		RetryCount:        job.RetryCount,
		LastFailureReason: job.LastFailureReason,
		Timestamp:         time.Now().Unix(),
	}

	sent := s.broadcastMessage(msg)
	s.logger.Debugw("Broadcast job update",
		"job_id", job.ID,
		"status", job.Status,
		"clients", sent,
	)
}

// startCleanupTicker periodically removes old terminal jobs and stale
// progress snapshots. Disabled when the configured interval is zero.
func (s *MendServer) startCleanupTicker() {
	interval := time.Duration(s.cfg.Cleanup.IntervalMinutes) * time.Minute
	if interval <= 0 {
		s.logger.Infow("Cleanup ticker disabled")
		return
	}

	jobRetention := time.Duration(s.cfg.Cleanup.JobRetentionHours) * time.Hour
	progressMaxAge := time.Duration(s.cfg.Cleanup.ProgressMaxAgeHours) * time.Hour

	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debugw("Cleanup ticker stopping due to context cancellation")
				return
			case <-ticker.C:
				s.runCleanup(jobRetention, progressMaxAge)
			}
		}
	}()
}

func (s *MendServer) runCleanup(jobRetention, progressMaxAge time.Duration) {
	removed, err := s.store.CleanupOldJobs(jobRetention)
	if err != nil {
		s.logger.Warnw("Job cleanup failed", "error", err)
	} else if removed > 0 {
		s.logger.Infow("Removed old jobs", "count", removed, "retention", jobRetention)
	}

	if s.progress == nil {
		return
	}

	removed, err = s.progress.CleanupStale(progressMaxAge)
	if err != nil {
		s.logger.Warnw("Progress cleanup failed", "error", err)
	} else if removed > 0 {
		s.logger.Infow("Removed stale progress snapshots", "count", removed, "max_age", progressMaxAge)
	}
}
