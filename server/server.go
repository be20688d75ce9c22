// Package server exposes the administrative HTTP and WebSocket surface for
// mend: retrying failed jobs, listing failure state, and streaming job
// updates to connected operator UIs.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/skillvee/mend/config"
	"github.com/skillvee/mend/health"
	"github.com/skillvee/mend/jobs"
	"github.com/skillvee/mend/progress"
)

// MaxClients bounds concurrent WebSocket connections. This is an operator
// surface, not a public one; more than a handful of clients means something
// is reconnect-looping.
const MaxClients = 32

// MendServer serves the administrative API over HTTP and pushes job updates
// to WebSocket clients.
type MendServer struct {
	db         *sql.DB
	cfg        *config.Config
	store      *jobs.Store
	errorLogs  *jobs.ErrorLogStore
	progress   *progress.Store
	controller *jobs.Controller
	runner     *jobs.Runner
	monitor    *health.Monitor
	logger     *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	jobUpdates chan *jobs.Job
	mu         sync.RWMutex

	httpServer *http.Server

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
}

// Deps bundles the collaborators a MendServer needs. Everything is required
// except Progress, which may be nil when progress tracking is disabled.
type Deps struct {
	DB         *sql.DB
	Config     *config.Config
	Store      *jobs.Store
	ErrorLogs  *jobs.ErrorLogStore
	Progress   *progress.Store
	Controller *jobs.Controller
	Runner     *jobs.Runner
	Monitor    *health.Monitor
	Logger     *zap.SugaredLogger
}

// NewServer creates the administrative server and subscribes it to runner
// job updates.
func NewServer(ctx context.Context, deps Deps) *MendServer {
	serverCtx, cancel := context.WithCancel(ctx)

	s := &MendServer{
		db:         deps.DB,
		cfg:        deps.Config,
		store:      deps.Store,
		errorLogs:  deps.ErrorLogs,
		progress:   deps.Progress,
		controller: deps.Controller,
		runner:     deps.Runner,
		monitor:    deps.Monitor,
		logger:     deps.Logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		jobUpdates: make(chan *jobs.Job, 64),
		ctx:        serverCtx,
		cancel:     cancel,
	}

	if s.runner != nil {
		s.runner.OnJobUpdate(s.queueJobUpdate)
	}

	return s
}

// queueJobUpdate hands a job update to the hub loop. Updates are dropped
// rather than blocking the runner when the hub can't keep up.
func (s *MendServer) queueJobUpdate(job *jobs.Job) {
	select {
	case s.jobUpdates <- job:
	case <-s.ctx.Done():
	default:
		s.broadcastDrops.Add(1)
		s.logger.Warnw("Job update queue full, dropping update",
			"job_id", job.ID,
			"total_drops", s.broadcastDrops.Load(),
		)
	}
}

// Run is the hub event loop: client registration, disconnection, and job
// update fan-out all serialize through here.
func (s *MendServer) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case job := <-s.jobUpdates:
			s.broadcastJobUpdate(job)
		}
	}
}

// handleClientRegister handles a new client connection
func (s *MendServer) handleClientRegister(client *Client) {
	s.mu.Lock()

	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}

	s.clients[client] = true
	totalClients := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"total_clients", totalClients,
	)
}

// handleClientUnregister handles a client disconnection
func (s *MendServer) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		totalClients := len(s.clients)
		s.mu.Unlock()

		client.close()

		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", totalClients,
		)
	} else {
		s.mu.Unlock()
	}
}

// removeSlowClient removes a client whose send channel is full.
// Only called from the hub loop, so closing channels directly is safe.
func (s *MendServer) removeSlowClient(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		return
	}

	client.close()

	s.logger.Warnw("Client send channel full, removing client",
		"client_id", client.id,
		"total_drops", s.broadcastDrops.Load(),
	)
}

// clientCount returns the number of connected WebSocket clients
func (s *MendServer) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
