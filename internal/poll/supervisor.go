package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/board"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/learn"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/snapshot"
	"go.uber.org/zap"
)

const (
	defaultBootstrapTimeout = 30 * time.Second
	defaultRestInterval     = 60 * time.Second
	defaultProcessWorkers   = 8
)

// State is the supervisor's position in the polling state machine.
type State string

const (
	StateBootstrapping State = "bootstrapping"
	StateSteady        State = "steady"
	StateRecovering    State = "recovering"
)

const (
	opSupervisorNew = "poll.supervisor.new"
	opStartup       = "poll.startup"
	opBootstrap     = "poll.bootstrap"
	opCycle         = "poll.cycle"
	opRecover       = "poll.recover"
)

var (
	errMissingPlatform = errors.New("platform is required")
	errMissingFetcher  = errors.New("fetcher is required")
	errMissingStore    = errors.New("snapshot store is required")
	errMissingSemester = errors.New("semester is required")
)

// CycleError carries an operation code such as "poll.cycle.fetch_failed".
type CycleError struct {
	code string
	err  error
}

func (e *CycleError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *CycleError) Unwrap() error {
	return e.err
}

func (e *CycleError) Code() string {
	return e.code
}

func newCycleError(operation, reason string, cause error) error {
	return &CycleError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Platform is the authenticated remote data source.
type Platform interface {
	Source
	Login(ctx context.Context, username, password string) error
}

// SnapshotStore persists the last complete snapshot.
type SnapshotStore interface {
	Load() (course.Snapshot, error)
	Save(snapshot course.Snapshot) error
}

// BoardLister lists the open lists of the task board.
type BoardLister interface {
	ListsOnBoard(ctx context.Context, boardID, filter string) ([]board.List, error)
}

// Reconciler mirrors one course's assignments onto the task board.
type Reconciler interface {
	Reconcile(ctx context.Context, courseName string, assignments []course.Assignment, lists []board.List) (board.ReconcileReport, error)
}

// Dispatcher delivers the change events of one course. It must be safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []course.ChangeEvent)
}

// Credentials are the platform login.
type Credentials struct {
	Username string
	Password string
}

// SupervisorConfig configures a Supervisor. Board and Reconciler are optional; without them
// the task board is left alone.
type SupervisorConfig struct {
	Platform         Platform
	Fetcher          *Fetcher
	Store            SnapshotStore
	Dispatcher       Dispatcher
	Board            BoardLister
	BoardID          string
	Reconciler       Reconciler
	Credentials      Credentials
	Semester         string
	CycleTimeout     time.Duration
	BootstrapTimeout time.Duration
	RestInterval     time.Duration
	Workers          int
	IDProvider       IDProvider
	Clock            func() time.Time
	Sleep            func(ctx context.Context, d time.Duration) error
	Logger           *zap.Logger
}

// Status is a point-in-time view of the supervisor for the status endpoint.
type Status struct {
	State       State     `json:"state"`
	LastCycleID string    `json:"lastCycleId,omitempty"`
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
	Courses     int       `json:"courses"`
	Cycles      int       `json:"cycles"`
}

// CycleReport summarizes one successful steady cycle.
type CycleReport struct {
	CycleID           string
	Courses           int
	Events            int
	ReconcileFailures int
}

// Supervisor runs the Bootstrapping, Steady and Recovering cycle.
type Supervisor struct {
	platform         Platform
	fetcher          *Fetcher
	store            SnapshotStore
	dispatcher       Dispatcher
	boardLister      BoardLister
	boardID          string
	reconciler       Reconciler
	credentials      Credentials
	semester         string
	cycleTimeout     time.Duration
	bootstrapTimeout time.Duration
	restInterval     time.Duration
	workers          int
	idProvider       IDProvider
	clock            func() time.Time
	sleep            func(ctx context.Context, d time.Duration) error
	logger           *zap.Logger

	// previous is only touched from the Run goroutine.
	previous course.Snapshot

	mu     sync.RWMutex
	status Status
	latest course.Snapshot
}

// NewSupervisor validates cfg and returns a Supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Platform == nil {
		return nil, newCycleError(opSupervisorNew, "missing_platform", errMissingPlatform)
	}
	if cfg.Fetcher == nil {
		return nil, newCycleError(opSupervisorNew, "missing_fetcher", errMissingFetcher)
	}
	if cfg.Store == nil {
		return nil, newCycleError(opSupervisorNew, "missing_store", errMissingStore)
	}
	if cfg.Semester == "" {
		return nil, newCycleError(opSupervisorNew, "missing_semester", errMissingSemester)
	}

	cycleTimeout := cfg.CycleTimeout
	if cycleTimeout <= 0 {
		cycleTimeout = defaultCycleTimeout
	}
	bootstrapTimeout := cfg.BootstrapTimeout
	if bootstrapTimeout <= 0 {
		bootstrapTimeout = defaultBootstrapTimeout
	}
	restInterval := cfg.RestInterval
	if restInterval <= 0 {
		restInterval = defaultRestInterval
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultProcessWorkers
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = discardDispatcher{}
	}

	return &Supervisor{
		platform:         cfg.Platform,
		fetcher:          cfg.Fetcher,
		store:            cfg.Store,
		dispatcher:       dispatcher,
		boardLister:      cfg.Board,
		boardID:          cfg.BoardID,
		reconciler:       cfg.Reconciler,
		credentials:      cfg.Credentials,
		semester:         cfg.Semester,
		cycleTimeout:     cycleTimeout,
		bootstrapTimeout: bootstrapTimeout,
		restInterval:     restInterval,
		workers:          workers,
		idProvider:       idProvider,
		clock:            clock,
		sleep:            sleep,
		logger:           logger,
	}, nil
}

// Status returns a copy of the current status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Latest returns the most recent complete snapshot, if any.
func (s *Supervisor) Latest() (course.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest.Courses != nil
}

// Run logs in, picks the starting state from the stored snapshot and loops until ctx is
// cancelled. It returns an error only when the platform rejects the credentials.
func (s *Supervisor) Run(ctx context.Context) error {
	state := s.Start()

	if err := s.login(ctx); err != nil {
		if errors.Is(err, learn.ErrAuth) {
			s.logger.Error("platform rejected credentials", zap.Error(err))
			return newCycleError(opStartup, "auth_rejected", err)
		}
		s.logger.Warn("initial login failed", zap.Error(err))
		if state == StateSteady {
			state = StateRecovering
		}
	}

	for {
		if ctx.Err() != nil {
			s.logger.Info("poll supervisor stopped")
			return nil
		}
		s.setState(state)

		var err error
		switch state {
		case StateBootstrapping:
			state, err = s.bootstrapStep(ctx)
		case StateRecovering:
			state, err = s.recoverStep(ctx)
		default:
			state = s.steadyStep(ctx)
		}
		if err != nil {
			return err
		}
	}
}

// Start loads the stored snapshot and returns the state the machine begins in.
func (s *Supervisor) Start() State {
	previous, err := s.store.Load()
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		s.logger.Info("no stored snapshot, bootstrapping")
		return StateBootstrapping
	case err != nil:
		s.logger.Warn("stored snapshot unreadable, bootstrapping", zap.Error(err))
		return StateBootstrapping
	}
	s.previous = previous
	s.publish(previous)
	s.logger.Info("loaded stored snapshot", zap.Int("courses", len(previous.Courses)), zap.Time("captured_at", previous.CapturedAt))
	return StateSteady
}

// Bootstrap fetches every course once and persists the result as the baseline without diffing.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	cycleID := s.newCycleID()
	logger := s.logger.With(zap.String("cycle_id", cycleID), zap.String("state", string(StateBootstrapping)))

	baseline, err := s.fetcher.Capture(ctx, s.semester, s.bootstrapTimeout)
	if err != nil {
		return s.fetchFailure(ctx, logger, opBootstrap, cycleID, err)
	}

	s.persist(logger, baseline)
	s.previous = baseline
	s.recordSuccess(cycleID, baseline)
	logger.Info("bootstrap snapshot captured", zap.Int("courses", len(baseline.Courses)))
	return nil
}

// RunCycle performs one steady cycle: fetch under the cycle deadline, then reconcile, diff
// and dispatch per course, then persist. Nothing is processed unless the fetch succeeds.
func (s *Supervisor) RunCycle(ctx context.Context) (CycleReport, error) {
	cycleID := s.newCycleID()
	logger := s.logger.With(zap.String("cycle_id", cycleID), zap.String("state", string(StateSteady)))
	report := CycleReport{CycleID: cycleID}

	current, err := s.fetcher.Capture(ctx, s.semester, s.cycleTimeout)
	if err != nil {
		return report, s.fetchFailure(ctx, logger, opCycle, cycleID, err)
	}

	lists := s.boardLists(ctx, logger)

	var events atomic.Int64
	var reconcileFailures atomic.Int64
	slots := make(chan struct{}, s.workers)
	var processing sync.WaitGroup
	for _, observed := range current.Courses {
		slots <- struct{}{}
		processing.Go(func() {
			defer func() { <-slots }()
			courseLogger := logger.With(zap.String("course_id", observed.ID.String()), zap.String("course", observed.Name))
			if lists != nil && s.reconciler != nil {
				result, err := s.reconciler.Reconcile(ctx, observed.Name, observed.Assignments, lists)
				if err != nil {
					reconcileFailures.Add(1)
					courseLogger.Error("board reconciliation failed", zap.Error(err))
				} else if result.Failed > 0 {
					reconcileFailures.Add(1)
					courseLogger.Warn("board reconciliation incomplete", zap.Int("failed_operations", result.Failed))
				}
			}

			changes := course.Diff(observed.Name, s.previous.Lookup(observed.ID), observed)
			if len(changes) == 0 {
				return
			}
			courseLogger.Info("course changed", zap.Int("events", len(changes)))
			events.Add(int64(len(changes)))
			s.dispatcher.Dispatch(ctx, changes)
		})
	}
	processing.Wait()

	s.persist(logger, current)
	s.previous = current
	s.recordSuccess(cycleID, current)

	report.Courses = len(current.Courses)
	report.Events = int(events.Load())
	report.ReconcileFailures = int(reconcileFailures.Load())
	logger.Debug("cycle finished",
		zap.Int("courses", report.Courses),
		zap.Int("events", report.Events),
		zap.Int("reconcile_failures", report.ReconcileFailures),
	)
	return report, nil
}

func (s *Supervisor) fetchFailure(ctx context.Context, logger *zap.Logger, operation, cycleID string, err error) error {
	if ctx.Err() != nil {
		return newCycleError(operation, "cancelled", err)
	}
	s.recordFailure(cycleID, err)
	if errors.Is(err, ErrCycleTimeout) {
		logger.Warn("fetch deadline exceeded", zap.Error(err))
		return newCycleError(operation, "timeout", err)
	}
	logger.Error("fetch failed", zap.Error(err))
	return newCycleError(operation, "fetch_failed", err)
}

func (s *Supervisor) bootstrapStep(ctx context.Context) (State, error) {
	err := s.Bootstrap(ctx)
	if err == nil {
		return StateSteady, nil
	}
	if ctx.Err() != nil {
		return StateBootstrapping, nil
	}
	if !errors.Is(err, ErrCycleTimeout) {
		if loginErr := s.login(ctx); errors.Is(loginErr, learn.ErrAuth) {
			return StateBootstrapping, newCycleError(opBootstrap, "auth_rejected", loginErr)
		} else if loginErr != nil {
			s.logger.Warn("re-authentication failed", zap.Error(loginErr))
		}
	}
	_ = s.sleep(ctx, s.restInterval)
	return StateBootstrapping, nil
}

func (s *Supervisor) steadyStep(ctx context.Context) State {
	_, err := s.RunCycle(ctx)
	switch {
	case err == nil:
		_ = s.sleep(ctx, s.restInterval)
		return StateSteady
	case ctx.Err() != nil:
		return StateSteady
	case errors.Is(err, ErrCycleTimeout):
		return StateSteady
	default:
		return StateRecovering
	}
}

func (s *Supervisor) recoverStep(ctx context.Context) (State, error) {
	s.logger.Info("re-authenticating")
	err := s.login(ctx)
	switch {
	case err == nil:
		s.logger.Info("re-authenticated")
		_ = s.sleep(ctx, s.restInterval)
		return StateSteady, nil
	case errors.Is(err, learn.ErrAuth):
		s.logger.Error("platform rejected credentials", zap.Error(err))
		return StateRecovering, newCycleError(opRecover, "auth_rejected", err)
	default:
		s.logger.Warn("re-authentication failed", zap.Error(err))
		_ = s.sleep(ctx, s.restInterval)
		return StateRecovering, nil
	}
}

func (s *Supervisor) login(ctx context.Context) error {
	return s.platform.Login(ctx, s.credentials.Username, s.credentials.Password)
}

func (s *Supervisor) boardLists(ctx context.Context, logger *zap.Logger) []board.List {
	if s.boardLister == nil || s.reconciler == nil {
		return nil
	}
	lists, err := s.boardLister.ListsOnBoard(ctx, s.boardID, "open")
	if err != nil {
		logger.Error("failed to list board lists, skipping reconciliation", zap.Error(err))
		return nil
	}
	return lists
}

// persist saves the snapshot. A failed write is logged; the cycle still counts as complete.
func (s *Supervisor) persist(logger *zap.Logger, current course.Snapshot) {
	if err := s.store.Save(current); err != nil {
		logger.Error("failed to persist snapshot", zap.Error(err))
	}
	s.publish(current)
}

func (s *Supervisor) publish(current course.Snapshot) {
	s.mu.Lock()
	s.latest = current
	s.mu.Unlock()
}

func (s *Supervisor) newCycleID() string {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logger.Warn("failed to issue cycle id", zap.Error(err))
		return ""
	}
	return id
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *Supervisor) recordSuccess(cycleID string, current course.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastCycleID = cycleID
	s.status.LastSuccess = s.clock().UTC()
	s.status.LastError = ""
	s.status.Courses = len(current.Courses)
	s.status.Cycles++
}

func (s *Supervisor) recordFailure(cycleID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastCycleID = cycleID
	s.status.LastError = err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type discardDispatcher struct{}

func (discardDispatcher) Dispatch(context.Context, []course.ChangeEvent) {}
