package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
	"github.com/campusmesh/timetable-api/internal/dto"
	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/solver"
	appErrors "github.com/campusmesh/timetable-api/pkg/errors"
	"github.com/campusmesh/timetable-api/pkg/jobs"
)

// JobKindGenerate labels queued generation work.
const JobKindGenerate = "generate"

type snapshotProvider interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
}

type generationTimetableStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	InsertSlots(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
	ArchiveActive(ctx context.Context, exec sqlx.ExtContext, exceptID string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// GenerationConfig carries the scheduler defaults shared by every run.
type GenerationConfig struct {
	DefaultAlgorithm string
	RunTTL           time.Duration
	Workers          int
	PopulationSize   int
	MaxGenerations   int
	CrossoverRate    float64
	MutationRate     float64
	EliteSize        int
	TournamentSize   int
}

// generationRun is the in-memory state of one solve. The solver and snapshot
// fields are set once at creation and never mutated afterwards; everything
// else changes only under the store lock.
type generationRun struct {
	ID         string
	Status     dto.RunStatus
	Algorithm  string
	BatchIDs   []string
	Async      bool
	Progress   *dto.RunProgress
	Result     *dto.GenerationResult
	Err        *dto.RunError
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	solver   solver.Solver
	snapshot *domain.Snapshot
}

// runStore keeps generation runs in memory. Finished runs expire after the
// configured TTL; running solves are never evicted.
type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]*generationRun
}

func newRunStore(ttl time.Duration) *runStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &runStore{ttl: ttl, items: make(map[string]*generationRun)}
}

func (s *runStore) expired(run *generationRun, now time.Time) bool {
	switch run.Status {
	case dto.RunStatusRunning:
		return false
	case dto.RunStatusCompleted, dto.RunStatusFailed:
		return run.FinishedAt != nil && now.Sub(*run.FinishedAt) > s.ttl
	default:
		return now.Sub(run.CreatedAt) > s.ttl
	}
}

func (s *runStore) save(run *generationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, existing := range s.items {
		if s.expired(existing, now) {
			delete(s.items, id)
		}
	}
	s.items[run.ID] = run
}

func (s *runStore) inputs(id string) (solver.Solver, *domain.Snapshot, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.items[id]
	if !ok {
		return nil, nil, "", false
	}
	return run.solver, run.snapshot, run.Algorithm, true
}

func (s *runStore) markRunning(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.items[id]; ok {
		run.Status = dto.RunStatusRunning
		run.StartedAt = &at
	}
}

func (s *runStore) setProgress(id string, progress dto.RunProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.items[id]; ok {
		run.Progress = &progress
	}
}

func (s *runStore) complete(id string, result *dto.GenerationResult, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.items[id]; ok {
		run.Status = dto.RunStatusCompleted
		run.Result = result
		run.FinishedAt = &at
	}
}

func (s *runStore) fail(id string, runErr dto.RunError, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.items[id]; ok {
		run.Status = dto.RunStatusFailed
		run.Err = &runErr
		run.FinishedAt = &at
	}
}

func (s *runStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// view returns an API copy of the run, evicting it when expired.
func (s *runStore) view(id string) (dto.GenerationRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.items[id]
	if !ok {
		return dto.GenerationRun{}, false
	}
	if s.expired(run, time.Now().UTC()) {
		delete(s.items, id)
		return dto.GenerationRun{}, false
	}

	view := dto.GenerationRun{
		ID:         run.ID,
		Status:     run.Status,
		Algorithm:  run.Algorithm,
		BatchIDs:   append([]string(nil), run.BatchIDs...),
		Async:      run.Async,
		Result:     run.Result,
		Error:      run.Err,
		CreatedAt:  run.CreatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Progress != nil {
		progress := *run.Progress
		view.Progress = &progress
	}
	return view, true
}

// completed returns the run when it finished successfully.
func (s *runStore) completed(id string) (dto.GenerationRun, bool) {
	view, ok := s.view(id)
	if !ok || view.Status != dto.RunStatusCompleted || view.Result == nil {
		return dto.GenerationRun{}, false
	}
	return view, true
}

// GenerationService runs timetable solves, tracks their progress and persists
// accepted results.
type GenerationService struct {
	snapshots  snapshotProvider
	timetables generationTimetableStore
	txs        txProvider
	queue      jobDispatcher
	store      *runStore
	cache      *CacheService
	metrics    *MetricsService
	audit      activityRecorder
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        GenerationConfig
}

// NewGenerationService constructs a GenerationService.
func NewGenerationService(snapshots snapshotProvider, timetables generationTimetableStore, txs txProvider, cache *CacheService, metrics *MetricsService, audit activityRecorder, validate *validator.Validate, logger *zap.Logger, cfg GenerationConfig) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultAlgorithm == "" {
		cfg.DefaultAlgorithm = string(solver.ChoiceCSP)
	}
	return &GenerationService{
		snapshots:  snapshots,
		timetables: timetables,
		txs:        txs,
		store:      newRunStore(cfg.RunTTL),
		cache:      cache,
		metrics:    metrics,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// SetQueue wires the background queue used for async runs. Without a queue
// async requests are rejected.
func (s *GenerationService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Generate starts a solve for the requested batches. Synchronous requests
// block until the solve finishes; async requests return a pending run to poll.
func (s *GenerationService) Generate(ctx context.Context, actor models.Actor, req dto.GenerateRequest) (*dto.GenerationRun, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}

	algorithm := strings.TrimSpace(req.Algorithm)
	if algorithm == "" {
		algorithm = s.cfg.DefaultAlgorithm
	}
	choice, err := solver.ParseChoice(algorithm)
	if err != nil {
		return nil, translateSolveError(err)
	}

	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sol, err := solver.New(snap, req.BatchIDs, s.solverOptions(choice, req.Options))
	if err != nil {
		return nil, translateSolveError(err)
	}

	run := &generationRun{
		ID:        uuid.NewString(),
		Status:    dto.RunStatusPending,
		Algorithm: string(choice),
		BatchIDs:  append([]string(nil), req.BatchIDs...),
		Async:     req.Async,
		CreatedAt: time.Now().UTC(),
		solver:    sol,
		snapshot:  snap,
	}
	s.store.save(run)

	s.recordGenerationActivity(ctx, actor, models.ActivityGenerate, run.ID, map[string]interface{}{
		"algorithm": run.Algorithm,
		"batch_ids": run.BatchIDs,
		"async":     run.Async,
	})

	if req.Async {
		if s.queue == nil {
			s.store.remove(run.ID)
			return nil, appErrors.Clone(appErrors.ErrInternal, "async generation is not available")
		}
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Kind: JobKindGenerate, Payload: run.ID}); err != nil {
			s.store.remove(run.ID)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run")
		}
		view, _ := s.store.view(run.ID)
		return &view, nil
	}

	if err := s.execute(ctx, run.ID); err != nil {
		return nil, err
	}
	view, ok := s.store.view(run.ID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, "generation run lost")
	}
	return &view, nil
}

// Run returns the current state of a generation run.
func (s *GenerationService) Run(id string) (*dto.GenerationRun, error) {
	view, ok := s.store.view(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}
	return &view, nil
}

// HandleJob executes one queued generation run. Solve failures are recorded
// on the run and not returned, so the queue does not retry deterministic
// failures.
func (s *GenerationService) HandleJob(ctx context.Context, job jobs.Job) error {
	runID, ok := job.Payload.(string)
	if !ok || runID == "" {
		runID = job.ID
	}
	if err := s.execute(ctx, runID); err != nil {
		s.logger.Warn("async generation run failed", zap.String("run_id", runID), zap.Error(err))
	}
	return nil
}

// Save persists a completed run as a timetable, optionally activating it in
// the same transaction.
func (s *GenerationService) Save(ctx context.Context, actor models.Actor, runID string, req dto.SaveRunRequest) (timetable *models.Timetable, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save payload")
	}

	run, ok := s.store.completed(runID)
	if !ok {
		if _, exists := s.store.view(runID); exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "generation run has not completed")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}

	batchIDs, _ := json.Marshal(run.BatchIDs)
	timetable = &models.Timetable{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Algorithm:    run.Algorithm,
		Status:       models.TimetableStatusDraft,
		FitnessScore: run.Result.BestFitness,
		BatchIDs:     types.JSONText(batchIDs),
		ElapsedMs:    run.Result.ElapsedMs,
	}
	if actor.ID != "" {
		timetable.CreatedBy = &actor.ID
	}

	slots := make([]models.TimetableSlot, 0, len(run.Result.Slots))
	for _, slot := range run.Result.Slots {
		slots = append(slots, models.TimetableSlot{
			ID:          uuid.NewString(),
			TimetableID: timetable.ID,
			BatchID:     slot.BatchID,
			SubjectID:   slot.SubjectID,
			FacultyID:   slot.FacultyID,
			RoomID:      slot.RoomID,
			DayIndex:    slot.DayIndex,
			PeriodIndex: slot.PeriodIndex,
			Kind:        slot.Kind,
			IsFixed:     slot.Fixed,
		})
	}

	tx, err := s.txs.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin save transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.timetables.Create(ctx, tx, timetable); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	if err = s.timetables.InsertSlots(ctx, tx, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable slots")
	}
	if req.Activate {
		if err = s.timetables.ArchiveActive(ctx, tx, timetable.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive active timetable")
		}
		if err = s.timetables.UpdateStatus(ctx, tx, timetable.ID, models.TimetableStatusActive); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate timetable")
		}
		timetable.Status = models.TimetableStatusActive
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit saved timetable")
	}

	s.store.remove(runID)

	if s.cache != nil && s.cache.Enabled() {
		if cacheErr := s.cache.Invalidate(ctx, cachePatternAnalytics); cacheErr != nil {
			s.logger.Warn("failed to invalidate analytics cache", zap.Error(cacheErr))
		}
	}

	s.recordGenerationActivity(ctx, actor, models.ActivityTimetableSave, timetable.ID, map[string]interface{}{
		"name":      timetable.Name,
		"run_id":    runID,
		"activated": req.Activate,
	})

	s.logger.Info("timetable saved",
		zap.String("timetable_id", timetable.ID),
		zap.String("run_id", runID),
		zap.Bool("activated", req.Activate),
		zap.Int("slots", len(slots)))

	return timetable, nil
}

func (s *GenerationService) execute(ctx context.Context, runID string) error {
	sol, snap, algorithm, ok := s.store.inputs(runID)
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}

	startedAt := time.Now().UTC()
	s.store.markRunning(runID, startedAt)
	if s.metrics != nil {
		s.metrics.RunStarted()
		defer s.metrics.RunFinished()
	}

	onProgress := func(p solver.Progress) {
		s.store.setProgress(runID, dto.RunProgress{
			Stage:     p.Stage,
			Completed: p.Completed,
			Total:     p.Total,
			Best:      p.Best,
			Average:   p.Average,
		})
	}

	res, err := sol.Run(ctx, onProgress)
	finishedAt := time.Now().UTC()
	if err != nil {
		appErr := appErrors.FromError(translateSolveError(err))
		s.store.fail(runID, dto.RunError{Code: appErr.Code, Message: appErr.Message}, finishedAt)
		if s.metrics != nil {
			s.metrics.RecordGeneration(algorithm, "failed", finishedAt.Sub(startedAt), 0)
		}
		return appErr
	}

	result := buildGenerationResult(snap, res)
	s.store.complete(runID, result, finishedAt)
	if s.metrics != nil {
		s.metrics.RecordGeneration(algorithm, "completed", res.Elapsed, res.BestFitness)
	}

	s.logger.Info("generation run completed",
		zap.String("run_id", runID),
		zap.String("method", res.Method),
		zap.Int("slots", len(res.Slots)),
		zap.Float64("fitness", res.BestFitness),
		zap.Duration("elapsed", res.Elapsed))
	return nil
}

func (s *GenerationService) solverOptions(choice solver.Choice, req *dto.GenerateOptions) solver.Options {
	opts := solver.Options{
		Choice:         choice,
		Workers:        s.cfg.Workers,
		PopulationSize: s.cfg.PopulationSize,
		MaxGenerations: s.cfg.MaxGenerations,
		CrossoverRate:  s.cfg.CrossoverRate,
		MutationRate:   s.cfg.MutationRate,
		EliteSize:      s.cfg.EliteSize,
		TournamentSize: s.cfg.TournamentSize,
		Logger:         s.logger,
	}
	if req == nil {
		return opts
	}
	opts.IgnoreFixedSlots = req.IgnoreFixedSlots
	opts.Sequential = req.Sequential
	opts.Seed = req.Seed
	if req.MaxIterations > 0 {
		opts.MaxIterations = req.MaxIterations
	}
	if req.PopulationSize > 0 {
		opts.PopulationSize = req.PopulationSize
	}
	if req.MaxGenerations > 0 {
		opts.MaxGenerations = req.MaxGenerations
	}
	if req.CrossoverRate > 0 {
		opts.CrossoverRate = req.CrossoverRate
	}
	if req.MutationRate > 0 {
		opts.MutationRate = req.MutationRate
	}
	if req.EliteSize > 0 {
		opts.EliteSize = req.EliteSize
	}
	if req.TournamentSize > 0 {
		opts.TournamentSize = req.TournamentSize
	}
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	return opts
}

func (s *GenerationService) recordGenerationActivity(ctx context.Context, actor models.Actor, action, entityID string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	entry := &models.ActivityLog{
		Username:  actor.Username,
		Action:    action,
		Entity:    "timetables",
		Detail:    types.JSONText(payload),
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.ID != "" {
		entry.UserID = &actor.ID
	}
	if entityID != "" {
		entry.EntityID = &entityID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record generation activity", zap.String("action", action), zap.Error(err))
	}
}

// buildGenerationResult converts a solver result into its API form, resolving
// calendar labels and validating the schedule against the hard rules.
func buildGenerationResult(snap *domain.Snapshot, res *solver.Result) *dto.GenerationResult {
	cal := snap.Calendar

	slots := make([]dto.ScheduledSlotPayload, 0, len(res.Slots))
	for _, slot := range res.Slots {
		kind := string(domain.SessionTheory)
		if snap.SubjectTypeOf(slot.SubjectID) == domain.SubjectPractical {
			kind = string(domain.SessionLab)
		}
		slots = append(slots, dto.ScheduledSlotPayload{
			BatchID:     slot.BatchID,
			SubjectID:   slot.SubjectID,
			FacultyID:   slot.FacultyID,
			RoomID:      slot.RoomID,
			Kind:        kind,
			DayIndex:    slot.DayIndex,
			PeriodIndex: slot.PeriodIndex,
			Day:         cal.DayAt(slot.DayIndex),
			Period:      cal.PeriodAt(slot.PeriodIndex),
			Fixed:       slot.Fixed,
		})
	}

	trace := make([]dto.TracePoint, 0, len(res.Trace))
	for _, record := range res.Trace {
		trace = append(trace, dto.TracePoint{
			Generation: record.Generation,
			Best:       record.Best,
			Average:    record.Average,
			Conflicts:  record.Conflicts,
		})
	}

	result := &dto.GenerationResult{
		Method:      res.Method,
		BestFitness: res.BestFitness,
		ElapsedMs:   res.Elapsed.Milliseconds(),
		SlotCount:   len(res.Slots),
		Slots:       slots,
		Trace:       trace,
	}

	for _, conflict := range solver.ValidateSchedule(snap, res.Slots) {
		result.Conflicts = append(result.Conflicts, dto.ConflictPayload{
			Constraint:  conflict.Constraint,
			DayIndex:    conflict.DayIndex,
			PeriodIndex: conflict.PeriodIndex,
			EntityID:    conflict.EntityID,
			Count:       conflict.Count,
			Message:     conflict.String(),
		})
	}
	if n := len(result.Conflicts); n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("schedule contains %d hard conflicts, review before saving", n))
	}

	return result
}

func translateSolveError(err error) error {
	var cfgErr *solver.ConfigurationError
	if errors.As(err, &cfgErr) {
		return appErrors.Wrap(err, appErrors.ErrSolverConfig.Code, appErrors.ErrSolverConfig.Status, cfgErr.Reason)
	}
	var emptyErr *solver.EmptyRequirementsError
	if errors.As(err, &emptyErr) {
		return appErrors.Wrap(err, appErrors.ErrEmptyRequirements.Code, appErrors.ErrEmptyRequirements.Status, emptyErr.Error())
	}
	var infeasibleErr *solver.InfeasibleScheduleError
	if errors.As(err, &infeasibleErr) {
		return appErrors.Wrap(err, appErrors.ErrScheduleInfeasible.Code, appErrors.ErrScheduleInfeasible.Status, infeasibleErr.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "generation interrupted")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "generation failed")
}
