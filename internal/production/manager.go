package production

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// Errors returned by the manager.
var (
	ErrRecipeNotFound       = errors.New("recipe not found")
	ErrJobNotFound          = errors.New("job not found")
	ErrJobNotRunning        = errors.New("job is not running")
	ErrInsufficientInputs   = errors.New("insufficient resources")
	ErrInsufficientCapacity = errors.New("insufficient capacity for outputs")
	ErrRefundIncomplete     = errors.New("refund did not fit into storage")
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now as the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRoll replaces the random source used for output probabilities. The
// function must return values in [0, 1).
func WithRoll(roll func() float64) Option {
	return func(m *Manager) { m.roll = roll }
}

// Manager handles production jobs for a set of storages.
//
// A Manager shares the storages it works on and is not safe for concurrent
// use; drive it from the goroutine that owns those storages.
type Manager struct {
	id              string
	registry        *RecipeRegistry
	storages        StorageProvider
	eventBus        EventBus
	modifierSources []ModifierSource

	jobs       map[JobID]*Job
	activeJobs jobQueue
	nextJobID  int64
	now        func() time.Time
	roll       func() float64
}

// NewManager creates a new production manager.
func NewManager(
	id string,
	registry *RecipeRegistry,
	storages StorageProvider,
	eventBus EventBus,
	modifierSources []ModifierSource,
	opts ...Option,
) *Manager {
	if eventBus == nil {
		eventBus = NullEventBus{}
	}
	m := &Manager{
		id:              id,
		registry:        registry,
		storages:        storages,
		eventBus:        eventBus,
		modifierSources: modifierSources,
		jobs:            make(map[JobID]*Job),
		now:             time.Now,
		roll:            rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the manager's identifier.
func (m *Manager) ID() string {
	return m.id
}

// Registry returns the recipes the manager produces from.
func (m *Manager) Registry() *RecipeRegistry {
	return m.registry
}

// StartProduction initiates a new production job in the given storage.
// Consumed inputs are taken from the storage immediately; tools stay
// reserved and the space for the outputs is reserved until completion.
func (m *Manager) StartProduction(recipeID RecipeID, owner, storageID string) (JobID, error) {
	return m.start(recipeID, owner, storageID, false)
}

// StartRepeatingProduction initiates a job that restarts after each cycle
// until it is cancelled or runs out of inputs or space.
func (m *Manager) StartRepeatingProduction(recipeID RecipeID, owner, storageID string) (JobID, error) {
	return m.start(recipeID, owner, storageID, true)
}

func (m *Manager) start(recipeID RecipeID, owner, storageID string, repeat bool) (JobID, error) {
	recipe := m.registry.Lookup(recipeID)
	if recipe == nil {
		return "", fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
	}

	modifiers := m.resolveModifiers(storageID, recipeID)
	now := m.now()
	m.nextJobID++
	job := &Job{
		ID:                JobID(fmt.Sprintf("%s-%d", m.id, m.nextJobID)),
		Recipe:            recipeID,
		Owner:             owner,
		StorageID:         storageID,
		Modifiers:         modifiers,
		EffectiveInputs:   applyInputModifiers(recipe.Inputs, modifiers.InputCost),
		EffectiveOutputs:  applyOutputModifiers(recipe.Outputs, modifiers.OutputYield),
		EffectiveDuration: applyDurationModifier(recipe.Duration, modifiers.TimeSpeed),
		Repeat:            repeat,
	}
	if err := m.begin(job, now); err != nil {
		m.nextJobID--
		return "", err
	}

	m.jobs[job.ID] = job
	m.eventBus.Publish(Event{
		Type:      EventJobStarted,
		Job:       job.view(),
		Timestamp: now,
	})
	return job.ID, nil
}

// begin reserves everything a cycle needs, consumes its inputs and queues
// the job. Nothing is held when it fails.
func (m *Manager) begin(job *Job, now time.Time) error {
	s, err := m.storages.Storage(job.StorageID)
	if err != nil {
		return fmt.Errorf("storage %s: %w", job.StorageID, err)
	}

	inputs := make([]*storage.QuantityReservation, 0, len(job.EffectiveInputs))
	abort := func() {
		for _, r := range inputs {
			r.Release()
		}
		for _, r := range job.outputs {
			r.Release()
		}
		job.outputs = nil
	}
	for _, in := range job.EffectiveInputs {
		r := s.ReserveQuantity(in.Item, in.Quantity)
		inputs = append(inputs, r)
		if r.Amount() < in.Quantity {
			abort()
			return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientInputs, in.Quantity, in.Item, r.Amount())
		}
	}
	for _, out := range job.EffectiveOutputs {
		r := s.ReserveCapacity(out.Item, out.Quantity)
		job.outputs = append(job.outputs, r)
		if r.Amount() < out.Quantity {
			abort()
			return fmt.Errorf("%w: need space for %d %s", ErrInsufficientCapacity, out.Quantity, out.Item)
		}
	}

	for i, in := range job.EffectiveInputs {
		if in.Tool {
			job.tools = append(job.tools, inputs[i])
			continue
		}
		inputs[i].Collect()
	}

	job.State = JobRunning
	job.Progress = 0.0
	job.StartTime = now
	job.EndTime = now.Add(job.EffectiveDuration)
	m.activeJobs.schedule(job)
	return nil
}

// Update completes every job that is due at now. Call it from the
// simulation loop.
func (m *Manager) Update(now time.Time) {
	for _, job := range m.activeJobs.due(now) {
		m.complete(job, now)
	}
}

func (m *Manager) complete(job *Job, now time.Time) {
	rejected := 0
	for i, out := range job.EffectiveOutputs {
		if out.Probability >= 1.0 || m.roll() < out.Probability {
			rejected += job.outputs[i].Deliver(out.Quantity)
			continue
		}
		job.outputs[i].Release()
	}
	job.release()

	job.Progress = 1.0
	if rejected > 0 {
		job.State = JobFailed
		m.eventBus.Publish(Event{
			Type:      EventJobFailed,
			Job:       job.view(),
			Timestamp: now,
			Data: map[string]any{
				"error": fmt.Sprintf("%d output items did not fit", rejected),
			},
		})
		delete(m.jobs, job.ID)
		return
	}

	job.CyclesCompleted++
	job.State = JobComplete
	m.eventBus.Publish(Event{
		Type:      EventJobCompleted,
		Job:       job.view(),
		Timestamp: now,
		Data: map[string]any{
			"cyclesCompleted": job.CyclesCompleted,
		},
	})

	if !job.Repeat {
		delete(m.jobs, job.ID)
		return
	}
	if err := m.begin(job, now); err != nil {
		job.State = JobFailed
		m.eventBus.Publish(Event{
			Type:      EventJobFailed,
			Job:       job.view(),
			Timestamp: now,
			Data: map[string]any{
				"error":           err.Error(),
				"reason":          "failed_to_restart",
				"cyclesCompleted": job.CyclesCompleted,
			},
		})
		delete(m.jobs, job.ID)
		return
	}
	m.eventBus.Publish(Event{
		Type:      EventJobStarted,
		Job:       job.view(),
		Timestamp: now,
		Data: map[string]any{
			"isRestart":       true,
			"cyclesCompleted": job.CyclesCompleted,
		},
	})
}

// CancelProduction cancels a running job and releases its tools and output
// space. Consumed inputs are not refunded.
func (m *Manager) CancelProduction(jobID JobID) error {
	_, err := m.cancel(jobID)
	return err
}

// CancelProductionWithRefund cancels a running job and puts its consumed
// inputs back into the storage. Items that no longer fit are lost and
// reported with ErrRefundIncomplete.
func (m *Manager) CancelProductionWithRefund(jobID JobID) error {
	job, err := m.cancel(jobID)
	if err != nil {
		return err
	}
	s, err := m.storages.Storage(job.StorageID)
	if err != nil {
		return fmt.Errorf("failed to get storage for refund: %w", err)
	}
	lost := 0
	for _, in := range job.EffectiveInputs {
		if !in.Tool {
			lost += s.AddItems(in.Item, in.Quantity, true)
		}
	}
	if lost > 0 {
		return fmt.Errorf("%w: %d items lost", ErrRefundIncomplete, lost)
	}
	return nil
}

func (m *Manager) cancel(jobID JobID) (*Job, error) {
	job, exists := m.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.State != JobRunning {
		return nil, fmt.Errorf("%w: %s", ErrJobNotRunning, job.State)
	}

	now := m.now()
	m.activeJobs.remove(jobID)
	job.release()
	job.Progress = job.CalculateProgress(now)
	job.State = JobCancelled
	m.eventBus.Publish(Event{
		Type:      EventJobCancelled,
		Job:       job.view(),
		Timestamp: now,
	})
	delete(m.jobs, jobID)
	return job, nil
}

// GetJob returns a copy of a job with its progress updated, or nil.
func (m *Manager) GetJob(jobID JobID) *Job {
	job := m.jobs[jobID]
	if job == nil {
		return nil
	}
	v := job.view()
	v.Progress = job.CalculateProgress(m.now())
	return v
}

// GetActiveJobs returns copies of the running jobs of an owner.
func (m *Manager) GetActiveJobs(owner string) []*Job {
	return m.collect(func(j *Job) bool { return j.Owner == owner && j.State == JobRunning })
}

// GetStorageJobs returns copies of the jobs running in a storage.
func (m *Manager) GetStorageJobs(storageID string) []*Job {
	return m.collect(func(j *Job) bool { return j.StorageID == storageID })
}

// GetAllJobs returns copies of all jobs in this manager.
func (m *Manager) GetAllJobs() []*Job {
	return m.collect(func(*Job) bool { return true })
}

func (m *Manager) collect(keep func(*Job) bool) []*Job {
	now := m.now()
	result := make([]*Job, 0)
	for _, job := range m.jobs {
		if keep(job) {
			v := job.view()
			v.Progress = job.CalculateProgress(now)
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})
	return result
}

// JobCount returns the number of active jobs.
func (m *Manager) JobCount() int {
	return len(m.jobs)
}

// resolveModifiers combines all modifier sources for a job.
func (m *Manager) resolveModifiers(storageID string, recipeID RecipeID) Modifiers {
	result := DefaultModifiers()
	for _, source := range m.modifierSources {
		result = result.Combine(source.GetModifiers(storageID, recipeID))
	}
	return result
}
