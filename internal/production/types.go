// Package production turns recipe inputs held in a storage into outputs over
// time. Inputs are reserved and consumed when a job starts and the space for
// its outputs stays reserved until the job completes, so a running job can
// always deliver.
package production

import (
	"time"

	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// RecipeID uniquely identifies a recipe.
type RecipeID string

// JobID uniquely identifies a production job.
type JobID string

// Recipe defines the transformation rules for production.
type Recipe struct {
	ID       RecipeID      `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category,omitempty"`
	Inputs   []Input       `json:"inputs"`
	Outputs  []Output      `json:"outputs"`
	Duration time.Duration `json:"duration"`
}

// Input specifies an item a recipe needs.
type Input struct {
	Item     *storage.Item `json:"item"`
	Quantity int           `json:"quantity"`
	// Tool inputs are held for the duration of the job and not consumed.
	Tool bool `json:"tool,omitempty"`
}

// Output specifies an item a recipe produces.
type Output struct {
	Item        *storage.Item `json:"item"`
	Quantity    int           `json:"quantity"`
	Probability float64       `json:"probability"` // 0.0-1.0, default 1.0 (always)
}

// JobState represents the current state of a production job.
type JobState int

const (
	// JobRunning indicates the job is in progress (inputs already consumed)
	JobRunning JobState = iota
	// JobComplete indicates the job finished successfully
	JobComplete
	// JobFailed indicates the job could not deliver or restart
	JobFailed
	// JobCancelled indicates the job was cancelled
	JobCancelled
)

// String returns a human-readable representation of the job state.
func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "Running"
	case JobComplete:
		return "Complete"
	case JobFailed:
		return "Failed"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Job represents a single production instance in progress.
type Job struct {
	ID                JobID         `json:"id"`
	Recipe            RecipeID      `json:"recipe"`
	Owner             string        `json:"owner"`
	StorageID         string        `json:"storageId"`
	State             JobState      `json:"state"`
	Progress          float64       `json:"progress"` // 0.0-1.0
	StartTime         time.Time     `json:"startTime"`
	EndTime           time.Time     `json:"endTime"`
	Modifiers         Modifiers     `json:"modifiers"`
	EffectiveInputs   []Input       `json:"effectiveInputs"`
	EffectiveOutputs  []Output      `json:"effectiveOutputs"`
	EffectiveDuration time.Duration `json:"effectiveDuration"`
	Repeat            bool          `json:"repeat"`
	CyclesCompleted   int           `json:"cyclesCompleted"`

	tools   []*storage.QuantityReservation
	outputs []*storage.CapacityReservation
}

// CalculateProgress returns the current progress (0.0 to 1.0) based on time elapsed.
func (j *Job) CalculateProgress(now time.Time) float64 {
	if j.State != JobRunning {
		if j.State == JobComplete {
			return 1.0
		}
		return 0.0
	}
	if !now.Before(j.EndTime) {
		return 1.0
	}
	if now.Before(j.StartTime) {
		return 0.0
	}
	total := j.EndTime.Sub(j.StartTime)
	if total <= 0 {
		return 1.0
	}
	return float64(now.Sub(j.StartTime)) / float64(total)
}

// view copies the job for publishing outside the simulation goroutine.
func (j *Job) view() *Job {
	cp := *j
	cp.tools, cp.outputs = nil, nil
	cp.EffectiveInputs = append([]Input(nil), j.EffectiveInputs...)
	cp.EffectiveOutputs = append([]Output(nil), j.EffectiveOutputs...)
	return &cp
}

// release drops every reservation the job still holds.
func (j *Job) release() {
	for _, r := range j.tools {
		r.Release()
	}
	for _, r := range j.outputs {
		r.Release()
	}
	j.tools, j.outputs = nil, nil
}

// Modifiers represents efficiency adjustments applied to production.
type Modifiers struct {
	InputCost   float64 `json:"inputCost"`   // Multiplier for input quantities (0.8 = 20% reduction)
	OutputYield float64 `json:"outputYield"` // Multiplier for output quantities (1.2 = 20% bonus)
	TimeSpeed   float64 `json:"timeSpeed"`   // Multiplier for duration (0.5 = 50% faster, 2.0 = 2x slower)
	Source      string  `json:"source,omitempty"`
}

// Combine stacks multiple modifiers multiplicatively.
func (m Modifiers) Combine(other Modifiers) Modifiers {
	source := m.Source
	if source != "" && other.Source != "" {
		source = source + "+" + other.Source
	} else if other.Source != "" {
		source = other.Source
	}
	return Modifiers{
		InputCost:   m.InputCost * other.InputCost,
		OutputYield: m.OutputYield * other.OutputYield,
		TimeSpeed:   m.TimeSpeed * other.TimeSpeed,
		Source:      source,
	}
}

// ModifierSource provides modifiers for production jobs, e.g. building
// upgrades or worker efficiency.
type ModifierSource interface {
	GetModifiers(storageID string, recipe RecipeID) Modifiers
}

// StorageProvider resolves the storage a job draws from and delivers to.
type StorageProvider interface {
	Storage(id string) (*storage.ItemStorage, error)
}
