package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/polyroot/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is an alias to avoid duplication with store.SolveConfig
type JobConfig = store.SolveConfig

// Job represents one polyalgorithm solve submitted to the server
type Job struct {
	ID     string    `json:"id"`
	State  JobState  `json:"state"`
	Config JobConfig `json:"config"`

	// Progress, updated from the candidate trace
	Method     string  `json:"method,omitempty"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Attempts   int     `json:"attempts"`

	Report    *store.Report `json:"report,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal state
func (j *Job) Done() bool {
	return j.State == StateCompleted || j.State == StateFailed || j.State == StateCancelled
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	snapshot := *job
	return &snapshot
}

// GetJob returns a copy of the job so callers can read it without holding the lock
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// ListJobs returns copies of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].StartTime.Before(jobs[b].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			snapshot := *job
			runningJobs = append(runningJobs, &snapshot)
		}
	}
	return runningJobs
}

// DeleteJob removes a finished job. Running or pending jobs are kept.
func (jm *JobManager) DeleteJob(id string) error {
	jm.mu.Lock()
	job, exists := jm.jobs[id]
	if !exists {
		jm.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if !job.Done() {
		jm.mu.Unlock()
		return fmt.Errorf("job %s is still %s", id, job.State)
	}
	delete(jm.jobs, id)
	jm.mu.Unlock()

	jm.broadcaster.CleanupJob(id)
	return nil
}
