package lifecycle

import (
	"fmt"
	"maps"
	"sync"
)

// JobCheck is the answer to whether a job may start.
type JobCheck struct {
	OK     bool
	Reason string
}

// Jobs counts running jobs per type against fixed limits.
type Jobs struct {
	mu     sync.Mutex
	active map[string]int
	limits map[string]int
}

func NewJobs(limits map[string]int) *Jobs {
	return &Jobs{
		active: make(map[string]int),
		limits: maps.Clone(limits),
	}
}

// Start reserves a slot for jobType. Every successful Start must be paired
// with Done.
func (j *Jobs) Start(jobType string) JobCheck {
	j.mu.Lock()
	defer j.mu.Unlock()

	limit, exists := j.limits[jobType]
	if exists && j.active[jobType] >= limit {
		return JobCheck{false, fmt.Sprintf("Too many active %s jobs (limit: %d)", jobType, limit)}
	}
	j.active[jobType]++
	return JobCheck{true, ""}
}

func (j *Jobs) Done(jobType string) {
	j.mu.Lock()
	if j.active[jobType] > 0 {
		j.active[jobType]--
	}
	j.mu.Unlock()
}

// Active returns a copy of the running counts.
func (j *Jobs) Active() map[string]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return maps.Clone(j.active)
}
