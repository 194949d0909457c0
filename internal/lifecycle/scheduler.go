package lifecycle

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeletionTask is a pending removal of one scratch file.
type DeletionTask struct {
	Path   string
	FireAt time.Time
	timer  *time.Timer
}

// Scheduler removes files from the scratch directory after a delay. Pending
// deletions live in memory only; the scratch directory is cleared on start.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*DeletionTask
	stopped bool
	logger  *zap.Logger
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*DeletionTask),
		logger: logger.Named("lifecycle"),
	}
}

// ScheduleDelete removes path after delay. Scheduling a path that already
// has a pending deletion replaces the earlier one.
func (s *Scheduler) ScheduleDelete(path string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Debug("scheduler stopped, not scheduling", zap.String("path", path))
		return
	}
	if prev, ok := s.tasks[path]; ok {
		prev.timer.Stop()
	}

	task := &DeletionTask{Path: path, FireAt: time.Now().Add(delay)}
	task.timer = time.AfterFunc(delay, func() { s.fire(task) })
	s.tasks[path] = task
	s.logger.Debug("deletion scheduled", zap.String("path", path), zap.Duration("in", delay))
}

func (s *Scheduler) fire(task *DeletionTask) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic deleting file", zap.String("path", task.Path), zap.Any("panic", r))
		}
	}()

	s.mu.Lock()
	current := s.tasks[task.Path] == task
	if current {
		delete(s.tasks, task.Path)
	}
	s.mu.Unlock()
	if !current {
		return
	}

	if err := remove(task.Path); err != nil {
		s.logger.Warn("delete failed", zap.String("path", task.Path), zap.Error(err))
		return
	}
	s.logger.Info("deleted", zap.String("path", task.Path))
}

// Delete removes path now and cancels any pending deletion for it. A file
// that is already gone is not an error.
func (s *Scheduler) Delete(path string) error {
	s.mu.Lock()
	if task, ok := s.tasks[path]; ok {
		task.timer.Stop()
		delete(s.tasks, path)
	}
	s.mu.Unlock()
	return remove(path)
}

// Pending returns the number of deletions that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending deletion. Later calls to ScheduleDelete are
// ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, path)
	}
	s.stopped = true
}

func remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
