package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"pricecompare/models"

	"github.com/charmbracelet/log"
)

// ErrTaskNotFound is returned for unknown or expired task IDs
var ErrTaskNotFound = errors.New("task not found")

const (
	queueSize       = 100
	taskMaxAge      = time.Hour
	cleanupInterval = time.Minute
)

// SearchFunc runs one comparison
type SearchFunc func(ctx context.Context, query string) (*models.ComparisonResult, error)

// TaskStats summarises the task manager state
type TaskStats struct {
	TotalTasks    int            `json:"total_tasks"`
	ActiveWorkers int            `json:"active_workers"`
	MaxWorkers    int            `json:"max_workers"`
	QueueSize     int            `json:"queue_size"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
}

// TaskManager runs search tasks on a fixed pool of workers
type TaskManager struct {
	tasks      map[string]*models.SearchTask
	taskQueue  chan *models.SearchTask
	active     int
	maxWorkers int
	search     SearchFunc
	timeout    time.Duration
	mutex      sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *log.Logger
}

// NewTaskManager starts maxWorkers workers. Each task gets at most timeout.
func NewTaskManager(search SearchFunc, maxWorkers int, timeout time.Duration, logger *log.Logger) *TaskManager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	tm := &TaskManager{
		tasks:      make(map[string]*models.SearchTask),
		taskQueue:  make(chan *models.SearchTask, queueSize),
		maxWorkers: maxWorkers,
		search:     search,
		timeout:    timeout,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}

	for i := 0; i < maxWorkers; i++ {
		tm.wg.Add(1)
		go tm.worker()
	}
	tm.wg.Add(1)
	go tm.cleanupLoop()

	logger.Info("task manager started", "workers", maxWorkers, "timeout", timeout)
	return tm
}

// Submit queues a search and returns a snapshot of the new task. A full
// queue or a stopped manager fails the task immediately.
func (tm *TaskManager) Submit(query string) models.SearchTask {
	task := models.NewSearchTask(query)

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	tm.tasks[task.ID] = task
	if tm.ctx.Err() != nil {
		task.Fail("Task manager is stopped")
		tm.logger.Warn("task rejected, manager stopped", "task_id", task.ID)
		return *task
	}

	select {
	case tm.taskQueue <- task:
		tm.logger.Debug("task submitted", "task_id", task.ID, "query", query)
	default:
		task.Fail("Task queue is full")
		tm.logger.Warn("task rejected, queue full", "task_id", task.ID)
	}

	return *task
}

// Get returns a snapshot of a task
func (tm *TaskManager) Get(taskID string) (models.SearchTask, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return models.SearchTask{}, ErrTaskNotFound
	}
	return *task, nil
}

// Active returns snapshots of queued and running tasks
func (tm *TaskManager) Active() []models.SearchTask {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	var active []models.SearchTask
	for _, task := range tm.tasks {
		if task.IsActive() {
			active = append(active, *task)
		}
	}
	return active
}

// CleanupOldTasks removes finished tasks older than maxAge
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for taskID, task := range tm.tasks {
		if task.IsCompleted() && task.CreatedAt.Before(cutoff) {
			delete(tm.tasks, taskID)
			removed++
		}
	}
	if removed > 0 {
		tm.logger.Debug("cleaned up old tasks", "removed", removed)
	}
	return removed
}

// Stats returns task manager statistics
func (tm *TaskManager) Stats() TaskStats {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	stats := TaskStats{
		TotalTasks:    len(tm.tasks),
		ActiveWorkers: tm.active,
		MaxWorkers:    tm.maxWorkers,
		QueueSize:     len(tm.taskQueue),
		TasksByStatus: make(map[string]int),
	}
	for _, task := range tm.tasks {
		stats.TasksByStatus[string(task.Status)]++
	}
	return stats
}

// Stop cancels running searches, waits for the workers to exit and fails
// the tasks still queued
func (tm *TaskManager) Stop() {
	tm.mutex.Lock()
	tm.cancel()
	tm.mutex.Unlock()
	tm.wg.Wait()

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	dropped := 0
	for {
		select {
		case task := <-tm.taskQueue:
			task.Fail("Task manager stopped before the task ran")
			dropped++
		default:
			tm.logger.Info("task manager stopped", "dropped", dropped)
			return
		}
	}
}

func (tm *TaskManager) worker() {
	defer tm.wg.Done()

	for {
		select {
		case <-tm.ctx.Done():
			return
		case task := <-tm.taskQueue:
			tm.process(task)
		}
	}
}

func (tm *TaskManager) process(task *models.SearchTask) {
	tm.mutex.Lock()
	task.Start()
	tm.active++
	query := task.Query
	tm.mutex.Unlock()

	logger := tm.logger.With("task_id", task.ID)
	logger.Info("task started", "query", query)

	ctx := tm.ctx
	if tm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tm.timeout)
		defer cancel()
	}

	result, err := tm.search(ctx, query)

	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.active--

	if err != nil {
		task.Fail("Comparison failed: " + err.Error())
		logger.Warn("task failed", "err", err)
		return
	}
	if result == nil {
		task.Fail("Comparison returned no result")
		logger.Warn("task failed, empty result")
		return
	}
	task.Complete(result)
	logger.Info("task completed", "duration", task.Duration().Round(time.Millisecond), "status", result.Status)
}

func (tm *TaskManager) cleanupLoop() {
	defer tm.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tm.CleanupOldTasks(taskMaxAge)
		case <-tm.ctx.Done():
			return
		}
	}
}
