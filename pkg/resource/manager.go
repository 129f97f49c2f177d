// pkg/resource/manager.go
package resource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-rts/pkg/config"
	"github.com/opd-ai/go-rts/pkg/logging"
)

var (
	// ErrTaskLimit is returned when starting a task would exceed the goroutine budget.
	ErrTaskLimit = errors.New("goroutine limit exceeded")
	// ErrMemoryLimit is returned when heap usage is above the configured ceiling.
	ErrMemoryLimit = errors.New("memory limit exceeded")
	// ErrShutdownTimeout is returned when tasks outlive the shutdown deadline.
	ErrShutdownTimeout = errors.New("shutdown timeout")
)

// Limits bounds what the server may consume
type Limits struct {
	MaxMemoryMB     int64
	MaxGoroutines   int64
	ShutdownTimeout time.Duration
	CheckInterval   time.Duration
}

// LimitsFromEnv extracts the resource limits from the environment config
func LimitsFromEnv(env *config.EnvironmentConfig) Limits {
	return Limits{
		MaxMemoryMB:     env.MaxMemoryMB,
		MaxGoroutines:   int64(env.MaxGoroutines),
		ShutdownTimeout: env.ShutdownTimeout,
		CheckInterval:   env.ResourceCheckInterval,
	}
}

// ResourceManager supervises the server's long-lived goroutines: the tick
// loop, the snapshot broadcaster and one writer per observer. Every task
// gets a context cancelled on Shutdown, which then waits for them to exit.
type ResourceManager struct {
	limits Limits

	taskCount     atomic.Int64
	memoryUsageMB atomic.Int64
	lastCheck     atomic.Int64 // unix nanoseconds

	ctx     context.Context
	cancel  context.CancelFunc
	tasks   sync.WaitGroup
	done    chan struct{}
	mu      sync.Mutex
	running bool
	stopped bool
	byName  map[string]int
	logger  *logging.Logger
}

// NewResourceManager creates a manager for the given environment. A nil
// logger discards output.
func NewResourceManager(env *config.EnvironmentConfig, logger *logging.Logger) *ResourceManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	limits := LimitsFromEnv(env)
	if limits.CheckInterval <= 0 {
		limits.CheckInterval = 10 * time.Second
	}
	if limits.ShutdownTimeout <= 0 {
		limits.ShutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ResourceManager{
		limits: limits,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		byName: make(map[string]int),
		logger: logger.Component("resource"),
	}
}

// Start begins the periodic memory check
func (rm *ResourceManager) Start() error {
	rm.mu.Lock()
	if rm.running || rm.stopped {
		rm.mu.Unlock()
		return fmt.Errorf("resource manager already started")
	}
	rm.running = true
	rm.mu.Unlock()

	go rm.monitoringLoop()

	rm.logger.Info(rm.ctx, "resource manager started",
		"max_memory_mb", rm.limits.MaxMemoryMB,
		"max_goroutines", rm.limits.MaxGoroutines,
		"check_interval", rm.limits.CheckInterval.String(),
	)
	return nil
}

// Go runs fn in a tracked goroutine. The context passed to fn is derived
// from ctx and is also cancelled when the manager shuts down. Panics are
// recovered and logged.
func (rm *ResourceManager) Go(ctx context.Context, name string, fn func(context.Context)) error {
	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return fmt.Errorf("start %s: resource manager is shut down", name)
	}
	if current := rm.taskCount.Load(); current >= rm.limits.MaxGoroutines {
		rm.mu.Unlock()
		rm.logger.Warn(ctx, "goroutine limit exceeded", "current", current, "limit", rm.limits.MaxGoroutines, "task", name)
		return fmt.Errorf("start %s: %w: %d/%d", name, ErrTaskLimit, current, rm.limits.MaxGoroutines)
	}
	rm.taskCount.Add(1)
	rm.byName[name]++
	rm.tasks.Add(1)
	rm.mu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(rm.ctx, cancel)

	go func() {
		defer rm.finish(name, cancel, stop)
		defer func() {
			if r := recover(); r != nil {
				rm.logger.Error(taskCtx, "task panicked", fmt.Errorf("panic: %v", r), "task", name)
			}
		}()
		fn(taskCtx)
	}()
	return nil
}

func (rm *ResourceManager) finish(name string, cancel context.CancelFunc, stop func() bool) {
	stop()
	cancel()
	rm.mu.Lock()
	if rm.byName[name]--; rm.byName[name] <= 0 {
		delete(rm.byName, name)
	}
	rm.mu.Unlock()
	rm.taskCount.Add(-1)
	rm.tasks.Done()
}

// CheckMemoryUsage samples the heap and compares it with the limit
func (rm *ResourceManager) CheckMemoryUsage() error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	currentMB := int64(m.Alloc / 1024 / 1024)
	rm.memoryUsageMB.Store(currentMB)
	rm.lastCheck.Store(time.Now().UnixNano())

	if currentMB > rm.limits.MaxMemoryMB {
		return fmt.Errorf("%w: %dMB of %dMB", ErrMemoryLimit, currentMB, rm.limits.MaxMemoryMB)
	}
	return nil
}

// GetGoroutineCount returns the number of running tasks
func (rm *ResourceManager) GetGoroutineCount() int64 {
	return rm.taskCount.Load()
}

// GetMemoryUsage returns the heap size seen by the last check, in MB
func (rm *ResourceManager) GetMemoryUsage() int64 {
	return rm.memoryUsageMB.Load()
}

// ResourceStats contains resource usage statistics
type ResourceStats struct {
	GoroutineCount  int64          `json:"goroutine_count"`
	MaxGoroutines   int64          `json:"max_goroutines"`
	MemoryUsageMB   int64          `json:"memory_usage_mb"`
	MaxMemoryMB     int64          `json:"max_memory_mb"`
	LastMemoryCheck time.Time      `json:"last_memory_check"`
	Tasks           map[string]int `json:"tasks"`
}

// GetResourceStats returns current usage and the running tasks by name
func (rm *ResourceManager) GetResourceStats() ResourceStats {
	stats := ResourceStats{
		GoroutineCount: rm.GetGoroutineCount(),
		MaxGoroutines:  rm.limits.MaxGoroutines,
		MemoryUsageMB:  rm.GetMemoryUsage(),
		MaxMemoryMB:    rm.limits.MaxMemoryMB,
	}
	if ns := rm.lastCheck.Load(); ns != 0 {
		stats.LastMemoryCheck = time.Unix(0, ns)
	}
	rm.mu.Lock()
	stats.Tasks = maps.Clone(rm.byName)
	rm.mu.Unlock()
	return stats
}

// Shutdown cancels every task and waits for them, bounded by both ctx and
// the configured shutdown timeout. It is safe to call more than once.
func (rm *ResourceManager) Shutdown(ctx context.Context) error {
	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return nil
	}
	rm.stopped = true
	wasRunning := rm.running
	rm.mu.Unlock()

	rm.logger.Info(ctx, "shutting down resource manager", "tasks", rm.GetGoroutineCount())
	rm.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, rm.limits.ShutdownTimeout)
	defer cancel()

	if wasRunning {
		select {
		case <-rm.done:
		case <-shutdownCtx.Done():
			rm.logger.Warn(ctx, "monitoring loop did not stop in time")
		}
	}

	finished := make(chan struct{})
	go func() {
		rm.tasks.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		rm.logger.Info(ctx, "all tasks finished")
		return nil
	case <-shutdownCtx.Done():
		remaining := rm.GetGoroutineCount()
		rm.logger.Warn(ctx, "shutdown deadline passed with tasks still running", "remaining", remaining)
		return fmt.Errorf("%w: %d tasks still running", ErrShutdownTimeout, remaining)
	}
}

func (rm *ResourceManager) monitoringLoop() {
	defer close(rm.done)

	ticker := time.NewTicker(rm.limits.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.performResourceChecks()
		case <-rm.ctx.Done():
			return
		}
	}
}

func (rm *ResourceManager) performResourceChecks() {
	if err := rm.CheckMemoryUsage(); err != nil {
		rm.logger.Error(rm.ctx, "memory limit exceeded", err,
			"current_mb", rm.GetMemoryUsage(),
			"limit_mb", rm.limits.MaxMemoryMB,
		)
	}
	rm.logger.Debug(rm.ctx, "resource usage",
		"tasks", rm.GetGoroutineCount(),
		"memory_mb", rm.GetMemoryUsage(),
	)
}
