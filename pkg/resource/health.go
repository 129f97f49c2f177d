// pkg/resource/health.go
package resource

import (
	"context"
	"fmt"
)

// taskWarnRatio is the share of the goroutine budget above which the
// server reports itself unhealthy.
const taskWarnRatio = 0.8

// ResourceHealthCheck reports the manager's memory and task usage
type ResourceHealthCheck struct {
	manager *ResourceManager
}

// NewResourceHealthCheck creates a new health check for the resource manager.
func NewResourceHealthCheck(manager *ResourceManager) *ResourceHealthCheck {
	return &ResourceHealthCheck{manager: manager}
}

func (r *ResourceHealthCheck) Name() string {
	return "resource"
}

// Check fails when memory is over the limit or tasks are above 80% of the budget
func (r *ResourceHealthCheck) Check(ctx context.Context) error {
	stats := r.manager.GetResourceStats()

	if stats.MemoryUsageMB > stats.MaxMemoryMB {
		return fmt.Errorf("%w: %dMB of %dMB", ErrMemoryLimit, stats.MemoryUsageMB, stats.MaxMemoryMB)
	}

	threshold := int64(float64(stats.MaxGoroutines) * taskWarnRatio)
	if stats.GoroutineCount > threshold {
		return fmt.Errorf("%d tasks running, above %d of %d", stats.GoroutineCount, threshold, stats.MaxGoroutines)
	}
	return nil
}
