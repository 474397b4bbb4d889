// -----------------------------------------------------------------------
// Class Rate Limiter - per-usage-class RPM pacing for LLM calls
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
	"golang.org/x/time/rate"
)

// UsageClass identifies a logical LLM usage class with its own RPM budget
type UsageClass string

const (
	// UsageRepair paces chunk repair calls
	UsageRepair UsageClass = "repair"
	// UsageSummarize paces cluster summarization calls
	UsageSummarize UsageClass = "summarize"
)

// ClassLimiter enforces a requests-per-minute ceiling per usage class.
// One instance is shared by all tasks so the budget is global, not
// per-task. Each class uses a token bucket with burst 1, which spaces
// request starts at least 60s/RPM apart and therefore never admits more
// than RPM starts within any rolling 60-second window. Waiters on the
// same class are served in arrival order.
type ClassLimiter struct {
	mu       sync.RWMutex
	limiters map[UsageClass]*rate.Limiter
	logger   arbor.ILogger
}

// NewClassLimiter creates an empty class limiter; classes are registered
// with SetRPM before use
func NewClassLimiter(logger arbor.ILogger) *ClassLimiter {
	return &ClassLimiter{
		limiters: make(map[UsageClass]*rate.Limiter),
		logger:   logger,
	}
}

// SetRPM configures the requests-per-minute ceiling for a class.
// An RPM of zero or less disables the class: Acquire fails fast.
func (l *ClassLimiter) SetRPM(class UsageClass, rpm int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rpm <= 0 {
		l.limiters[class] = nil
		l.logger.Warn().Str("class", string(class)).Int("rpm", rpm).Msg("Rate limit class disabled")
		return
	}

	interval := time.Minute / time.Duration(rpm)
	l.limiters[class] = rate.NewLimiter(rate.Every(interval), 1)
	l.logger.Debug().
		Str("class", string(class)).
		Int("rpm", rpm).
		Dur("interval", interval).
		Msg("Rate limit class configured")
}

// Acquire blocks until a request slot opens for the class, or until the
// context is cancelled. Requests are never dropped, only delayed. A
// disabled or unregistered class returns models.ErrRateLimitDisabled
// immediately.
func (l *ClassLimiter) Acquire(ctx context.Context, class UsageClass) error {
	l.mu.RLock()
	limiter, ok := l.limiters[class]
	l.mu.RUnlock()

	if !ok || limiter == nil {
		return fmt.Errorf("%w: %s", models.ErrRateLimitDisabled, class)
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for class %s: %w", class, err)
	}
	return nil
}
