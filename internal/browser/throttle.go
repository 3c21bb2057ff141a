package browser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttle wraps a Page so navigations are paced by limiter. Clicks that
// trigger navigation are not paced; only explicit Goto calls are.
func Throttle(page Page, limiter *rate.Limiter, maxWait time.Duration) Page {
	if limiter == nil {
		return page
	}
	return &throttledPage{Page: page, limiter: limiter, maxWait: maxWait}
}

// NewNavigationLimiter returns a limiter allowing rps navigations per second
// with a burst of one, or nil when rps is not positive.
func NewNavigationLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

type throttledPage struct {
	Page
	limiter *rate.Limiter
	maxWait time.Duration
}

func (p *throttledPage) Goto(url string, opts GotoOptions) error {
	ctx := context.Background()
	if p.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.maxWait)
		defer cancel()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation throttle: %w", err)
	}
	return p.Page.Goto(url, opts)
}
