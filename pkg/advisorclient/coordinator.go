package advisorclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/finwell/finwell-backend/internal/diag"
	"github.com/finwell/finwell-backend/internal/domain"
)

// ErrNoFreeGeneration is returned when the daily free generation is spent
// and no reward gate is available to unlock a paid one.
var ErrNoFreeGeneration = errors.New("daily free generation already used")

// ErrRewardDeclined is returned when the reward gate could not show, or the
// user abandoned it before the generation started.
var ErrRewardDeclined = errors.New("reward not completed")

// RewardGate unlocks a regeneration after the daily free one is spent,
// typically by showing a rewarded ad. Show blocks until the reward flow
// finishes and reports whether it completed; onAdStarted fires as soon as
// the flow begins so work can start behind it.
type RewardGate interface {
	Show(ctx context.Context, onAdStarted func()) bool
}

// StartOptions control one Start call.
type StartOptions struct {
	Regenerate bool
}

// Coordinator deduplicates concurrent generation requests per (month,
// language), tracks what is in flight for UI observers, and runs the
// free-quota / reward flow on regeneration.
type Coordinator struct {
	client *Client
	trail  *diag.Correlator
	gate   RewardGate
	group  singleflight.Group

	mu        sync.Mutex
	inflight  map[string]struct{}
	observers map[int]func()
	nextObs   int
}

// NewCoordinator creates a Coordinator. gate may be nil; regeneration then
// fails with ErrNoFreeGeneration once the daily free generation is spent.
func NewCoordinator(client *Client, trail *diag.Correlator, gate RewardGate) *Coordinator {
	return &Coordinator{
		client:    client,
		trail:     trail,
		gate:      gate,
		inflight:  make(map[string]struct{}),
		observers: make(map[int]func()),
	}
}

// Start requests the insight for the month and language. Concurrent calls
// with the same key share one request and all receive its result.
func (c *Coordinator) Start(ctx context.Context, month domain.Month, language domain.Language, opts StartOptions) (*domain.AdvisorInsight, error) {
	key := string(month) + "|" + string(language)

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.setInflight(key, true)
		defer c.setInflight(key, false)
		return c.run(ctx, month, language, opts.Regenerate)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.AdvisorInsight), nil
}

// IsInflight reports whether a request for the key is currently running.
func (c *Coordinator) IsInflight(month domain.Month, language domain.Language) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[string(month)+"|"+string(language)]
	return ok
}

// Subscribe registers an observer notified whenever the inflight set
// changes. The returned function removes the observer.
func (c *Coordinator) Subscribe(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Coordinator) setInflight(key string, on bool) {
	c.mu.Lock()
	if on {
		c.inflight[key] = struct{}{}
	} else {
		delete(c.inflight, key)
	}
	observers := make([]func(), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	// Outside the lock so an observer can call back into the coordinator.
	for _, fn := range observers {
		fn()
	}
}

// run executes one generation request, handling the regenerate quota flow.
func (c *Coordinator) run(ctx context.Context, month domain.Month, language domain.Language, regenerate bool) (*domain.AdvisorInsight, error) {
	if !regenerate {
		return c.fire(ctx, month, language, false)
	}

	allowFree, err := c.client.FreeCheck(ctx)
	if err != nil {
		return nil, err
	}
	if allowFree {
		return c.fire(ctx, month, language, true)
	}
	if c.gate == nil {
		return nil, ErrNoFreeGeneration
	}

	// Optimistic start: the request fires as soon as the reward flow begins,
	// so the result is usually ready by the time the flow finishes.
	type result struct {
		insight *domain.AdvisorInsight
		err     error
	}
	ch := make(chan result, 1)

	// Gate implementations may invoke onAdStarted from their own goroutine.
	var fired atomic.Bool

	c.gate.Show(ctx, func() {
		fired.Store(true)
		go func() {
			insight, err := c.fire(ctx, month, language, true)
			ch <- result{insight, err}
		}()
	})

	// A request that already started is honored even if the reward flow was
	// abandoned afterwards; one that never started is declined.
	if !fired.Load() {
		return nil, ErrRewardDeclined
	}

	select {
	case res := <-ch:
		return res.insight, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fire reserves a request id for diagnostics correlation and performs the
// HTTP call, which claims the reservation.
func (c *Coordinator) fire(ctx context.Context, month domain.Month, language domain.Language, regenerate bool) (*domain.AdvisorInsight, error) {
	if c.trail != nil {
		c.trail.Reserve(uuid.NewString(), month, language, regenerate)
	}
	return c.client.GetInsight(ctx, month, language, regenerate)
}
