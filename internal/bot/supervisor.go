package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultTickInterval = 100 * time.Millisecond

// TickHandler runs once per scheduler tick on the supervisor's tick
// goroutine. Handlers must be non-blocking; anything slow belongs behind a
// state machine transition.
type TickHandler func()

type watchdog struct {
	name      string
	interval  time.Duration
	failLimit int
	check     func() error
}

// Supervisor owns the run loop: a single ticker goroutine that advances every
// subscribed state machine, plus one goroutine per registered watchdog. A
// watchdog that fails repeatedly brings the whole group down.
type Supervisor struct {
	logger       *slog.Logger
	tickInterval time.Duration

	mu       sync.Mutex
	nextID   int
	handlers map[int]TickHandler

	watchdogs []watchdog
}

func NewSupervisor(logger *slog.Logger, tickInterval time.Duration) *Supervisor {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &Supervisor{
		logger:       logger,
		tickInterval: tickInterval,
		handlers:     map[int]TickHandler{},
	}
}

// Subscribe registers a tick handler and returns its id for Unsubscribe.
func (s *Supervisor) Subscribe(h TickHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.handlers[s.nextID] = h
	return s.nextID
}

func (s *Supervisor) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, id)
}

// AddWatchdog registers a periodic health check. The check failing failLimit
// times in a row stops the supervisor with an error. Must be called before
// Run.
func (s *Supervisor) AddWatchdog(name string, interval time.Duration, failLimit int, check func() error) {
	if failLimit <= 0 {
		failLimit = 1
	}
	s.watchdogs = append(s.watchdogs, watchdog{
		name:      name,
		interval:  interval,
		failLimit: failLimit,
		check:     check,
	})
}

// Run drives the tick loop and watchdogs until ctx is done or a watchdog
// gives up.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.tick()
			}
		}
	})

	for _, w := range s.watchdogs {
		w := w
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			failures := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := w.check(); err != nil {
						failures++
						s.logger.Warn("Watchdog check failed",
							slog.String("watchdog", w.name),
							slog.Int("failures", failures),
							slog.Any("error", err))
						if failures >= w.failLimit {
							return fmt.Errorf("watchdog %s gave up after %d failures: %w", w.name, failures, err)
						}
						continue
					}
					failures = 0
				}
			}
		})
	}

	return g.Wait()
}

func (s *Supervisor) tick() {
	s.mu.Lock()
	hs := make([]TickHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		s.safeCall(h)
	}
}

// safeCall keeps a panicking handler from taking the tick loop down; one bad
// transition should cost a tick, not the run.
func (s *Supervisor) safeCall(h TickHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tick handler panicked", slog.Any("panic", r))
		}
	}()
	h()
}
