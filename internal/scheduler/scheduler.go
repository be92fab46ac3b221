package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Unit is one fire-and-forget piece of background work. The context is
// canceled only when the scheduler itself hits an internal fault; normal
// shutdown never cancels in-flight units.
type Unit func(ctx context.Context)

type trackedUnit struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs an unbounded number of independently-failing background
// units without blocking submitters. A supervising loop sweeps the tracked
// set on a fixed interval and drops finished units; without the sweep the
// set would grow for the life of the process.
//
// One Scheduler is constructed at boot, started once, and stopped at
// shutdown. It never inspects a unit's outcome beyond finished-or-not.
type Scheduler struct {
	interval time.Duration

	mu     sync.Mutex
	units  map[uint64]*trackedUnit
	nextID uint64

	quit     chan struct{}
	loopDone chan struct{}
	started  bool
	stopped  bool
}

// New creates a scheduler sweeping at the given interval.
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		interval: interval,
		units:    make(map[uint64]*trackedUnit),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Submit starts the unit on its own goroutine and returns immediately.
// No ordering is guaranteed relative to other submissions. A panic inside
// the unit is contained to that unit. Submissions after Stop are dropped;
// nothing remains to sweep them.
func (s *Scheduler) Submit(unit Unit) {
	ctx, cancel := context.WithCancel(context.Background())
	tracked := &trackedUnit{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		log.Printf("scheduler: unit submitted after stop, dropped")
		return
	}
	id := s.nextID
	s.nextID++
	s.units[id] = tracked
	s.mu.Unlock()

	go func() {
		defer close(tracked.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("scheduler: unit panicked: %v", r)
			}
		}()
		unit(ctx)
	}()
}

// Start begins the supervising loop on its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.runLoop()
}

// Stop signals the supervising loop to end and waits up to timeout for
// in-flight units to finish. Units still running at the deadline are
// abandoned, not canceled; this is a best-effort shutdown.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.quit)
	<-s.loopDone

	deadline := time.After(timeout)
	for {
		s.sweep()
		if s.Tracked() == 0 {
			return nil
		}
		select {
		case <-deadline:
			return fmt.Errorf("scheduler: shutdown timed out with %d units still running", s.Tracked())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Tracked reports how many units the supervising loop still holds.
func (s *Scheduler) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// runLoop is the supervising loop. An internal fault here means the tracked
// set can no longer be reclaimed reliably, so every tracked unit is canceled
// before the fault propagates; that crash is intentionally process-fatal.
func (s *Scheduler) runLoop() {
	defer close(s.loopDone)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: supervising loop fault: %v", r)
			s.cancelAll()
			panic(r)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops finished units from the tracked set.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.units {
		select {
		case <-u.done:
			delete(s.units, id)
		default:
		}
	}
}

func (s *Scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.units {
		u.cancel()
	}
}
