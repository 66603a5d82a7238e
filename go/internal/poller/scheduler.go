package poller

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pendingPoll is the one armed timer and the channel that retires its
// waiting goroutine when the timer is replaced.
type pendingPoll struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// Scheduler keeps at most one poll timer armed. Each Schedule call replaces
// whatever was pending; a fired timer is delivered on C.
type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	pending *pendingPoll

	fireCh chan struct{}
}

// NewScheduler creates a scheduler driven by clock.
func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		fireCh: make(chan struct{}, 1),
	}
}

// C delivers one value per fired timer.
func (s *Scheduler) C() <-chan struct{} {
	return s.fireCh
}

// Schedule cancels the pending poll, if any, and arms a new one for d.
func (s *Scheduler) Schedule(d time.Duration) {
	p := &pendingPoll{
		timer:  s.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}

	s.replaceTimer(p)

	go func() {
		select {
		case <-p.timer.Chan():
			if !s.removeTimer(p) {
				return
			}
			select {
			case s.fireCh <- struct{}{}:
				log.Debug().Dur("delay", d).Msg("poll timer fired")
			default:
				log.Warn().Msg("poll timer fired but previous fire not consumed")
			}
		case <-p.cancel:
		}
	}()

	log.Debug().Dur("delay", d).Msg("scheduled poll")
}

// Pending reports how many poll timers are armed: 0 or 1.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return 0
	}
	return 1
}

// Stop cancels the pending poll.
func (s *Scheduler) Stop() {
	s.replaceTimer(nil)
}

// replaceTimer atomically swaps the pending poll, cancelling the old one.
func (s *Scheduler) replaceTimer(next *pendingPoll) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		stopAndDrainTimer(s.pending.timer)
		close(s.pending.cancel)
	}
	s.pending = next
}

// removeTimer clears p after it fired. It reports false when p had already
// been replaced, in which case the fire is stale and must be ignored.
func (s *Scheduler) removeTimer(p *pendingPoll) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != p {
		return false
	}
	s.pending = nil
	return true
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
