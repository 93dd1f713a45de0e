package slip

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler coalesces rapid edits to one selection into a single outbound
// write. Each selection's pending write is a one-shot timer keyed by event
// id; scheduling again within the settle window replaces the timer, so only
// the final state of a burst is acted upon. When a timer fires the event id
// is enqueued on the work channel for the engine loop to sync.
//
// Pending timers are owned by the scheduler, not by whichever call armed
// them: a write scheduled from a short-lived edit context stays armed after
// that context ends, and is torn down only by Cancel or Flush.
type Scheduler struct {
	clock  clockwork.Clock
	settle time.Duration

	mu     sync.Mutex
	timers map[string]pendingTimer

	workCh chan string
}

// pendingTimer pairs an armed settle timer with the channel that releases
// its waiting goroutine when the timer is cancelled or replaced.
type pendingTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

func NewScheduler(clock clockwork.Clock, settle time.Duration, buffer int) *Scheduler {
	return &Scheduler{
		clock:  clock,
		settle: settle,
		timers: make(map[string]pendingTimer),
		workCh: make(chan string, buffer),
	}
}

// Work returns the channel on which settled event ids are delivered.
func (s *Scheduler) Work() <-chan string {
	return s.workCh
}

// Schedule starts (or restarts) the settle timer for an event id. Any edit
// within the window cancels the previous timer, so edits are coalesced, not
// queued.
func (s *Scheduler) Schedule(eventID string) {
	entry := pendingTimer{
		timer: s.clock.NewTimer(s.settle),
		done:  make(chan struct{}),
	}
	s.replaceTimer(eventID, entry)

	go func(id string, e pendingTimer) {
		select {
		case <-e.timer.Chan():
			s.removeTimer(id)
			select {
			case s.workCh <- id:
				log.Debug().Str("event_id", id).Msg("settle timer fired - enqueued for sync")
			default:
				log.Warn().Str("event_id", id).Msg("settle timer fired but work channel full")
			}
		case <-e.done:
		}
	}(eventID, entry)
}

// Cancel stops any pending timer for an event id without firing it.
func (s *Scheduler) Cancel(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.timers[eventID]; exists {
		stopAndDrainTimer(entry.timer)
		close(entry.done)
		delete(s.timers, eventID)
		log.Debug().Str("event_id", eventID).Msg("cancelled pending settle timer")
	}
}

// Flush cancels every pending timer and returns the event ids whose writes
// had not fired yet. The caller routes them to the durable outbox so no
// settled edit is lost with the process.
func (s *Scheduler) Flush() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]string, 0, len(s.timers))
	for eventID, entry := range s.timers {
		stopAndDrainTimer(entry.timer)
		close(entry.done)
		pending = append(pending, eventID)
	}
	s.timers = make(map[string]pendingTimer)
	return pending
}

// Pending reports whether a settle timer is currently armed for an event id.
func (s *Scheduler) Pending(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.timers[eventID]
	return exists
}

// replaceTimer atomically replaces the timer for an event id, cancelling
// any existing one so a stale timer cannot slip in between Stop and delete.
func (s *Scheduler) replaceTimer(eventID string, entry pendingTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.timers[eventID]; exists {
		stopAndDrainTimer(existing.timer)
		close(existing.done)
		log.Debug().Str("event_id", eventID).Msg("restarted settle timer")
	}
	s.timers[eventID] = entry
}

// removeTimer removes a timer from the map once it has fired.
func (s *Scheduler) removeTimer(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, eventID)
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
