package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

// transition is a host move the controller makes on its own.
type transition string

const (
	transitionVoting  transition = "advance_to_voting"
	transitionResults transition = "proceed_to_results"
)

type pendingTimer struct {
	key   string
	timer clockwork.Timer
	stop  chan struct{}
	fired bool
}

// autoAdvancer watches host snapshots and keeps at most one timer per
// transition, keyed by the question it was scheduled for.
type autoAdvancer struct {
	clock clockwork.Clock
	cfg   Config
	fire  func(transition)

	mu     sync.Mutex
	timers map[transition]*pendingTimer
	closed bool
}

func newAutoAdvancer(clock clockwork.Clock, cfg Config, fire func(transition)) *autoAdvancer {
	return &autoAdvancer{
		clock:  clock,
		cfg:    cfg,
		fire:   fire,
		timers: make(map[transition]*pendingTimer),
	}
}

// observe schedules or cancels timers for snapshot s.
func (a *autoAdvancer) observe(s *models.Session) {
	key := s.QuestionKey()

	if s.Phase == models.PhaseQuestion && session.AllFullyAnswered(s) {
		a.schedule(transitionVoting, key, a.cfg.VotingDelay)
	} else {
		a.cancel(transitionVoting)
	}

	if a.cfg.AutoResults && s.Phase == models.PhaseVoting && session.AllVoted(s) {
		a.schedule(transitionResults, key, a.cfg.ResultsDelay)
	} else {
		a.cancel(transitionResults)
	}
}

func (a *autoAdvancer) schedule(t transition, key string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if existing, ok := a.timers[t]; ok {
		if existing.key == key {
			return
		}
		a.stopLocked(t, existing)
	}

	p := &pendingTimer{
		key:   key,
		timer: a.clock.NewTimer(d),
		stop:  make(chan struct{}),
	}
	a.timers[t] = p
	go a.wait(t, p)

	log.Debug().
		Str("transition", string(t)).
		Str("question_key", key).
		Dur("delay", d).
		Msg("scheduled auto-advance")
}

func (a *autoAdvancer) wait(t transition, p *pendingTimer) {
	select {
	case <-p.timer.Chan():
		a.mu.Lock()
		current := a.timers[t] == p && !a.closed
		if current {
			// kept in the map so redundant deliveries of the same question do not reschedule
			p.fired = true
		}
		a.mu.Unlock()
		if current {
			a.fire(t)
		}
	case <-p.stop:
	}
}

func (a *autoAdvancer) cancel(t transition) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.timers[t]; ok {
		a.stopLocked(t, p)
	}
}

func (a *autoAdvancer) stopLocked(t transition, p *pendingTimer) {
	if !p.fired {
		stopAndDrainTimer(p.timer)
		close(p.stop)
		log.Debug().Str("transition", string(t)).Str("question_key", p.key).Msg("cancelled auto-advance")
	}
	delete(a.timers, t)
}

// pending reports how many timers are waiting to fire.
func (a *autoAdvancer) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, p := range a.timers {
		if !p.fired {
			n++
		}
	}
	return n
}

func (a *autoAdvancer) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for t, p := range a.timers {
		a.stopLocked(t, p)
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
