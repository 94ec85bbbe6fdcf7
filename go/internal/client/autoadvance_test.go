package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

// stubApp records the host transitions a controller fires. Anything else panics.
type stubApp struct {
	App

	mu    sync.Mutex
	calls []string
	err   error
}

func (a *stubApp) record(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, name)
	return a.err
}

func (a *stubApp) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *stubApp) AdvanceToVoting(context.Context, string, string) (*models.Session, error) {
	return nil, a.record("advance_to_voting")
}

func (a *stubApp) ProceedToResults(context.Context, string, string) (*models.Session, error) {
	return nil, a.record("proceed_to_results")
}

func questionSnapshot(round int, guesses map[string]int) *models.Session {
	return &models.Session{
		Host:  "host",
		Phase: models.PhaseQuestion,
		Round: round,
		Players: map[string]models.Player{
			"host": {Name: "host"},
			"ann":  {Name: "ann"},
		},
		CurrentQuestion:  "What is the capital of Australia?",
		CorrectAnswer:    "Canberra",
		MaxGuesses:       1,
		PlayerGuessCount: guesses,
	}
}

func votingSnapshot(votes map[string]string) *models.Session {
	s := questionSnapshot(1, map[string]int{"host": 1, "ann": 1})
	s.Phase = models.PhaseVoting
	s.Votes = votes
	return s
}

func newHostController(t *testing.T, app App, cfg Config) (*Controller, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	c := New(app, WithClock(clock), WithConfig(cfg))
	c.bind("ABC123", "host")
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestAutoAdvanceToVotingFiresOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app := &stubApp{}
	c, clock := newHostController(t, app, DefaultConfig())

	done := questionSnapshot(1, map[string]int{"host": 1, "ann": 1})
	c.handleSnapshot(done, nil)
	c.handleSnapshot(done.Clone(), nil)
	assert.Equal(t, 1, c.auto.pending(), "redundant deliveries share one timer")

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, app.recorded())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return len(app.recorded()) == 1
	}, time.Second, 5*time.Millisecond)

	// the same question delivered again after firing does not reschedule
	c.handleSnapshot(done.Clone(), nil)
	assert.Equal(t, 0, c.auto.pending())
	assert.Equal(t, []string{"advance_to_voting"}, app.recorded())
}

func TestAutoAdvanceCancelledWhenSomeoneJoins(t *testing.T) {
	app := &stubApp{}
	c, clock := newHostController(t, app, DefaultConfig())

	done := questionSnapshot(1, map[string]int{"host": 1, "ann": 1})
	c.handleSnapshot(done, nil)
	require.Equal(t, 1, c.auto.pending())

	joined := done.Clone()
	joined.Players["cat"] = models.Player{Name: "cat"}
	c.handleSnapshot(joined, nil)
	assert.Equal(t, 0, c.auto.pending())

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool {
		return len(app.recorded()) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAutoAdvanceNotScheduledUntilEveryoneIsDone(t *testing.T) {
	app := &stubApp{}
	c, _ := newHostController(t, app, DefaultConfig())

	c.handleSnapshot(questionSnapshot(1, map[string]int{"host": 1}), nil)
	assert.Equal(t, 0, c.auto.pending())
}

func TestAutoAdvanceOnlyOnHost(t *testing.T) {
	app := &stubApp{}
	c := New(app, WithClock(clockwork.NewFakeClock()))
	c.bind("ABC123", "ann")
	defer c.Close()

	c.handleSnapshot(questionSnapshot(1, map[string]int{"host": 1, "ann": 1}), nil)
	assert.Equal(t, 0, c.auto.pending())
}

func TestAutoAdvanceReschedulesForNextQuestion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app := &stubApp{}
	c, clock := newHostController(t, app, DefaultConfig())

	c.handleSnapshot(questionSnapshot(1, map[string]int{"host": 1, "ann": 1}), nil)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(app.recorded()) == 1 }, time.Second, 5*time.Millisecond)

	c.handleSnapshot(questionSnapshot(2, map[string]int{"host": 1, "ann": 1}), nil)
	assert.Equal(t, 1, c.auto.pending())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(app.recorded()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestAutoResults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	allVoted := votingSnapshot(map[string]string{"host": "Sydney", "ann": "Canberra"})

	t.Run("disabled by default", func(t *testing.T) {
		app := &stubApp{}
		c, _ := newHostController(t, app, DefaultConfig())
		c.handleSnapshot(allVoted, nil)
		assert.Equal(t, 0, c.auto.pending())
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AutoResults = true
		app := &stubApp{}
		c, clock := newHostController(t, app, cfg)

		c.handleSnapshot(votingSnapshot(map[string]string{"host": "Sydney"}), nil)
		assert.Equal(t, 0, c.auto.pending())

		c.handleSnapshot(allVoted, nil)
		require.Equal(t, 1, c.auto.pending())
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		clock.Advance(time.Second)
		assert.Empty(t, app.recorded())
		clock.Advance(time.Second)
		require.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{"proceed_to_results"}, app.recorded())
		}, time.Second, 5*time.Millisecond)
	})
}

func TestLateAutoAdvanceIsSilent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app := &stubApp{err: fmt.Errorf("%w: already voting", session.ErrPrecondition)}
	clock := clockwork.NewFakeClock()
	var (
		mu       sync.Mutex
		reported []error
	)
	c := New(app, WithClock(clock), WithOnError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))
	c.bind("ABC123", "host")
	defer c.Close()

	c.handleSnapshot(questionSnapshot(1, map[string]int{"host": 1, "ann": 1}), nil)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return len(app.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCloseStopsPendingTimers(t *testing.T) {
	app := &stubApp{}
	c, clock := newHostController(t, app, DefaultConfig())

	c.handleSnapshot(questionSnapshot(1, map[string]int{"host": 1, "ann": 1}), nil)
	require.Equal(t, 1, c.auto.pending())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.auto.pending())

	c.handleSnapshot(questionSnapshot(2, map[string]int{"host": 1, "ann": 1}), nil)
	assert.Equal(t, 0, c.auto.pending())

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return len(app.recorded()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
