package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/events"
	"github.com/mcdev12/triviabluff/go/internal/metrics"
	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/questions"
	"github.com/mcdev12/triviabluff/go/internal/store"
)

// Config holds the session shell settings.
type Config struct {
	Collection   string        `yaml:"collection"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	JoinTimeout  time.Duration `yaml:"join_timeout"`
	JoinPolicy   JoinPolicy    `yaml:"join_policy"`
	CodeAttempts int           `yaml:"code_attempts"`
}

func DefaultConfig() Config {
	return Config{
		Collection:   "games",
		FetchTimeout: 5 * time.Second,
		JoinTimeout:  5 * time.Second,
		JoinPolicy:   JoinAnyPhase,
		CodeAttempts: 5,
	}
}

// QuestionSource supplies preview questions.
type QuestionSource interface {
	Pick(rng *rand.Rand) (models.Question, error)
}

// App runs session actions against the store: fetch, apply, write, publish.
type App struct {
	store     store.Store
	engine    *Engine
	questions QuestionSource
	publisher events.Publisher
	metrics   metrics.Collector
	clock     clockwork.Clock
	cfg       Config

	rngMu sync.Mutex
	rng   *rand.Rand

	locks sessionLocks
}

// sessionLocks serializes the fetch-apply-write cycle per session code within
// this process. Writers in other processes still race last-write-wins.
type sessionLocks struct {
	mu    sync.Mutex
	byKey map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(code string) (unlock func()) {
	l.mu.Lock()
	if l.byKey == nil {
		l.byKey = make(map[string]*sessionLock)
	}
	sl, ok := l.byKey[code]
	if !ok {
		sl = &sessionLock{}
		l.byKey[code] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.byKey, code)
		}
		l.mu.Unlock()
	}
}

type Option func(*App)

func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

func WithMetrics(m metrics.Collector) Option {
	return func(a *App) { a.metrics = m }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithRand fixes the source used to pick preview questions.
func WithRand(rng *rand.Rand) Option {
	return func(a *App) { a.rng = rng }
}

// NewApp creates a new session App
func NewApp(st store.Store, qs QuestionSource, cfg Config, opts ...Option) *App {
	def := DefaultConfig()
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = def.CodeAttempts
	}

	a := &App{
		store:     st,
		engine:    NewEngine(Rules{JoinPolicy: cfg.JoinPolicy}),
		questions: qs,
		publisher: events.NoOpPublisher{},
		metrics:   metrics.NoOp{},
		clock:     clockwork.NewRealClock(),
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) docPath(code string) store.Path {
	return store.Doc(a.cfg.Collection, code)
}

// CreateSession creates a session in the lobby with the host as its only player.
func (a *App) CreateSession(ctx context.Context, host, emoji string, maxGuesses int) (string, *models.Session, error) {
	start := a.clock.Now()
	s, err := a.engine.NewSession(host, emoji, maxGuesses, start)
	if err != nil {
		a.metrics.RecordAction("create", outcome(err), a.clock.Since(start))
		return "", nil, err
	}

	var code string
	for attempt := 1; ; attempt++ {
		code, err = GenerateCode()
		if err != nil {
			break
		}
		err = a.store.CreateDocument(ctx, a.docPath(code), s)
		if err == nil || !errors.Is(err, store.ErrExists) || attempt >= a.cfg.CodeAttempts {
			break
		}
		log.Warn().Str("session_code", code).Int("attempt", attempt).Msg("session code already taken, retrying")
	}
	if err != nil {
		err = fmt.Errorf("%w: create session: %w", ErrOperationFailed, err)
		a.metrics.RecordAction("create", outcome(err), a.clock.Since(start))
		return "", nil, err
	}
	a.metrics.RecordAction("create", outcome(nil), a.clock.Since(start))

	log.Info().
		Str("session_code", code).
		Str("host", s.Host).
		Int("max_guesses", s.MaxGuesses).
		Msg("created session")

	a.publish(ctx, code, events.TypeSessionCreated, events.SessionCreatedPayload{
		Host:       s.Host,
		MaxGuesses: s.MaxGuesses,
		CreatedAt:  time.UnixMilli(s.Created),
	})
	return code, s, nil
}

// JoinSession adds a player to an existing session. A missing session and a
// lookup that outlives the join timeout both fail with ErrJoinFailed.
func (a *App) JoinSession(ctx context.Context, code, player, emoji string) (*models.Session, error) {
	code = NormalizeCode(code)
	start := a.clock.Now()
	action := JoinPlayer{Player: player, Emoji: emoji}

	unlock := a.locks.lock(code)
	defer unlock()

	s, err := a.fetch(ctx, code, a.cfg.JoinTimeout)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimedOut) {
			err = fmt.Errorf("%w: %w", ErrJoinFailed, err)
		}
		a.metrics.RecordAction(action.Name(), outcome(err), a.clock.Since(start))
		return nil, err
	}
	return a.commit(ctx, code, s, action, start, nil)
}

// GetSession returns the current session.
func (a *App) GetSession(ctx context.Context, code string) (*models.Session, error) {
	return a.fetch(ctx, NormalizeCode(code), a.cfg.FetchTimeout)
}

// GetDocument returns the raw session document.
func (a *App) GetDocument(ctx context.Context, code string) ([]byte, error) {
	data, err := a.store.FetchOnce(ctx, a.docPath(NormalizeCode(code)), a.cfg.FetchTimeout)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return data, nil
}

// Watch calls onSnapshot with the decoded session on every change until ctx ends
// or stop is called. A deleted or corrupt document is reported as an error.
func (a *App) Watch(ctx context.Context, code string, onSnapshot func(*models.Session, error)) (stop func() error, err error) {
	sub, err := a.store.Subscribe(ctx, a.docPath(NormalizeCode(code)), func(value []byte) {
		onSnapshot(Decode(value))
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return func() error { return a.store.Unsubscribe(sub) }, nil
}

// StartRound moves the lobby to question preview and draws the first question
// for the host.
func (a *App) StartRound(ctx context.Context, code, actor string) (models.Preview, error) {
	return a.runWithPreview(ctx, code, StartRound{Actor: actor})
}

// SkipQuestion draws another preview question. Nothing is written.
func (a *App) SkipQuestion(ctx context.Context, code, actor string) (models.Preview, error) {
	code = NormalizeCode(code)
	start := a.clock.Now()
	preview, err := a.skip(ctx, code, actor)
	a.metrics.RecordAction("skip_question", outcome(err), a.clock.Since(start))
	return preview, err
}

func (a *App) skip(ctx context.Context, code, actor string) (models.Preview, error) {
	s, err := a.fetch(ctx, code, a.cfg.FetchTimeout)
	if err != nil {
		return models.Preview{}, err
	}
	if err := CheckHost(s, actor); err != nil {
		return models.Preview{}, err
	}
	if err := requirePhase(s, models.PhaseQuestionPreview); err != nil {
		return models.Preview{}, err
	}
	return a.pickPreview()
}

// ConfirmQuestion commits the previewed question and opens answering.
func (a *App) ConfirmQuestion(ctx context.Context, code, actor string, q models.Question) (*models.Session, error) {
	return a.run(ctx, code, ConfirmQuestion{Actor: actor, Question: q})
}

// SubmitAnswer records one decoy for player.
func (a *App) SubmitAnswer(ctx context.Context, code, player, text string) (*models.Session, error) {
	return a.run(ctx, code, SubmitAnswer{Player: player, Text: text})
}

// AdvanceToVoting closes answering.
func (a *App) AdvanceToVoting(ctx context.Context, code, actor string) (*models.Session, error) {
	return a.run(ctx, code, AdvanceToVoting{Actor: actor})
}

// SubmitVote records player's vote, replacing an earlier one.
func (a *App) SubmitVote(ctx context.Context, code, player, text string) (*models.Session, error) {
	return a.run(ctx, code, SubmitVote{Player: player, Text: text})
}

// ProceedToResults scores the round and shows the results.
func (a *App) ProceedToResults(ctx context.Context, code, actor string) (*models.Session, error) {
	return a.run(ctx, code, ProceedToResults{Actor: actor})
}

func (a *App) ProceedToManualScoring(ctx context.Context, code, actor string) (*models.Session, error) {
	return a.run(ctx, code, ProceedToManualScoring{Actor: actor})
}

// AwardPoints adds points to a player's score during manual scoring.
func (a *App) AwardPoints(ctx context.Context, code, actor, player string, points int) (*models.Session, error) {
	return a.run(ctx, code, AwardPoints{Actor: actor, Player: player, Points: points})
}

func (a *App) ProceedToRankings(ctx context.Context, code, actor string) (*models.Session, error) {
	return a.run(ctx, code, ProceedToRankings{Actor: actor})
}

// NextRound bumps the round and draws the next preview question.
func (a *App) NextRound(ctx context.Context, code, actor string) (models.Preview, error) {
	return a.runWithPreview(ctx, code, NextRound{Actor: actor})
}

func (a *App) EndSession(ctx context.Context, code, actor string) (*models.Session, error) {
	return a.run(ctx, code, EndSession{Actor: actor})
}

func (a *App) runWithPreview(ctx context.Context, code string, action Action) (models.Preview, error) {
	var preview models.Preview
	_, err := a.runBefore(ctx, code, action, func() error {
		var err error
		preview, err = a.pickPreview()
		return err
	})
	if err != nil {
		return models.Preview{}, err
	}
	return preview, nil
}

func (a *App) run(ctx context.Context, code string, action Action) (*models.Session, error) {
	return a.runBefore(ctx, code, action, nil)
}

// runBefore fetches the session and commits action. beforeWrite runs once the
// action is known to be valid and can still veto the write.
func (a *App) runBefore(ctx context.Context, code string, action Action, beforeWrite func() error) (*models.Session, error) {
	code = NormalizeCode(code)
	start := a.clock.Now()

	unlock := a.locks.lock(code)
	defer unlock()

	s, err := a.fetch(ctx, code, a.cfg.FetchTimeout)
	if err != nil {
		a.metrics.RecordAction(action.Name(), outcome(err), a.clock.Since(start))
		return nil, err
	}
	return a.commit(ctx, code, s, action, start, beforeWrite)
}

func (a *App) commit(ctx context.Context, code string, s *models.Session, action Action, start time.Time, beforeWrite func() error) (*models.Session, error) {
	next, err := a.apply(ctx, code, s, action, beforeWrite)
	a.metrics.RecordAction(action.Name(), outcome(err), a.clock.Since(start))
	if err != nil {
		log.Debug().
			Err(err).
			Str("session_code", code).
			Str("action", action.Name()).
			Msg("session action rejected")
		return nil, err
	}
	return next, nil
}

func (a *App) apply(ctx context.Context, code string, s *models.Session, action Action, beforeWrite func() error) (*models.Session, error) {
	applyStart := a.clock.Now()
	m, err := a.engine.Apply(s, action)
	if err != nil {
		return nil, err
	}
	if m.Scores != nil {
		a.metrics.RecordScoring(len(s.Votes), a.clock.Since(applyStart))
	}
	if beforeWrite != nil {
		if err := beforeWrite(); err != nil {
			return nil, err
		}
	}
	if err := a.write(ctx, code, m); err != nil {
		log.Error().
			Err(err).
			Str("session_code", code).
			Str("action", action.Name()).
			Msg("failed to write session")
		return nil, err
	}
	a.publishFor(ctx, code, s, action, m)
	return m.Next, nil
}

func (a *App) write(ctx context.Context, code string, m Mutation) error {
	var err error
	switch {
	case m.Empty():
		return nil
	case m.Set != nil:
		err = a.store.SetField(ctx, a.docPath(code).Child(m.Set.Path), m.Set.Value)
	default:
		err = a.store.PartialUpdate(ctx, a.docPath(code), m.Update)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}
	return nil
}

func (a *App) fetch(ctx context.Context, code string, timeout time.Duration) (*models.Session, error) {
	data, err := a.store.FetchOnce(ctx, a.docPath(code), timeout)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}
	return s, nil
}

func (a *App) pickPreview() (models.Preview, error) {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	q, err := a.questions.Pick(a.rng)
	if err != nil {
		if errors.Is(err, questions.ErrEmptyBank) {
			return models.Preview{}, fmt.Errorf("%w: %w", ErrPrecondition, err)
		}
		return models.Preview{}, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}
	return models.Preview{Question: q, HostOnly: true}, nil
}

func (a *App) publishFor(ctx context.Context, code string, prev *models.Session, action Action, m Mutation) {
	next := m.Next
	switch act := action.(type) {
	case JoinPlayer:
		a.publish(ctx, code, events.TypePlayerJoined, events.PlayerJoinedPayload{
			Player: act.Player,
			Emoji:  act.Emoji,
			Phase:  next.Phase.String(),
		})
	case StartRound, NextRound:
		a.publish(ctx, code, events.TypeRoundStarted, events.RoundStartedPayload{
			Round:   next.Round,
			Players: len(next.Players),
		})
	case ConfirmQuestion:
		a.publish(ctx, code, events.TypeQuestionConfirmed, events.QuestionConfirmedPayload{
			Round:    next.Round,
			Question: next.CurrentQuestion,
		})
	case SubmitAnswer:
		a.publish(ctx, code, events.TypeAnswerSubmitted, events.AnswerSubmittedPayload{
			Player:        act.Player,
			AttemptNumber: next.GuessesUsed(act.Player),
			Round:         next.Round,
		})
	case SubmitVote:
		a.publish(ctx, code, events.TypeVoteCast, events.VoteCastPayload{
			Player: act.Player,
			Round:  next.Round,
		})
	case ProceedToResults:
		a.publish(ctx, code, events.TypeScoresComputed, events.ScoresComputedPayload{
			Round:  next.Round,
			Votes:  len(prev.Votes),
			Deltas: m.Scores.Deltas,
		})
	case AwardPoints:
		a.publish(ctx, code, events.TypePointsAwarded, events.PointsAwardedPayload{
			Player:   act.Player,
			Points:   act.Points,
			NewScore: next.Players[act.Player].Score,
		})
	}

	if prev.Phase != next.Phase {
		log.Info().
			Str("session_code", code).
			Str("from", prev.Phase.String()).
			Str("to", next.Phase.String()).
			Int("round", next.Round).
			Msg("session phase changed")
		a.publish(ctx, code, events.TypePhaseChanged, events.PhaseChangedPayload{
			From:    prev.Phase.String(),
			To:      next.Phase.String(),
			Round:   next.Round,
			Trigger: action.Name(),
		})
	}
}

// publish never fails the action; a lost event is only logged.
func (a *App) publish(ctx context.Context, code, eventType string, payload any) {
	event, err := events.New(code, eventType, payload, a.clock.Now())
	if err == nil {
		err = a.publisher.Publish(ctx, event)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("session_code", code).
			Str("event_type", eventType).
			Msg("failed to publish session event")
	}
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrTimedOut):
		return fmt.Errorf("%w: %w", ErrTimedOut, err)
	default:
		return fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return Kind(err)
}
