package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

var (
	// ErrNotBound is returned by actions on a controller that has not created or
	// joined a session.
	ErrNotBound = errors.New("client is not in a session")
	// ErrNoPreview is returned by ConfirmQuestion when the host has nothing previewed.
	ErrNoPreview = errors.New("no question is being previewed")
)

// App is the part of the session application a controller drives.
type App interface {
	session.SessionApp
	Watch(ctx context.Context, code string, onSnapshot func(*models.Session, error)) (func() error, error)
}

// Config holds the host auto-advance settings.
type Config struct {
	VotingDelay  time.Duration `yaml:"voting_delay"`
	ResultsDelay time.Duration `yaml:"results_delay"`
	AutoResults  bool          `yaml:"auto_results"`
}

func DefaultConfig() Config {
	return Config{
		VotingDelay:  time.Second,
		ResultsDelay: 2 * time.Second,
	}
}

type Option func(*Controller)

func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithRand fixes the source used to shuffle the ballot.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithOnView registers the callback that receives every rendered view.
func WithOnView(fn func(View)) Option {
	return func(c *Controller) { c.onView = fn }
}

// WithOnError registers the callback for failures nobody is waiting on, such as
// a deleted session or a failed auto-advance.
func WithOnError(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// Controller is one player's handle on a session. It turns every snapshot the
// store delivers into a View and, for the host, advances the round when everyone
// is done.
type Controller struct {
	app     App
	cfg     Config
	clock   clockwork.Clock
	onView  func(View)
	onError func(error)
	auto    *autoAdvancer

	rngMu sync.Mutex
	rng   *rand.Rand

	// hostMu serializes host transitions issued by this controller.
	hostMu sync.Mutex
	// renderMu keeps views delivered in the order they were built.
	renderMu sync.Mutex

	mu        sync.Mutex
	code      string
	player    string
	snapshot  *models.Session
	local     localState
	preview   *models.Preview
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() error
}

// New creates a controller that is not yet in a session.
func New(app App, opts ...Option) *Controller {
	c := &Controller{
		app:     app,
		cfg:     DefaultConfig(),
		clock:   clockwork.NewRealClock(),
		onView:  func(View) {},
		onError: func(error) {},
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.auto = newAutoAdvancer(c.clock, c.cfg, c.autoAdvance)
	return c
}

// Create starts a new session hosted by host and binds the controller to it.
func (c *Controller) Create(ctx context.Context, host, emoji string, maxGuesses int) (string, error) {
	code, s, err := c.app.CreateSession(ctx, host, emoji, maxGuesses)
	if err != nil {
		return "", err
	}
	c.bind(code, s.Host)
	return code, nil
}

// Join adds player to the session at code and binds the controller to it.
func (c *Controller) Join(ctx context.Context, code, player, emoji string) error {
	if _, err := c.app.JoinSession(ctx, code, player, emoji); err != nil {
		return err
	}
	c.bind(session.NormalizeCode(code), strings.TrimSpace(player))
	return nil
}

func (c *Controller) bind(code, player string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
	c.player = player
}

// Code returns the bound session code.
func (c *Controller) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Player returns the bound player name.
func (c *Controller) Player() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// Start subscribes to the bound session. Views flow to the OnView callback until
// ctx ends or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	code := c.code
	c.mu.Unlock()
	if code == "" {
		return ErrNotBound
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx, c.cancel = watchCtx, cancel
	c.mu.Unlock()

	stop, err := c.app.Watch(watchCtx, code, c.handleSnapshot)
	if err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	c.stopWatch = stop
	c.mu.Unlock()
	return nil
}

// Close stops the subscription and any pending auto-advance.
func (c *Controller) Close() error {
	c.auto.close()

	c.mu.Lock()
	stop, cancel := c.stopWatch, c.cancel
	c.stopWatch, c.cancel = nil, nil
	c.mu.Unlock()

	var err error
	if stop != nil {
		err = stop()
	}
	if cancel != nil {
		cancel()
	}
	return err
}

// View renders the latest snapshot. ok is false before the first delivery.
func (c *Controller) View() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return View{}, false
	}
	return c.viewLocked(), true
}

func (c *Controller) handleSnapshot(s *models.Session, err error) {
	if err != nil {
		log.Warn().Err(err).Str("session_code", c.Code()).Msg("session snapshot unavailable")
		c.onError(err)
		return
	}

	c.mu.Lock()
	if key := s.QuestionKey(); key != c.local.questionKey {
		c.local = localState{questionKey: key}
	}
	c.snapshot = s
	isHost := s.IsHost(c.player)
	c.mu.Unlock()

	if isHost {
		c.auto.observe(s)
	}
	c.render()
}

func (c *Controller) render() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if c.snapshot == nil {
		c.mu.Unlock()
		return
	}
	v := c.viewLocked()
	c.mu.Unlock()

	c.onView(v)
}

func (c *Controller) viewLocked() View {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return buildView(c.code, c.player, c.snapshot, c.local, c.preview, c.rng)
}

func (c *Controller) bound() (code, player string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code == "" {
		return "", "", ErrNotBound
	}
	return c.code, c.player, nil
}

// StartRound leaves the lobby and keeps the drawn question as the host's preview.
func (c *Controller) StartRound(ctx context.Context) (models.Preview, error) {
	return c.previewTransition(ctx, c.app.StartRound)
}

// SkipQuestion replaces the host's preview with another question.
func (c *Controller) SkipQuestion(ctx context.Context) (models.Preview, error) {
	return c.previewTransition(ctx, c.app.SkipQuestion)
}

// NextRound moves from rankings to a new preview.
func (c *Controller) NextRound(ctx context.Context) (models.Preview, error) {
	return c.previewTransition(ctx, c.app.NextRound)
}

func (c *Controller) previewTransition(ctx context.Context, fn func(ctx context.Context, code, actor string) (models.Preview, error)) (models.Preview, error) {
	code, player, err := c.bound()
	if err != nil {
		return models.Preview{}, err
	}

	c.hostMu.Lock()
	p, err := fn(ctx, code, player)
	c.hostMu.Unlock()
	if err != nil {
		return models.Preview{}, err
	}

	c.mu.Lock()
	c.preview = &p
	c.mu.Unlock()
	c.render()
	return p, nil
}

// ConfirmQuestion commits the previewed question.
func (c *Controller) ConfirmQuestion(ctx context.Context) error {
	code, player, err := c.bound()
	if err != nil {
		return err
	}
	c.mu.Lock()
	preview := c.preview
	c.mu.Unlock()
	if preview == nil {
		return fmt.Errorf("%w: %w", session.ErrPrecondition, ErrNoPreview)
	}

	return c.hostTransition(func() error {
		if _, err := c.app.ConfirmQuestion(ctx, code, player, preview.Question); err != nil {
			return err
		}
		c.mu.Lock()
		c.preview = nil
		c.mu.Unlock()
		return nil
	})
}

// SubmitAnswer submits one decoy.
func (c *Controller) SubmitAnswer(ctx context.Context, text string) error {
	code, player, err := c.bound()
	if err != nil {
		return err
	}
	s, err := c.app.SubmitAnswer(ctx, code, player, text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if s.QuestionKey() == c.local.questionKey || c.local.questionKey == "" {
		c.local.questionKey = s.QuestionKey()
		c.local.hasAnswered = true
	}
	c.mu.Unlock()
	c.render()
	return nil
}

// SubmitVote records the player's vote, replacing an earlier one.
func (c *Controller) SubmitVote(ctx context.Context, text string) error {
	code, player, err := c.bound()
	if err != nil {
		return err
	}
	s, err := c.app.SubmitVote(ctx, code, player, text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if s.QuestionKey() == c.local.questionKey || c.local.questionKey == "" {
		c.local.questionKey = s.QuestionKey()
		c.local.hasVoted = true
		c.local.myVote = text
	}
	c.mu.Unlock()
	c.render()
	return nil
}

// StartVoting closes answering early.
func (c *Controller) StartVoting(ctx context.Context) error {
	return c.hostAction(ctx, c.app.AdvanceToVoting)
}

// ShowResults scores the round.
func (c *Controller) ShowResults(ctx context.Context) error {
	return c.hostAction(ctx, c.app.ProceedToResults)
}

func (c *Controller) ManualScoring(ctx context.Context) error {
	return c.hostAction(ctx, c.app.ProceedToManualScoring)
}

// AwardPoints adjusts a player's score during manual scoring.
func (c *Controller) AwardPoints(ctx context.Context, player string, points int) error {
	code, actor, err := c.bound()
	if err != nil {
		return err
	}
	return c.hostTransition(func() error {
		_, err := c.app.AwardPoints(ctx, code, actor, player, points)
		return err
	})
}

func (c *Controller) ShowRankings(ctx context.Context) error {
	return c.hostAction(ctx, c.app.ProceedToRankings)
}

func (c *Controller) EndSession(ctx context.Context) error {
	return c.hostAction(ctx, c.app.EndSession)
}

func (c *Controller) hostAction(ctx context.Context, fn func(ctx context.Context, code, actor string) (*models.Session, error)) error {
	code, player, err := c.bound()
	if err != nil {
		return err
	}
	return c.hostTransition(func() error {
		_, err := fn(ctx, code, player)
		return err
	})
}

func (c *Controller) hostTransition(fn func() error) error {
	c.hostMu.Lock()
	defer c.hostMu.Unlock()
	return fn()
}

// autoAdvance runs a transition whose timer fired. The session may have moved on
// in the meantime, in which case the App rejects the write and nothing happens.
func (c *Controller) autoAdvance(t transition) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	var err error
	switch t {
	case transitionVoting:
		err = c.StartVoting(ctx)
	case transitionResults:
		err = c.ShowResults(ctx)
	}

	switch {
	case err == nil:
		log.Info().Str("session_code", c.Code()).Str("transition", string(t)).Msg("auto-advanced session")
	case errors.Is(err, session.ErrPrecondition), errors.Is(err, context.Canceled):
		log.Debug().Err(err).Str("session_code", c.Code()).Str("transition", string(t)).Msg("auto-advance skipped")
	default:
		log.Error().Err(err).Str("session_code", c.Code()).Str("transition", string(t)).Msg("auto-advance failed")
		c.onError(err)
	}
}
