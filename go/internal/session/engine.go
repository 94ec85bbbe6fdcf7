package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

const (
	// MaxGuessesLimit caps the guess budget a host may configure.
	MaxGuessesLimit = 10

	forbiddenNameChars = ".#$[]/"
)

// JoinPolicy decides in which phases new players may join.
type JoinPolicy string

const (
	JoinAnyPhase  JoinPolicy = "any"
	JoinLobbyOnly JoinPolicy = "lobby"
)

// Rules configures the pure transition layer.
type Rules struct {
	JoinPolicy JoinPolicy
}

// Engine applies actions to a session snapshot without doing any I/O.
type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) *Engine {
	if rules.JoinPolicy == "" {
		rules.JoinPolicy = JoinAnyPhase
	}
	return &Engine{rules: rules}
}

// Action is one user intent against a session.
type Action interface {
	Name() string
}

type (
	JoinPlayer struct {
		Player string
		Emoji  string
	}
	StartRound struct {
		Actor string
	}
	ConfirmQuestion struct {
		Actor    string
		Question models.Question
	}
	SubmitAnswer struct {
		Player string
		Text   string
	}
	AdvanceToVoting struct {
		Actor string
	}
	SubmitVote struct {
		Player string
		Text   string
	}
	ProceedToResults struct {
		Actor string
	}
	ProceedToManualScoring struct {
		Actor string
	}
	AwardPoints struct {
		Actor  string
		Player string
		Points int
	}
	ProceedToRankings struct {
		Actor string
	}
	NextRound struct {
		Actor string
	}
	EndSession struct {
		Actor string
	}
)

func (JoinPlayer) Name() string             { return "join" }
func (StartRound) Name() string             { return "start_round" }
func (ConfirmQuestion) Name() string        { return "confirm_question" }
func (SubmitAnswer) Name() string           { return "submit_answer" }
func (AdvanceToVoting) Name() string        { return "advance_to_voting" }
func (SubmitVote) Name() string             { return "submit_vote" }
func (ProceedToResults) Name() string       { return "proceed_to_results" }
func (ProceedToManualScoring) Name() string { return "proceed_to_manual_scoring" }
func (AwardPoints) Name() string            { return "award_points" }
func (ProceedToRankings) Name() string      { return "proceed_to_rankings" }
func (NextRound) Name() string              { return "next_round" }
func (EndSession) Name() string             { return "end_session" }

// FieldWrite replaces a single location below the session document.
type FieldWrite struct {
	Path  string
	Value any
}

// Mutation is the store write an action results in. At most one of Update and Set
// is populated; a zero Mutation means there is nothing to write.
type Mutation struct {
	// Next is the session as it looks once the write lands.
	Next *models.Session
	// Update is a partial update keyed by field sub-paths, applied atomically.
	Update map[string]any
	// Set is a single sub-path write.
	Set *FieldWrite
	// Scores is filled in by the scoring transition.
	Scores *ScoreResult
}

// Empty reports whether the mutation writes nothing.
func (m Mutation) Empty() bool {
	return len(m.Update) == 0 && m.Set == nil
}

// NewSession builds the initial document for a session hosted by host.
func (e *Engine) NewSession(host, emoji string, maxGuesses int, now time.Time) (*models.Session, error) {
	host, err := validatePlayerName(host)
	if err != nil {
		return nil, err
	}
	if maxGuesses <= 0 {
		maxGuesses = models.DefaultMaxGuesses
	}
	if maxGuesses > MaxGuessesLimit {
		return nil, fmt.Errorf("%w: max guesses must be at most %d", ErrValidation, MaxGuessesLimit)
	}

	return &models.Session{
		Host:       host,
		Phase:      models.PhaseLobby,
		Round:      1,
		Players:    map[string]models.Player{host: {Name: host, Emoji: emoji}},
		MaxGuesses: maxGuesses,
		Created:    now.UnixMilli(),
	}, nil
}

// Apply validates action against s and returns the write it results in. s is
// never modified.
func (e *Engine) Apply(s *models.Session, action Action) (Mutation, error) {
	if s == nil {
		return Mutation{}, ErrNotFound
	}
	switch a := action.(type) {
	case JoinPlayer:
		return e.join(s, a)
	case StartRound:
		return e.phaseChange(s, a.Actor, models.PhaseQuestionPreview, func(s *models.Session) error {
			if s.Phase != models.PhaseLobby {
				return fmt.Errorf("%w: rounds start from the lobby", ErrPrecondition)
			}
			if len(s.Players) < 2 {
				return fmt.Errorf("%w: need at least 2 players, have %d", ErrPrecondition, len(s.Players))
			}
			return nil
		}, nil)
	case ConfirmQuestion:
		return e.confirmQuestion(s, a)
	case SubmitAnswer:
		return e.submitAnswer(s, a)
	case AdvanceToVoting:
		return e.phaseChange(s, a.Actor, models.PhaseVoting, nil, nil)
	case SubmitVote:
		return e.submitVote(s, a)
	case ProceedToResults:
		return e.proceedToResults(s, a)
	case ProceedToManualScoring:
		return e.phaseChange(s, a.Actor, models.PhaseManualScoring, nil, nil)
	case AwardPoints:
		return e.awardPoints(s, a)
	case ProceedToRankings:
		return e.phaseChange(s, a.Actor, models.PhaseRankings, nil, nil)
	case NextRound:
		return e.phaseChange(s, a.Actor, models.PhaseQuestionPreview, func(s *models.Session) error {
			return requirePhase(s, models.PhaseRankings)
		}, func(next *models.Session, update map[string]any) {
			next.Round++
			update["round"] = next.Round
		})
	case EndSession:
		return e.phaseChange(s, a.Actor, models.PhaseEnded, nil, nil)
	default:
		return Mutation{}, fmt.Errorf("%w: unknown action %T", ErrValidation, action)
	}
}

// CheckHost returns ErrPermission unless actor is the session host.
func CheckHost(s *models.Session, actor string) error {
	if !s.IsHost(actor) {
		return fmt.Errorf("%w: %q is not the host", ErrPermission, actor)
	}
	return nil
}

// phaseChange is the shared shape of the host-only transitions: permission, an
// optional extra guard, the lifecycle check, then the phase write plus any extra
// fields.
func (e *Engine) phaseChange(
	s *models.Session,
	actor string,
	target models.Phase,
	guard func(*models.Session) error,
	extra func(next *models.Session, update map[string]any),
) (Mutation, error) {
	if err := CheckHost(s, actor); err != nil {
		return Mutation{}, err
	}
	if guard != nil {
		if err := guard(s); err != nil {
			return Mutation{}, err
		}
	}
	if err := validatePhaseTransition(s.Phase, target); err != nil {
		return Mutation{}, err
	}

	next := s.Clone()
	next.Phase = target
	update := map[string]any{"phase": target}
	if extra != nil {
		extra(next, update)
	}
	return Mutation{Next: next, Update: update}, nil
}

func (e *Engine) join(s *models.Session, a JoinPlayer) (Mutation, error) {
	name, err := validatePlayerName(a.Player)
	if err != nil {
		return Mutation{}, err
	}
	if e.rules.JoinPolicy == JoinLobbyOnly && s.Phase != models.PhaseLobby {
		return Mutation{}, fmt.Errorf("%w: joining is only allowed in the lobby", ErrPrecondition)
	}

	// re-joining with a taken name replaces that player's record
	player := models.Player{Name: name, Emoji: a.Emoji}
	next := s.Clone()
	next.Players[name] = player
	return Mutation{
		Next:   next,
		Update: map[string]any{"players/" + name: player},
	}, nil
}

func (e *Engine) confirmQuestion(s *models.Session, a ConfirmQuestion) (Mutation, error) {
	if err := CheckHost(s, a.Actor); err != nil {
		return Mutation{}, err
	}
	if err := requirePhase(s, models.PhaseQuestionPreview); err != nil {
		return Mutation{}, err
	}
	q := a.Question
	if strings.TrimSpace(q.Text) == "" || strings.TrimSpace(q.Answer) == "" {
		return Mutation{}, fmt.Errorf("%w: question and answer are required", ErrValidation)
	}
	if err := validatePhaseTransition(s.Phase, models.PhaseQuestion); err != nil {
		return Mutation{}, err
	}

	next := s.Clone()
	next.Phase = models.PhaseQuestion
	next.CurrentQuestion = q.Text
	next.CorrectAnswer = q.Answer
	next.Answers = map[string]models.Answer{}
	next.Votes = map[string]string{}
	next.PlayerGuessCount = map[string]int{}
	return Mutation{
		Next: next,
		Update: map[string]any{
			"phase":            models.PhaseQuestion,
			"currentQuestion":  q.Text,
			"correctAnswer":    q.Answer,
			"answers":          nil,
			"votes":            nil,
			"playerGuessCount": nil,
		},
	}, nil
}

func (e *Engine) submitAnswer(s *models.Session, a SubmitAnswer) (Mutation, error) {
	if err := requirePhase(s, models.PhaseQuestion); err != nil {
		return Mutation{}, err
	}
	if !s.HasPlayer(a.Player) {
		return Mutation{}, fmt.Errorf("%w: unknown player %q", ErrValidation, a.Player)
	}
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return Mutation{}, fmt.Errorf("%w: answer is required", ErrValidation)
	}
	if Normalize(text) == Normalize(s.CorrectAnswer) {
		return Mutation{}, fmt.Errorf("%w: that is the correct answer, submit a decoy", ErrValidation)
	}
	used := s.GuessesUsed(a.Player)
	if used >= GuessBudget(s) {
		return Mutation{}, fmt.Errorf("%w: all %d guesses used", ErrPrecondition, GuessBudget(s))
	}

	attempt := used + 1
	key := models.AnswerKey(a.Player, attempt)
	answer := models.Answer{Answer: text, Player: a.Player, AttemptNumber: attempt}

	next := s.Clone()
	next.Answers[key] = answer
	next.PlayerGuessCount[a.Player] = attempt
	return Mutation{
		Next: next,
		Update: map[string]any{
			"answers/" + key:               answer,
			"playerGuessCount/" + a.Player: attempt,
		},
	}, nil
}

func (e *Engine) submitVote(s *models.Session, a SubmitVote) (Mutation, error) {
	if err := requirePhase(s, models.PhaseVoting); err != nil {
		return Mutation{}, err
	}
	if !s.HasPlayer(a.Player) {
		return Mutation{}, fmt.Errorf("%w: unknown player %q", ErrValidation, a.Player)
	}
	if strings.TrimSpace(a.Text) == "" {
		return Mutation{}, fmt.Errorf("%w: vote is required", ErrValidation)
	}

	// a repeated vote overwrites the previous one
	next := s.Clone()
	next.Votes[a.Player] = a.Text
	return Mutation{
		Next: next,
		Set:  &FieldWrite{Path: "votes/" + a.Player, Value: a.Text},
	}, nil
}

func (e *Engine) proceedToResults(s *models.Session, a ProceedToResults) (Mutation, error) {
	m, err := e.phaseChange(s, a.Actor, models.PhaseResults, nil, nil)
	if err != nil {
		return Mutation{}, err
	}
	scores := ComputeScores(s)
	m.Next.Players = scores.Players
	// absolute scores per scorer; players who joined after the fetch are left alone
	for name := range scores.Deltas {
		m.Update["players/"+name+"/score"] = scores.Players[name].Score
	}
	m.Scores = &scores
	return m, nil
}

func (e *Engine) awardPoints(s *models.Session, a AwardPoints) (Mutation, error) {
	if err := CheckHost(s, a.Actor); err != nil {
		return Mutation{}, err
	}
	if err := requirePhase(s, models.PhaseManualScoring); err != nil {
		return Mutation{}, err
	}
	player, ok := s.Players[a.Player]
	if !ok {
		return Mutation{}, fmt.Errorf("%w: unknown player %q", ErrValidation, a.Player)
	}
	if a.Points == 0 {
		return Mutation{}, fmt.Errorf("%w: points must not be zero", ErrValidation)
	}

	player.Score += a.Points
	next := s.Clone()
	next.Players[a.Player] = player
	return Mutation{
		Next: next,
		Set:  &FieldWrite{Path: "players/" + a.Player + "/score", Value: player.Score},
	}, nil
}

func validatePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return "", fmt.Errorf("%w: name must not contain any of %q", ErrValidation, forbiddenNameChars)
	}
	return name, nil
}
