package client

import (
	"math/rand/v2"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

// View is everything a player's screen needs for the current snapshot.
type View struct {
	Code   string       `json:"code"`
	Player string       `json:"player"`
	IsHost bool         `json:"isHost"`
	Phase  models.Phase `json:"phase"`
	Round  int          `json:"round"`

	// Players is the scoreboard in ranking order.
	Players       []session.Ranking `json:"players"`
	CanStartRound bool              `json:"canStartRound,omitempty"`

	// Preview is only ever set on the host's view during questionPreview.
	Preview *models.Preview `json:"preview,omitempty"`

	Question      string                  `json:"question,omitempty"`
	Progress      []session.ProgressEntry `json:"progress,omitempty"`
	MaxGuesses    int                     `json:"maxGuesses"`
	GuessesUsed   int                     `json:"guessesUsed"`
	GuessesLeft   int                     `json:"guessesLeft"`
	HasAnswered   bool                    `json:"hasAnswered"`
	FullyAnswered bool                    `json:"fullyAnswered"`

	Ballot   []string `json:"ballot,omitempty"`
	HasVoted bool     `json:"hasVoted"`
	MyVote   string   `json:"myVote,omitempty"`

	CorrectAnswer string                `json:"correctAnswer,omitempty"`
	Results       []session.ResultEntry `json:"results,omitempty"`

	Rankings []session.Ranking `json:"rankings,omitempty"`
	Leader   string            `json:"leader,omitempty"`
}

// localState is what a player knows about the current question that the shared
// document does not record.
type localState struct {
	questionKey string
	hasAnswered bool
	hasVoted    bool
	myVote      string
}

func buildView(code, player string, s *models.Session, local localState, preview *models.Preview, rng *rand.Rand) View {
	v := View{
		Code:       code,
		Player:     player,
		IsHost:     s.IsHost(player),
		Phase:      s.Phase,
		Round:      s.Round,
		Players:    session.Rankings(s),
		MaxGuesses: session.GuessBudget(s),
	}

	switch s.Phase {
	case models.PhaseLobby:
		v.CanStartRound = v.IsHost && len(s.Players) >= 2
	case models.PhaseQuestionPreview:
		if v.IsHost && preview != nil {
			p := *preview
			v.Preview = &p
		}
	case models.PhaseQuestion:
		v.Question = s.CurrentQuestion
		v.Progress = session.Progress(s)
		v.GuessesUsed = s.GuessesUsed(player)
		v.GuessesLeft = max(0, v.MaxGuesses-v.GuessesUsed)
		v.HasAnswered = local.hasAnswered || v.GuessesUsed > 0
		v.FullyAnswered = session.FullyAnswered(s, player)
	case models.PhaseVoting:
		v.Question = s.CurrentQuestion
		v.Progress = session.Progress(s)
		v.Ballot = session.Ballot(s.Answers, s.CorrectAnswer, rng)
		v.MyVote = local.myVote
		if vote, ok := s.Votes[player]; ok {
			v.MyVote = vote
		}
		v.HasVoted = local.hasVoted || v.MyVote != ""
	case models.PhaseResults, models.PhaseManualScoring:
		v.Question = s.CurrentQuestion
		v.CorrectAnswer = s.CorrectAnswer
		v.Results = session.Results(s)
	case models.PhaseRankings, models.PhaseEnded:
		v.Rankings = v.Players
		if len(v.Rankings) > 0 {
			v.Leader = v.Rankings[0].Name
		}
	}
	return v
}
