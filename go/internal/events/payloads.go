package events

import (
	"time"
)

// Event types published after each committed session change
const (
	TypeSessionCreated    = "SessionCreated"
	TypePlayerJoined      = "PlayerJoined"
	TypeRoundStarted      = "RoundStarted"
	TypeQuestionConfirmed = "QuestionConfirmed"
	TypeAnswerSubmitted   = "AnswerSubmitted"
	TypeVoteCast          = "VoteCast"
	TypePhaseChanged      = "PhaseChanged"
	TypeScoresComputed    = "ScoresComputed"
	TypePointsAwarded     = "PointsAwarded"
)

// SessionCreatedPayload is the payload for a SessionCreated event
type SessionCreatedPayload struct {
	Host       string    `json:"host"`
	MaxGuesses int       `json:"max_guesses"`
	CreatedAt  time.Time `json:"created_at"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event
type PlayerJoinedPayload struct {
	Player string `json:"player"`
	Emoji  string `json:"emoji"`
	Phase  string `json:"phase"`
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	Round   int `json:"round"`
	Players int `json:"players"`
}

// QuestionConfirmedPayload is the payload for a QuestionConfirmed event. The
// answer is left out so event consumers cannot leak it to players.
type QuestionConfirmedPayload struct {
	Round    int    `json:"round"`
	Question string `json:"question"`
}

// AnswerSubmittedPayload is the payload for an AnswerSubmitted event
type AnswerSubmittedPayload struct {
	Player        string `json:"player"`
	AttemptNumber int    `json:"attempt_number"`
	Round         int    `json:"round"`
}

// VoteCastPayload is the payload for a VoteCast event
type VoteCastPayload struct {
	Player string `json:"player"`
	Round  int    `json:"round"`
}

// PhaseChangedPayload is the payload for a PhaseChanged event
type PhaseChangedPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Round   int    `json:"round"`
	Trigger string `json:"trigger"`
}

// ScoresComputedPayload is the payload for a ScoresComputed event
type ScoresComputedPayload struct {
	Round  int            `json:"round"`
	Votes  int            `json:"votes"`
	Deltas map[string]int `json:"deltas"`
}

// PointsAwardedPayload is the payload for a PointsAwarded event
type PointsAwardedPayload struct {
	Player   string `json:"player"`
	Points   int    `json:"points"`
	NewScore int    `json:"new_score"`
}
