package models

import (
	"fmt"
)

// Phase defines the current step of a session's round lifecycle.
type Phase string

const (
	PhaseLobby           Phase = "lobby"
	PhaseQuestionPreview Phase = "questionPreview"
	PhaseQuestion        Phase = "question"
	PhaseVoting          Phase = "voting"
	PhaseResults         Phase = "results"
	PhaseManualScoring   Phase = "manualScoring"
	PhaseRankings        Phase = "rankings"
	PhaseEnded           Phase = "ended"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{
	PhaseLobby,
	PhaseQuestionPreview,
	PhaseQuestion,
	PhaseVoting,
	PhaseResults,
	PhaseManualScoring,
	PhaseRankings,
	PhaseEnded,
}

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

func (p Phase) String() string {
	return string(p)
}

// DefaultMaxGuesses is used when a session is created without a guess budget.
const DefaultMaxGuesses = 3

// Session is the shared game document stored under games/{code}.
type Session struct {
	Host             string            `json:"host"`
	Phase            Phase             `json:"phase"`
	Round            int               `json:"round"`
	Players          map[string]Player `json:"players"`
	CurrentQuestion  string            `json:"currentQuestion,omitempty"`
	CorrectAnswer    string            `json:"correctAnswer,omitempty"`
	Answers          map[string]Answer `json:"answers,omitempty"`
	Votes            map[string]string `json:"votes,omitempty"`
	MaxGuesses       int               `json:"maxGuesses"`
	PlayerGuessCount map[string]int    `json:"playerGuessCount,omitempty"`
	Created          int64             `json:"created"`
}

// Player is one participant, keyed by name.
type Player struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Score int    `json:"score"`
}

// Answer is one decoy submission.
type Answer struct {
	Answer        string `json:"answer"`
	Player        string `json:"player"`
	AttemptNumber int    `json:"attemptNumber"`
}

// AnswerKey returns the key an answer is stored under.
func AnswerKey(player string, attempt int) string {
	return fmt.Sprintf("%s_%d", player, attempt)
}

// IsHost reports whether name created the session.
func (s *Session) IsHost(name string) bool {
	return s != nil && s.Host != "" && s.Host == name
}

// HasPlayer reports whether name has joined.
func (s *Session) HasPlayer(name string) bool {
	_, ok := s.Players[name]
	return ok
}

// GuessesUsed returns how many decoys a player has submitted this round.
func (s *Session) GuessesUsed(name string) int {
	return s.PlayerGuessCount[name]
}

// QuestionKey identifies the current round's question. It changes whenever a new
// question is confirmed, including when the same text comes up in a later round.
func (s *Session) QuestionKey() string {
	return fmt.Sprintf("%d/%s", s.Round, s.CurrentQuestion)
}

// Clone returns a deep copy so callers can derive a next state without touching s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = make(map[string]Player, len(s.Players))
	for k, v := range s.Players {
		c.Players[k] = v
	}
	c.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.Votes = make(map[string]string, len(s.Votes))
	for k, v := range s.Votes {
		c.Votes[k] = v
	}
	c.PlayerGuessCount = make(map[string]int, len(s.PlayerGuessCount))
	for k, v := range s.PlayerGuessCount {
		c.PlayerGuessCount[k] = v
	}
	return &c
}
