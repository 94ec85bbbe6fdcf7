package session

import (
	"cmp"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

// Normalize is the comparison form of answer text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// SortedAnswers returns the answer records ordered by their store key.
func SortedAnswers(answers map[string]models.Answer) []models.Answer {
	out := make([]models.Answer, 0, len(answers))
	for _, key := range slices.Sorted(maps.Keys(answers)) {
		out = append(out, answers[key])
	}
	return out
}

// PlayersWhoAnswered returns every distinct submitter, sorted.
func PlayersWhoAnswered(answers map[string]models.Answer) []string {
	seen := make(map[string]struct{})
	for _, a := range answers {
		seen[a.Player] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// UniqueAnswers keeps the first answer for each normalized text.
func UniqueAnswers(answers []models.Answer) []models.Answer {
	seen := make(map[string]struct{}, len(answers))
	out := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		key := Normalize(a.Answer)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// PlayersForAnswer returns the players with any answer that normalizes to text.
func PlayersForAnswer(text string, answers []models.Answer) []string {
	target := Normalize(text)
	var out []string
	for _, a := range answers {
		if Normalize(a.Answer) == target && !slices.Contains(out, a.Player) {
			out = append(out, a.Player)
		}
	}
	return out
}

// VotersForAnswer returns the players whose vote is exactly text, sorted.
func VotersForAnswer(text string, votes map[string]string) []string {
	var out []string
	for _, voter := range slices.Sorted(maps.Keys(votes)) {
		if votes[voter] == text {
			out = append(out, voter)
		}
	}
	return out
}

// BallotOptions lists the unique decoys plus the correct answer in canonical order.
func BallotOptions(answers map[string]models.Answer, correct string) []string {
	unique := UniqueAnswers(SortedAnswers(answers))
	out := make([]string, 0, len(unique)+1)
	for _, a := range unique {
		out = append(out, a.Answer)
	}
	if correct != "" && !slices.ContainsFunc(out, func(o string) bool { return Normalize(o) == Normalize(correct) }) {
		out = append(out, correct)
	}
	return out
}

// Ballot is BallotOptions shuffled for one render. Each client shuffles on its own.
func Ballot(answers map[string]models.Answer, correct string, rng *rand.Rand) []string {
	out := BallotOptions(answers, correct)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// GuessBudget returns how many decoys each player may submit per round.
func GuessBudget(s *models.Session) int {
	if s.MaxGuesses <= 0 {
		return models.DefaultMaxGuesses
	}
	return s.MaxGuesses
}

// FullyAnswered reports whether player used the whole guess budget.
func FullyAnswered(s *models.Session, player string) bool {
	return s.GuessesUsed(player) >= GuessBudget(s)
}

// AllFullyAnswered reports whether every player used the whole guess budget.
func AllFullyAnswered(s *models.Session) bool {
	if len(s.Players) == 0 {
		return false
	}
	for name := range s.Players {
		if !FullyAnswered(s, name) {
			return false
		}
	}
	return true
}

// AllVoted reports whether every player has a vote recorded.
func AllVoted(s *models.Session) bool {
	if len(s.Players) == 0 {
		return false
	}
	for name := range s.Players {
		if _, ok := s.Votes[name]; !ok {
			return false
		}
	}
	return true
}

// ProgressEntry is one row of the "who is done" indicator.
type ProgressEntry struct {
	Player  string `json:"player"`
	Emoji   string `json:"emoji"`
	Done    bool   `json:"done"`
	Guesses int    `json:"guesses"`
}

// Progress lists every player with their state in the question or voting phase,
// sorted by name. Outside those phases it returns nil.
func Progress(s *models.Session) []ProgressEntry {
	if s.Phase != models.PhaseQuestion && s.Phase != models.PhaseVoting {
		return nil
	}
	out := make([]ProgressEntry, 0, len(s.Players))
	for _, name := range slices.Sorted(maps.Keys(s.Players)) {
		entry := ProgressEntry{
			Player:  name,
			Emoji:   s.Players[name].Emoji,
			Guesses: s.GuessesUsed(name),
		}
		if s.Phase == models.PhaseQuestion {
			entry.Done = FullyAnswered(s, name)
		} else {
			_, entry.Done = s.Votes[name]
		}
		out = append(out, entry)
	}
	return out
}

// ResultEntry is one ballot option with who wrote it and who fell for it.
type ResultEntry struct {
	Text    string   `json:"text"`
	Correct bool     `json:"correct"`
	Authors []string `json:"authors,omitempty"`
	Voters  []string `json:"voters,omitempty"`
	Votes   int      `json:"votes"`
}

// Results builds the results table: the correct answer first, then every unique
// decoy in ballot order.
func Results(s *models.Session) []ResultEntry {
	answers := SortedAnswers(s.Answers)
	out := make([]ResultEntry, 0, len(answers)+1)
	if s.CorrectAnswer != "" {
		voters := VotersForAnswer(s.CorrectAnswer, s.Votes)
		out = append(out, ResultEntry{
			Text:    s.CorrectAnswer,
			Correct: true,
			Voters:  voters,
			Votes:   len(voters),
		})
	}
	for _, a := range UniqueAnswers(answers) {
		voters := VotersForAnswer(a.Answer, s.Votes)
		out = append(out, ResultEntry{
			Text:    a.Answer,
			Authors: PlayersForAnswer(a.Answer, answers),
			Voters:  voters,
			Votes:   len(voters),
		})
	}
	return out
}

// Ranking is one row of the leaderboard.
type Ranking struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	Score    int    `json:"score"`
}

// Rankings orders players by score, highest first, ties broken by name. Tied
// players share a position.
func Rankings(s *models.Session) []Ranking {
	players := slices.Collect(maps.Values(s.Players))
	slices.SortFunc(players, func(a, b models.Player) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	out := make([]Ranking, 0, len(players))
	for i, p := range players {
		pos := i + 1
		if i > 0 && players[i-1].Score == p.Score {
			pos = out[i-1].Position
		}
		out = append(out, Ranking{Position: pos, Name: p.Name, Emoji: p.Emoji, Score: p.Score})
	}
	return out
}
