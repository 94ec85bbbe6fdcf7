package session

import (
	"maps"
	"slices"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

const (
	correctVotePoints = 2
	fooledVotePoints  = 1
)

// ScoreResult is the outcome of one scoring pass.
type ScoreResult struct {
	Players map[string]models.Player
	Deltas  map[string]int
}

// ComputeScores awards points for the votes of the current round. A vote that is
// exactly the correct answer earns the voter two points. Any other vote earns one
// point for every answer record, by someone other than the voter, whose normalized
// text matches it. A player who submitted the same decoy twice is credited twice.
//
// It must run once per round; callers guard it with the voting to results transition.
func ComputeScores(s *models.Session) ScoreResult {
	result := ScoreResult{
		Players: make(map[string]models.Player, len(s.Players)),
		Deltas:  make(map[string]int),
	}
	for name, p := range s.Players {
		result.Players[name] = p
	}

	answers := SortedAnswers(s.Answers)
	for _, voter := range slices.Sorted(maps.Keys(s.Votes)) {
		vote := s.Votes[voter]
		if vote == s.CorrectAnswer && s.CorrectAnswer != "" {
			result.award(voter, correctVotePoints)
			continue
		}
		normalizedVote := Normalize(vote)
		for _, a := range answers {
			if a.Player == voter || Normalize(a.Answer) != normalizedVote {
				continue
			}
			result.award(a.Player, fooledVotePoints)
		}
	}
	return result
}

func (r ScoreResult) award(name string, points int) {
	p, ok := r.Players[name]
	if !ok {
		return
	}
	p.Score += points
	r.Players[name] = p
	r.Deltas[name] += points
}
