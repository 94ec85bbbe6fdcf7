package session

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

func TestUniqueAnswers(t *testing.T) {
	got := UniqueAnswers([]models.Answer{
		{Answer: "Paris", Player: "ann"},
		{Answer: "paris ", Player: "bob"},
		{Answer: "London", Player: "cat"},
	})
	assert.Equal(t, []models.Answer{
		{Answer: "Paris", Player: "ann"},
		{Answer: "London", Player: "cat"},
	}, got)
}

func TestPlayersForAnswer(t *testing.T) {
	answers := []models.Answer{
		{Answer: "Paris", Player: "ann", AttemptNumber: 1},
		{Answer: "PARIS", Player: "ann", AttemptNumber: 2},
		{Answer: " paris", Player: "bob", AttemptNumber: 1},
		{Answer: "Lyon", Player: "cat", AttemptNumber: 1},
	}
	assert.Equal(t, []string{"ann", "bob"}, PlayersForAnswer("Paris", answers))
	assert.Nil(t, PlayersForAnswer("Nice", answers))
}

func TestVotersForAnswerIsExact(t *testing.T) {
	votes := map[string]string{"ann": "Paris", "bob": "paris", "cat": "Paris", "dan": "Lyon"}
	assert.Equal(t, []string{"ann", "cat"}, VotersForAnswer("Paris", votes))
}

func TestPlayersWhoAnswered(t *testing.T) {
	answers := map[string]models.Answer{
		"bob_1": {Answer: "x", Player: "bob"},
		"bob_2": {Answer: "y", Player: "bob"},
		"ann_1": {Answer: "z", Player: "ann"},
	}
	assert.Equal(t, []string{"ann", "bob"}, PlayersWhoAnswered(answers))
}

func TestBallot(t *testing.T) {
	answers := map[string]models.Answer{
		"ann_1": {Answer: "Sydney", Player: "ann", AttemptNumber: 1},
		"bob_1": {Answer: "sydney", Player: "bob", AttemptNumber: 1},
		"cat_1": {Answer: "Perth", Player: "cat", AttemptNumber: 1},
	}
	assert.Equal(t, []string{"Sydney", "Perth", "Canberra"}, BallotOptions(answers, "Canberra"))

	rng := rand.New(rand.NewPCG(11, 12))
	seenFirst := map[string]bool{}
	for i := 0; i < 100; i++ {
		b := Ballot(answers, "Canberra", rng)
		assert.ElementsMatch(t, []string{"Sydney", "Perth", "Canberra"}, b)
		seenFirst[b[0]] = true
	}
	assert.Greater(t, len(seenFirst), 1, "ballot order should vary between renders")
}

func TestFullyAnsweredAndAllVoted(t *testing.T) {
	s := &models.Session{
		Phase:            models.PhaseQuestion,
		MaxGuesses:       2,
		Players:          map[string]models.Player{"ann": {Name: "ann"}, "bob": {Name: "bob"}},
		PlayerGuessCount: map[string]int{"ann": 2, "bob": 1},
	}
	assert.True(t, FullyAnswered(s, "ann"))
	assert.False(t, FullyAnswered(s, "bob"))
	assert.False(t, AllFullyAnswered(s))

	s.PlayerGuessCount["bob"] = 2
	assert.True(t, AllFullyAnswered(s))

	s.Votes = map[string]string{"ann": "x"}
	assert.False(t, AllVoted(s))
	s.Votes["bob"] = "y"
	assert.True(t, AllVoted(s))

	assert.False(t, AllVoted(&models.Session{}))
	assert.False(t, AllFullyAnswered(&models.Session{}))
}

func TestProgress(t *testing.T) {
	s := &models.Session{
		Phase:            models.PhaseQuestion,
		MaxGuesses:       1,
		Players:          map[string]models.Player{"bob": {Name: "bob", Emoji: "🐸"}, "ann": {Name: "ann", Emoji: "🦊"}},
		PlayerGuessCount: map[string]int{"bob": 1},
	}
	want := []ProgressEntry{
		{Player: "ann", Emoji: "🦊", Done: false, Guesses: 0},
		{Player: "bob", Emoji: "🐸", Done: true, Guesses: 1},
	}
	if diff := cmp.Diff(want, Progress(s)); diff != "" {
		t.Errorf("question progress mismatch (-want +got):\n%s", diff)
	}

	s.Phase = models.PhaseVoting
	s.Votes = map[string]string{"ann": "x"}
	got := Progress(s)
	assert.True(t, got[0].Done)
	assert.False(t, got[1].Done)

	s.Phase = models.PhaseLobby
	assert.Nil(t, Progress(s))
}

func TestResults(t *testing.T) {
	s := &models.Session{
		CorrectAnswer: "Canberra",
		Answers: map[string]models.Answer{
			"ann_1": {Answer: "Sydney", Player: "ann", AttemptNumber: 1},
			"bob_1": {Answer: "sydney", Player: "bob", AttemptNumber: 1},
			"cat_1": {Answer: "Perth", Player: "cat", AttemptNumber: 1},
		},
		Votes: map[string]string{"ann": "Canberra", "cat": "Sydney", "dan": "Canberra"},
	}
	want := []ResultEntry{
		{Text: "Canberra", Correct: true, Voters: []string{"ann", "dan"}, Votes: 2},
		{Text: "Sydney", Authors: []string{"ann", "bob"}, Voters: []string{"cat"}, Votes: 1},
		{Text: "Perth", Authors: []string{"cat"}, Votes: 0},
	}
	if diff := cmp.Diff(want, Results(s)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRankings(t *testing.T) {
	s := &models.Session{Players: map[string]models.Player{
		"cat": {Name: "cat", Score: 3},
		"ann": {Name: "ann", Score: 5},
		"bob": {Name: "bob", Score: 3},
		"dan": {Name: "dan", Score: 0},
	}}
	want := []Ranking{
		{Position: 1, Name: "ann", Score: 5},
		{Position: 2, Name: "bob", Score: 3},
		{Position: 2, Name: "cat", Score: 3},
		{Position: 4, Name: "dan", Score: 0},
	}
	if diff := cmp.Diff(want, Rankings(s)); diff != "" {
		t.Errorf("rankings mismatch (-want +got):\n%s", diff)
	}
}

func TestCodes(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		assert.NoError(t, err)
		assert.True(t, ValidCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)

	assert.Equal(t, "AB12CD", NormalizeCode("  ab12cd "))
	assert.False(t, ValidCode("ab12cd"))
	assert.False(t, ValidCode("AB12C"))
}
