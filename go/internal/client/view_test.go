package client

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

func TestBuildViewLobby(t *testing.T) {
	s := &models.Session{
		Host:  "host",
		Phase: models.PhaseLobby,
		Round: 1,
		Players: map[string]models.Player{
			"host": {Name: "host", Emoji: "🦊"},
		},
		MaxGuesses: 2,
	}
	rng := rand.New(rand.NewPCG(1, 2))

	want := View{
		Code:       "ABC123",
		Player:     "host",
		IsHost:     true,
		Phase:      models.PhaseLobby,
		Round:      1,
		Players:    []session.Ranking{{Position: 1, Name: "host", Emoji: "🦊"}},
		MaxGuesses: 2,
	}
	got := buildView("ABC123", "host", s, localState{}, nil, rng)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lobby view mismatch (-want +got):\n%s", diff)
	}

	s.Players["ann"] = models.Player{Name: "ann"}
	assert.True(t, buildView("ABC123", "host", s, localState{}, nil, rng).CanStartRound)
	assert.False(t, buildView("ABC123", "ann", s, localState{}, nil, rng).CanStartRound)
}

func TestBuildViewPreviewIsHostOnly(t *testing.T) {
	s := &models.Session{
		Host:    "host",
		Phase:   models.PhaseQuestionPreview,
		Round:   1,
		Players: map[string]models.Player{"host": {Name: "host"}, "ann": {Name: "ann"}},
	}
	preview := &models.Preview{Question: models.Question{Text: "2+2?", Answer: "4"}, HostOnly: true}
	rng := rand.New(rand.NewPCG(1, 2))

	hostView := buildView("ABC123", "host", s, localState{}, preview, rng)
	if assert.NotNil(t, hostView.Preview) {
		assert.Equal(t, "4", hostView.Preview.Question.Answer)
	}
	assert.Nil(t, buildView("ABC123", "ann", s, localState{}, preview, rng).Preview)

	s.Phase = models.PhaseQuestion
	assert.Nil(t, buildView("ABC123", "host", s, localState{}, preview, rng).Preview)
}

func TestBuildViewHidesAnswerUntilResults(t *testing.T) {
	s := &models.Session{
		Host:            "host",
		Phase:           models.PhaseVoting,
		Round:           1,
		Players:         map[string]models.Player{"host": {Name: "host"}, "ann": {Name: "ann"}},
		CurrentQuestion: "2+2?",
		CorrectAnswer:   "4",
		Answers: map[string]models.Answer{
			"ann_1": {Answer: "5", Player: "ann", AttemptNumber: 1},
		},
		Votes:      map[string]string{"ann": "4"},
		MaxGuesses: 1,
	}
	rng := rand.New(rand.NewPCG(1, 2))

	v := buildView("ABC123", "ann", s, localState{}, nil, rng)
	assert.Empty(t, v.CorrectAnswer)
	assert.Empty(t, v.Results)
	assert.ElementsMatch(t, []string{"4", "5"}, v.Ballot)
	assert.True(t, v.HasVoted)
	assert.Equal(t, "4", v.MyVote)

	v = buildView("ABC123", "host", s, localState{}, nil, rng)
	assert.False(t, v.HasVoted)

	s.Phase = models.PhaseResults
	v = buildView("ABC123", "host", s, localState{}, nil, rng)
	assert.Equal(t, "4", v.CorrectAnswer)
	assert.Empty(t, v.Ballot)
	if assert.Len(t, v.Results, 2) {
		assert.True(t, v.Results[0].Correct)
		assert.Equal(t, []string{"ann"}, v.Results[1].Authors)
	}
}

func TestBuildViewLocalFlags(t *testing.T) {
	s := &models.Session{
		Host:            "host",
		Phase:           models.PhaseQuestion,
		Round:           1,
		Players:         map[string]models.Player{"host": {Name: "host"}, "ann": {Name: "ann"}},
		CurrentQuestion: "2+2?",
		CorrectAnswer:   "4",
		MaxGuesses:      3,
	}
	rng := rand.New(rand.NewPCG(1, 2))

	v := buildView("ABC123", "ann", s, localState{questionKey: s.QuestionKey()}, nil, rng)
	assert.False(t, v.HasAnswered)
	assert.Equal(t, 3, v.GuessesLeft)

	v = buildView("ABC123", "ann", s, localState{questionKey: s.QuestionKey(), hasAnswered: true}, nil, rng)
	assert.True(t, v.HasAnswered)

	s.PlayerGuessCount = map[string]int{"ann": 2}
	v = buildView("ABC123", "ann", s, localState{}, nil, rng)
	assert.True(t, v.HasAnswered)
	assert.Equal(t, 1, v.GuessesLeft)
	assert.False(t, v.FullyAnswered)
	if assert.Len(t, v.Progress, 2) {
		assert.Equal(t, "ann", v.Progress[0].Player)
		assert.Equal(t, 2, v.Progress[0].Guesses)
	}
}
