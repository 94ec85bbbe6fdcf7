package session

import (
	"fmt"
	"slices"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

var allowedTransitions = map[models.Phase][]models.Phase{
	models.PhaseLobby:           {models.PhaseQuestionPreview},
	models.PhaseQuestionPreview: {models.PhaseQuestion},
	models.PhaseQuestion:        {models.PhaseVoting},
	models.PhaseVoting:          {models.PhaseResults},
	models.PhaseResults:         {models.PhaseManualScoring, models.PhaseRankings},
	models.PhaseManualScoring:   {models.PhaseRankings},
	models.PhaseRankings:        {models.PhaseQuestionPreview, models.PhaseEnded},
	models.PhaseEnded:           {}, // No transitions allowed once ended
}

// validatePhaseTransition checks a phase change against the round lifecycle.
func validatePhaseTransition(current, next models.Phase) error {
	allowedNext, exists := allowedTransitions[current]
	if !exists {
		return fmt.Errorf("%w: unknown current phase %q", ErrPrecondition, current)
	}
	if !slices.Contains(allowedNext, next) {
		return fmt.Errorf("%w: transition from %s to %s is not allowed", ErrPrecondition, current, next)
	}
	return nil
}

// requirePhase fails unless the session is in one of the given phases.
func requirePhase(s *models.Session, phases ...models.Phase) error {
	if slices.Contains(phases, s.Phase) {
		return nil
	}
	return fmt.Errorf("%w: not allowed in phase %s", ErrPrecondition, s.Phase)
}

// CanTransition reports whether the lifecycle allows moving from current to next.
func CanTransition(current, next models.Phase) bool {
	return validatePhaseTransition(current, next) == nil
}
