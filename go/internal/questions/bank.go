package questions

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

// ErrEmptyBank is returned when a question is requested from an empty bank.
var ErrEmptyBank = errors.New("question bank is empty")

// Bank holds questions and their answers as parallel lists.
type Bank struct {
	Questions []string
	Answers   []string
}

// NewBank builds a bank from question/answer pairs.
func NewBank(qs []models.Question) *Bank {
	b := &Bank{
		Questions: make([]string, 0, len(qs)),
		Answers:   make([]string, 0, len(qs)),
	}
	for _, q := range qs {
		b.Questions = append(b.Questions, q.Text)
		b.Answers = append(b.Answers, q.Answer)
	}
	return b
}

// Validate checks that the lists line up and hold no blank entries.
func (b *Bank) Validate() error {
	if len(b.Questions) != len(b.Answers) {
		return fmt.Errorf("question bank has %d questions but %d answers", len(b.Questions), len(b.Answers))
	}
	for i := range b.Questions {
		if strings.TrimSpace(b.Questions[i]) == "" {
			return fmt.Errorf("question %d is blank", i)
		}
		if strings.TrimSpace(b.Answers[i]) == "" {
			return fmt.Errorf("answer to question %d is blank", i)
		}
	}
	return nil
}

// Len returns the number of usable questions.
func (b *Bank) Len() int {
	if b == nil {
		return 0
	}
	return min(len(b.Questions), len(b.Answers))
}

// At returns question i.
func (b *Bank) At(i int) models.Question {
	return models.Question{Text: b.Questions[i], Answer: b.Answers[i]}
}

// All returns every question as a pair.
func (b *Bank) All() []models.Question {
	out := make([]models.Question, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		out = append(out, b.At(i))
	}
	return out
}

// Pick selects a question uniformly at random.
func (b *Bank) Pick(rng *rand.Rand) (models.Question, error) {
	n := b.Len()
	if n == 0 {
		return models.Question{}, ErrEmptyBank
	}
	return b.At(rng.IntN(n)), nil
}
