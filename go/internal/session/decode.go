package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

// ErrCorruptDocument is returned for documents that are not a valid session.
var ErrCorruptDocument = errors.New("corrupt session document")

// Decode parses a session document. A nil document means the session is gone.
func Decode(data []byte) (*models.Session, error) {
	if data == nil {
		return nil, ErrNotFound
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	if !s.Phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", ErrCorruptDocument, s.Phase)
	}
	if s.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrCorruptDocument)
	}
	return &s, nil
}
