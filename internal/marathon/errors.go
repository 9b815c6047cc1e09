package marathon

import (
	"errors"
	"fmt"
)

// Sentinel errors for the marathon package.
// Use errors.Is to check: errors.Is(err, marathon.ErrNotFound)
var (
	ErrInvalidInput = errors.New("marathon: invalid input")
	ErrNotFound     = errors.New("marathon: not found")
	ErrStorage      = errors.New("marathon: storage failure")

	ErrNoTopicsSelected     = fmt.Errorf("%w: no topics selected", ErrInvalidInput)
	ErrNoQuestionsAvailable = fmt.Errorf("%w: no questions available for the selected topics", ErrInvalidInput)
	ErrSessionNotActive     = fmt.Errorf("%w: session is not active", ErrInvalidInput)
	ErrSessionNotFound      = fmt.Errorf("%w: session", ErrNotFound)
	ErrConflict             = fmt.Errorf("%w: concurrent update", ErrStorage)
)

// classify passes through errors that already belong to the taxonomy and
// marks everything else as a storage failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
