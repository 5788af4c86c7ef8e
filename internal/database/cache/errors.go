package cache

import (
	"errors"
	"fmt"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

var (
	// ErrNotFound is returned by Get when no active row has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrBookOnLoan rejects a new loan for a book that is already lent out.
	ErrBookOnLoan = errors.New("book already has an open loan")
)

// ReferentialIntegrityError reports a reference to a row missing from the
// local cache.
type ReferentialIntegrityError struct {
	Kind  entities.Kind
	Field string
	ID    uint
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s.%s: referenced id %d does not exist locally", e.Kind, e.Field, e.ID)
}

// IsRejected reports whether err is a rule violation by the caller's input
// rather than a failure of the store itself.
func IsRejected(err error) bool {
	var ref *ReferentialIntegrityError
	return errors.Is(err, entities.ErrInvalid) ||
		errors.Is(err, ErrBookOnLoan) ||
		errors.Is(err, ErrNotFound) ||
		errors.As(err, &ref)
}
