package entities

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps every validation failure reported by Validate.
var ErrInvalid = errors.New("invalid entity")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the struct tags of a catalog entity.
func Validate(r Record) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, r.Kind(), err)
	}
	return nil
}
