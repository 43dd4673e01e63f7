package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty is returned when the prompt is empty or whitespace-only.
var ErrEmpty = errors.New("enter text")

// ExtraCheck is an optional caller-supplied validation applied after the
// built-in checks. It returns an error to reject the value.
type ExtraCheck func(value string) error

// Validator tracks free-text prompt input and its submit-eligibility.
//
// Validation runs on every value change, but the error is only surfaced
// through Err after the field has been touched (first blur or a failed
// submit attempt). This keeps half-typed input from flashing errors.
type Validator struct {
	MinLength  int
	MaxLength  int
	TrimOnBlur bool
	Extra      ExtraCheck

	value   string
	touched bool
}

// New creates a Validator with the given length bounds and blur-trimming on.
func New(minLength, maxLength int) *Validator {
	return &Validator{
		MinLength:  minLength,
		MaxLength:  maxLength,
		TrimOnBlur: true,
	}
}

// Validate checks a value against the configured rules without mutating any
// state. It returns nil when the value is acceptable.
func (v *Validator) Validate(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmpty
	}
	if len([]rune(value)) < v.MinLength {
		return fmt.Errorf("minimum %d characters", v.MinLength)
	}
	if v.MaxLength > 0 && len([]rune(value)) > v.MaxLength {
		return fmt.Errorf("maximum %d characters", v.MaxLength)
	}
	if v.Extra != nil {
		if err := v.Extra(value); err != nil {
			return err
		}
	}
	return nil
}

// SetValue records a new value. Every change re-validates silently.
func (v *Validator) SetValue(value string) {
	v.value = value
}

// Value returns the current value.
func (v *Validator) Value() string {
	return v.value
}

// Blur marks the field as touched and applies the trim policy to the value.
func (v *Validator) Blur() {
	if v.TrimOnBlur {
		v.value = strings.TrimSpace(v.value)
	}
	v.touched = true
}

// Touched reports whether errors should be surfaced.
func (v *Validator) Touched() bool {
	return v.touched
}

// Err returns the validation error to display, or nil while the field is
// untouched.
func (v *Validator) Err() error {
	if !v.touched {
		return nil
	}
	return v.Validate(v.value)
}

// CanSubmit reports whether the current value passes validation.
func (v *Validator) CanSubmit() bool {
	return v.Validate(v.value) == nil
}

// Submit validates the current value for submission. A failed attempt marks
// the field as touched so the error becomes visible.
func (v *Validator) Submit() error {
	if err := v.Validate(v.value); err != nil {
		v.touched = true
		return err
	}
	return nil
}

// Reset clears the value and the touched state.
func (v *Validator) Reset() {
	v.value = ""
	v.touched = false
}
