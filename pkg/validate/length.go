// Package validate holds input checks applied at trust boundaries before any
// state is touched.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"

	dErrors "regdesk/pkg/domain-errors"
)

// LengthError reports a field whose length falls outside [Min, Max] runes.
type LengthError struct {
	Field string
	Min   int
	Max   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d characters", e.Field, e.Min, e.Max)
}

// Length trims value and checks its rune count against [min, max].
// When optional is true an empty (after trimming) value is accepted and
// returned as "". The returned error carries CodeValidation and unwraps to
// *LengthError.
func Length(value, field string, min, max int, optional bool) (string, error) {
	value = strings.TrimSpace(value)
	if optional && value == "" {
		return "", nil
	}
	if !govalidator.StringLength(value, strconv.Itoa(min), strconv.Itoa(max)) {
		lengthErr := &LengthError{Field: field, Min: min, Max: max}
		return "", dErrors.Wrap(lengthErr, dErrors.CodeValidation, lengthErr.Error())
	}
	return value, nil
}

// Optional turns an empty string into nil so absent optional fields persist
// as NULL.
func Optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
