package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTimezone is applied when a create request omits the timezone.
const DefaultTimezone = "UTC"

var validate = validator.New()

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type CreateEventInput struct {
	TeamID      string    `json:"teamId" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"omitempty,max=10000"`
	Location    string    `json:"location" validate:"required,max=500"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required"`
	Timezone    string    `json:"timezone"`
}

// Validate checks field constraints plus the create-only rule that the end
// date must not precede the start date.
func (in CreateEventInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return firstFieldError(err)
	}
	if in.EndDate.Before(in.StartDate) {
		return ValidationError{Field: "endDate", Message: "must be on or after startDate"}
	}
	return nil
}

// UpdateEventInput is a partial patch: nil fields are left unchanged.
// Cross-field date ordering is deliberately not re-checked on update.
type UpdateEventInput struct {
	Title       *string    `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string    `json:"description" validate:"omitnil,max=10000"`
	Location    *string    `json:"location" validate:"omitnil,min=1,max=500"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Timezone    *string    `json:"timezone"`

	// ClientUpdatedAt is the optimistic-lock token: the updatedAt value the
	// client last read. When nil the update overwrites unconditionally.
	ClientUpdatedAt *time.Time `json:"clientUpdatedAt"`
}

func (in UpdateEventInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return firstFieldError(err)
	}
	return nil
}

func firstFieldError(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return ValidationError{Field: fe.Field(), Message: validationMessage(fe)}
	}
	return ValidationError{Message: err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
