package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

// Validator validates request structs and renders failures as per-field messages.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Validator)

// WithClock replaces the clock used by the future and past_date rules.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]validator.Func{
		"notblank":  notBlank,
		"timestamp": isTimestamp,
		"date":      isDate,
		"future":    v.isFuture,
		"past_date": v.isPastDate,
	}
	for tag, fn := range rules {
		if err := v.validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s rule: %v", tag, err))
		}
	}

	return v
}

// Now returns the current instant according to the validator's clock.
func (v *Validator) Now() time.Time {
	return v.now()
}

// Validate returns nil when obj passes, otherwise the failed rules keyed by json field name.
func (v *Validator) Validate(obj interface{}) apperrors.Fields {
	err := v.validate.Struct(obj)
	if err == nil {
		return nil
	}

	fields := apperrors.Fields{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields.Add("request", err.Error())
		return fields
	}

	for _, fe := range verrs {
		fields.Add(fe.Field(), message(fe))
	}
	return fields
}

func message(fe validator.FieldError) string {
	name := strings.ReplaceAll(fe.Field(), "_", " ")

	switch fe.Tag() {
	case "notblank", "required":
		return fmt.Sprintf("The %s field is required.", name)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", name, fe.Param())
	case "uuid", "oneof":
		return fmt.Sprintf("The selected %s is invalid.", name)
	case "timestamp", "date":
		return fmt.Sprintf("The %s field must be a valid date.", name)
	case "future":
		return fmt.Sprintf("The %s field must be a date after now.", name)
	case "past_date":
		return fmt.Sprintf("The %s field must be a date before today.", name)
	default:
		return fmt.Sprintf("The %s field is invalid.", name)
	}
}

func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return !field.IsZero()
	}
	return strings.TrimSpace(field.String()) != ""
}

func isTimestamp(fl validator.FieldLevel) bool {
	_, err := ParseTimestamp(fl.Field().String())
	return err == nil
}

func isDate(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String())
	return err == nil
}

func (v *Validator) isFuture(fl validator.FieldLevel) bool {
	t, err := ParseTimestamp(fl.Field().String())
	if err != nil {
		return false
	}
	return t.After(v.now())
}

func (v *Validator) isPastDate(fl validator.FieldLevel) bool {
	d, err := ParseDate(fl.Field().String())
	if err != nil {
		return false
	}
	now := v.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return d.Before(today)
}
