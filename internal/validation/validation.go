// Package validation registers the custom binding tags used by request structs.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)
	once         sync.Once
	registerErr  error
)

// ValidPhone reports whether s is 10 to 15 digits.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// ValidEmail applies the same "email" rule as the binding tag.
func ValidEmail(s string) bool {
	return engine().Var(s, "required,email") == nil
}

var fallback = validator.New()

// engine returns gin's validator so services and bindings share one rule set.
func engine() *validator.Validate {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		return v
	}
	return fallback
}

// Register installs the "clock" (HH:MM), "date" (YYYY-MM-DD) and "phone" tags on gin's validator.
// It is safe to call more than once.
func Register() error {
	once.Do(func() {
		v := engine()
		if registerErr = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			return models.ValidClock(fl.Field().String())
		}); registerErr != nil {
			return
		}
		if registerErr = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := models.ParseDate(fl.Field().String())
			return err == nil
		}); registerErr != nil {
			return
		}
		registerErr = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return ValidPhone(fl.Field().String())
		})
	})
	return registerErr
}

// Fields lists the JSON names of the fields that failed binding validation, if err came from the validator.
func Fields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, lowerFirst(fe.Field()))
	}
	return fields
}

// BindError converts a request binding failure into a Validation error naming the offending fields.
func BindError(err error) error {
	if fields := Fields(err); len(fields) > 0 {
		return apperr.Validation("invalid or missing fields: "+strings.Join(fields, ", "), fields...)
	}
	return apperr.Validation("invalid request body")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
