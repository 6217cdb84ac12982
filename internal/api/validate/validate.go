package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/baharkarakas/ledger-backend/internal/models"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// Errs collects field failures. It is a models.ErrValidation.
type Errs []ErrField

func (e Errs) Error() string {
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

func (e Errs) Unwrap() error { return models.ErrValidation }

var (
	instance *validator.Validate
	once     sync.Once
	errInit  error
)

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	// account_id accepts every form uuid.Parse does; callers canonicalize.
	if err := v.RegisterValidation("account_id", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := uuid.Parse(s)
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("register account_id: %w", err)
	}
	return v, nil
}

func get() (*validator.Validate, error) {
	once.Do(func() { instance, errInit = newValidator() })
	return instance, errInit
}

// Struct checks the validate tags of payload and reports every failing field
// as Errs.
func Struct(payload any) error {
	v, err := get()
	if err != nil {
		return err
	}
	err = v.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make(Errs, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ErrField{Field: fe.Field(), Msg: message(fe)})
	}
	return errs
}

var messages = map[string]func(param string) string{
	"required":   func(string) string { return "required" },
	"email":      func(string) string { return "must be an email address" },
	"min":        func(p string) string { return "must be at least " + p + " characters" },
	"max":        func(p string) string { return "must be at most " + p + " characters" },
	"account_id": func(string) string { return "must be an account id" },
}

func message(fe validator.FieldError) string {
	if f, ok := messages[fe.Tag()]; ok {
		return f(fe.Param())
	}
	return "failed " + fe.Tag()
}
