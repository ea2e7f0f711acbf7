package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func v() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs tag validation and converts the first failure into a field error.
func ValidateStruct(s any) error {
	err := v().Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return fmt.Errorf("validate: %w", err)
	}
	fe := ves[0]
	return FieldError(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "eqfield":
		return "Passwords don't match"
	case "len":
		return fmt.Sprintf("%s must be %s characters", label, fe.Param())
	case "numeric":
		return label + " must contain only digits"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

// humanize turns "confirmPassword" into "Confirm password".
func humanize(field string) string {
	if field == "" {
		return "Value"
	}
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		if i == 0 && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DecodeStrict decodes one JSON object into dst, rejecting unknown fields.
// Only fields declared on dst are accepted.
func DecodeStrict(r io.Reader, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return Validation("Invalid request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Validation("Request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		const unknown = "json: unknown field "
		if msg := err.Error(); strings.HasPrefix(msg, unknown) {
			field := strings.Trim(strings.TrimPrefix(msg, unknown), `"`)
			return FieldError(field, fmt.Sprintf("Field %q is not allowed", field))
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return FieldError(typeErr.Field, fmt.Sprintf("%s has the wrong type", humanize(typeErr.Field)))
		}
		return Validation("Invalid JSON body")
	}
	if dec.More() {
		return Validation("Request body must contain a single JSON object")
	}
	return nil
}
