// Package validation checks constructor input structs with struct tags.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates s and reports every violated field as one InvalidFormat
// error naming the entity.
func Struct(entity string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %s: %w", entity, err)
	}

	msgs := FormatErrors(verrs)
	fields := make([]string, 0, len(msgs))
	for f := range msgs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = msgs[f]
	}
	return storeerr.InvalidFormat(entity, "%s", strings.Join(parts, "; "))
}

// FormatErrors maps each failing field to a readable message.
func FormatErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out[field] = field + " is required"
		case "email":
			out[field] = field + " must be a valid email address"
		case "min":
			out[field] = field + " must be at least " + e.Param() + " characters"
		case "max":
			out[field] = field + " must be at most " + e.Param() + " characters"
		case "oneof":
			out[field] = field + " must be one of " + e.Param()
		case "uuid", "uuid4":
			out[field] = field + " must be a UUID"
		default:
			out[field] = field + " is invalid"
		}
	}
	return out
}
