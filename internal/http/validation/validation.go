// Package validation turns gin binding errors into per-field messages.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/shared/apperr"
)

type FieldErrors map[string]string

// FromBindError maps a bind error onto the json/form names of dst's fields.
func FromBindError(err error, dst any) FieldErrors {
	out := FieldErrors{}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fieldKey(dst, fe.StructField())] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}

	// malformed JSON, type mismatch
	out["_"] = "Request body is invalid."
	return out
}

// BindError wraps a bind failure as a 400.
func BindError(err error, dst any) *apperr.AppError {
	return apperr.InvalidErr("Please correct the highlighted fields.", FromBindError(err, dst))
}

func fieldKey(dst any, structField string) string {
	t := reflect.TypeOf(dst)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return strings.ToLower(structField)
	}
	f, ok := t.FieldByName(structField)
	if !ok {
		return strings.ToLower(structField)
	}
	for _, key := range []string{"json", "form"} {
		tag := f.Tag.Get(key)
		if i := strings.Index(tag, ","); i >= 0 {
			tag = tag[:i]
		}
		if tag != "" && tag != "-" {
			return tag
		}
	}
	return strings.ToLower(structField)
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "required"
	case "oneof":
		return "must be one of: " + param
	case "uuid", "uuid4":
		return "must be a UUID"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	default:
		return "invalid value"
	}
}
