package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// validate checks request structs. Field names in errors come from the json
// tag so they match what the client sent.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads one JSON object into dst and validates it. Unknown fields
// are rejected so typos surface as 400s instead of being ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", "request body is too large")
		default:
			return apperror.ValidationFailed("", "invalid JSON body")
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("", "request body must contain a single JSON object")
	}
	return validateStruct(dst)
}

// validateStruct turns the first validator failure into a field-level
// ValidationFailed.
func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating request: %w", err)
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "alphanum":
		return fe.Field() + " must contain only letters and digits"
	default:
		return fe.Field() + " is invalid"
	}
}

// principal returns the caller's identity, or the zero (anonymous) Principal.
func principal(r *http.Request) model.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// queryInt reads a non-negative integer query parameter, falling back to 0.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(key, key+" must be a non-negative integer")
	}
	return n, nil
}
