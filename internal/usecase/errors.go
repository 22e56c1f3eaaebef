package usecase

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// ValidationError reports a use case input that cannot be processed.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InputError groups the ValidationErrors found in one input.
type InputError struct {
	Errors []ValidationError
}

func (e *InputError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		parts[i] = v.Error()
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}

// fromValidation converts ozzo-validation errors into an InputError with a stable order.
func fromValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &InputError{}
	for _, k := range keys {
		out.Errors = append(out.Errors, ValidationError{Field: k, Message: verrs[k].Error()})
	}
	return out
}

// classify returns the error type stored on a failed lead for err.
func classify(err error) string {
	var authErr *entity.AuthError
	if errors.As(err, &authErr) {
		return entity.ErrorTypeAuth
	}
	return entity.ErrorTypeTransport
}
