package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid marks a definition that failed validation.
var ErrInvalid = errors.New("invalid pipeline definition")

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validateInst = v
	})
	return validateInst
}

// Validate checks a definition. All problems are reported in one error that
// wraps ErrInvalid.
func Validate(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalid)
	}

	var problems []string
	if err := validatorInstance().Struct(def); err != nil {
		problems = append(problems, flatten(err)...)
	}
	problems = append(problems, checkNesting(def.Operations, "operations")...)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func flatten(err error) []string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ves))
	for _, fe := range ves {
		out = append(out, fmt.Sprintf("%s failed validation for tag '%s'", fieldPath(fe), fe.Tag()))
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func checkNesting(refs []OperationRef, path string) []string {
	var problems []string
	for i, ref := range refs {
		at := fmt.Sprintf("%s[%d]", path, i)
		if ref.Type != ScopeType && len(ref.Operations) > 0 {
			problems = append(problems, fmt.Sprintf("%s: only %s operations may nest operations", at, ScopeType))
		}
		problems = append(problems, checkNesting(ref.Operations, at+".operations")...)
	}
	return problems
}
