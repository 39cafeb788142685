package functions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

	// pipRequirementPattern accepts a package name with optional extras and
	// comma separated version specifiers, e.g. "requests[socks]>=2.31,<3".
	pipRequirementPattern = regexp.MustCompile(`^[a-zA-Z0-9._\[\]-]+(?:[<>=!~]=?[a-zA-Z0-9._\[\]-]+)*(?:,[<>=!~]=?[a-zA-Z0-9._\[\]-]+)*$`)
)

// ValidateName checks a function name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrValidation)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q must match %s", ErrValidation, name, namePattern)
	}
	return nil
}

// ValidateDeps checks that deps is non-empty and that every entry is a
// pip requirement.
func ValidateDeps(deps []string) error {
	if len(deps) == 0 {
		return fmt.Errorf("%w: dependencies list cannot be empty", ErrValidation)
	}
	var invalid []string
	for _, d := range deps {
		if !pipRequirementPattern.MatchString(strings.TrimSpace(d)) {
			invalid = append(invalid, d)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid pip requirements: %s", ErrValidation, strings.Join(invalid, ", "))
	}
	return nil
}

// ValidateCode checks that code is non-blank and defines run().
func ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: code cannot be blank", ErrValidation)
	}
	if !strings.Contains(code, "def run") {
		return fmt.Errorf("%w: code must define a run function", ErrValidation)
	}
	return nil
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return fmt.Errorf("%w: description cannot be blank", ErrValidation)
	}
	return nil
}

// Validate checks all fields of a function to be created. All failures
// are reported together.
func (f Function) Validate() error {
	return errors.Join(
		ValidateName(f.Name),
		ValidateDeps(f.Deps),
		ValidateCode(f.Code),
		validateDescription(f.Description),
	)
}

// Validate checks only the fields present in the update.
func (u Update) Validate() error {
	var errs []error
	if u.Deps != nil {
		errs = append(errs, ValidateDeps(u.Deps))
	}
	if u.Code != nil {
		errs = append(errs, ValidateCode(*u.Code))
	}
	if u.Description != nil {
		errs = append(errs, validateDescription(*u.Description))
	}
	return errors.Join(errs...)
}
