package courier

import (
	"errors"
	"fmt"
)

// Predefined sentinel errors for construction failures.
var (
	// ErrInvalidConfiguration indicates an empty or malformed backend spec.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownGroup indicates a named group the configuration source does
	// not define.
	ErrUnknownGroup = errors.New("configuration group is undefined")

	// ErrUnknownDriver indicates a driver id the registry cannot resolve.
	ErrUnknownDriver = errors.New("unknown driver")

	// ErrContractViolation indicates a driver that does not implement the
	// required capability set.
	ErrContractViolation = errors.New("driver does not implement contract")

	// ErrTemplateNotFound indicates a requested template was not found.
	ErrTemplateNotFound = errors.New("template not found")
)

// ContractError is returned when a registered factory produces a value that
// does not satisfy the capability contract.
type ContractError struct {
	// Driver is the driver id from the backend spec.
	Driver string

	// Contract is the name of the interface that was expected.
	Contract string

	// Type is the dynamic type of the value produced by the factory.
	Type string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("cannot cast to interface: driver %q (%s) does not implement %s", e.Driver, e.Type, e.Contract)
}

// Is implements error matching for errors.Is.
func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// TemplateError represents an error in template processing.
type TemplateError struct {
	// Template is the name of the template that caused the error.
	Template string

	// Operation is the operation that failed (e.g., "parse", "render").
	Operation string

	// Message is the error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error in %s during %s: %s", e.Template, e.Operation, e.Message)
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// NewTemplateError creates a new template error.
func NewTemplateError(template, operation, message string, cause error) *TemplateError {
	return &TemplateError{
		Template:  template,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

func groupError(section, group string) error {
	return fmt.Errorf("cannot load configuration group %s.%s: %w", section, group, ErrUnknownGroup)
}
