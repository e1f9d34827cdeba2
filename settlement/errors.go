/*
errors.go - Centralized error types for the readjustment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error here is fatal for the computation: a partial settlement
  table would be financially misleading, so nothing is recovered or retried.

ERROR CATEGORIES:
  1. Input errors - unordered years, invalid observations
  2. Reference data errors - missing or inconsistent index rows
  3. Configuration errors - method needs data the observation lacks
  4. Store errors - cases and runs that do not exist

USAGE:
  var missing *settlement.MissingIndexDataError
  if errors.As(err, &missing) {
      log.Printf("no index row for %d", missing.Year)
  }
  if settlement.IsClientError(err) {
      // 422 to the caller
  }

SEE ALSO:
  - engine.go: Produces these errors during validation
  - api/handlers.go: Maps them to HTTP status codes
*/
package settlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnorderedInput is returned when observations are not strictly
	// ascending by year (descending pairs or duplicate years).
	ErrUnorderedInput = errors.New("observations not in strictly ascending year order")

	// ErrMissingIndexData is returned when an observation year has no
	// statutory index row.
	ErrMissingIndexData = errors.New("missing statutory index data")

	// ErrInvalidMethodConfiguration is returned when a method that needs the
	// social-security portion receives an observation without it.
	ErrInvalidMethodConfiguration = errors.New("invalid method configuration")

	// ErrInvalidObservation is returned for malformed observations
	// (non-positive installments, negative amounts).
	ErrInvalidObservation = errors.New("invalid payment observation")

	// ErrUnknownMethod is returned when a method name is not recognized.
	ErrUnknownMethod = errors.New("unknown legal method")

	// ErrInvalidOptions is returned for unknown seed or rounding policies.
	ErrInvalidOptions = errors.New("invalid computation options")

	// ErrInconsistentIndexRow is returned when a row's FiveTimesMinimumWage
	// differs from MinimumWageMonthly * 5.
	ErrInconsistentIndexRow = errors.New("inconsistent statutory index row")

	// ErrIndexGap is returned when index rows are not contiguous years.
	ErrIndexGap = errors.New("statutory index years not contiguous")

	// ErrCaseNotFound is returned when a referenced case doesn't exist.
	ErrCaseNotFound = errors.New("case not found")

	// ErrRunNotFound is returned when a referenced settlement run doesn't exist.
	ErrRunNotFound = errors.New("settlement run not found")

	// ErrDuplicateRun is returned when a run ID is reused. Runs are append-only.
	ErrDuplicateRun = errors.New("settlement run already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnorderedInputError names the first pair of observations out of order.
type UnorderedInputError struct {
	Index        int // position of the offending observation
	Year         int
	PreviousYear int
}

func (e *UnorderedInputError) Error() string {
	if e.Year == e.PreviousYear {
		return fmt.Sprintf("duplicate observation year %d at position %d", e.Year, e.Index)
	}
	return fmt.Sprintf("observation year %d at position %d follows year %d", e.Year, e.Index, e.PreviousYear)
}

func (e *UnorderedInputError) Unwrap() error {
	return ErrUnorderedInput
}

// MissingIndexDataError names the year with no statutory row.
type MissingIndexDataError struct {
	Year int
}

func (e *MissingIndexDataError) Error() string {
	return fmt.Sprintf("no statutory index row for year %d", e.Year)
}

func (e *MissingIndexDataError) Unwrap() error {
	return ErrMissingIndexData
}

// InvalidMethodConfigurationError names the year and method that could not
// be computed because the social-security portion is absent.
type InvalidMethodConfigurationError struct {
	Year   int
	Method MethodName
}

func (e *InvalidMethodConfigurationError) Error() string {
	return fmt.Sprintf("method %s requires mesada_from_social_security for year %d", e.Method, e.Year)
}

func (e *InvalidMethodConfigurationError) Unwrap() error {
	return ErrInvalidMethodConfiguration
}

// InvalidObservationError names the field that failed validation.
type InvalidObservationError struct {
	Year   int
	Field  string
	Reason string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("observation %d: %s %s", e.Year, e.Field, e.Reason)
}

func (e *InvalidObservationError) Unwrap() error {
	return ErrInvalidObservation
}

// IndexRowError names the statutory row that failed validation.
type IndexRowError struct {
	Year   int
	Reason string
	Err    error
}

func (e *IndexRowError) Error() string {
	return fmt.Sprintf("statutory index row %d: %s", e.Year, e.Reason)
}

func (e *IndexRowError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnorderedInput) ||
		errors.Is(err, ErrMissingIndexData) ||
		errors.Is(err, ErrInvalidMethodConfiguration) ||
		errors.Is(err, ErrInvalidObservation) ||
		errors.Is(err, ErrUnknownMethod) ||
		errors.Is(err, ErrInvalidOptions) ||
		errors.Is(err, ErrInconsistentIndexRow) ||
		errors.Is(err, ErrIndexGap)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCaseNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// Code returns a stable machine-readable code for API responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnorderedInput):
		return "unordered_input"
	case errors.Is(err, ErrMissingIndexData):
		return "missing_index_data"
	case errors.Is(err, ErrInvalidMethodConfiguration):
		return "invalid_method_configuration"
	case errors.Is(err, ErrInvalidObservation):
		return "invalid_observation"
	case errors.Is(err, ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, ErrInvalidOptions):
		return "invalid_options"
	case errors.Is(err, ErrInconsistentIndexRow):
		return "inconsistent_index_row"
	case errors.Is(err, ErrIndexGap):
		return "index_gap"
	case errors.Is(err, ErrCaseNotFound):
		return "case_not_found"
	case errors.Is(err, ErrRunNotFound):
		return "run_not_found"
	case errors.Is(err, ErrDuplicateRun):
		return "duplicate_run"
	default:
		return ""
	}
}
