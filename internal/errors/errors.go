// Package errors provides structured error types for taskvault.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for taskvault.
const (
	// Repository errors
	CodeNotFound              Code = "NOT_FOUND"
	CodeCapabilityUnsupported Code = "CAPABILITY_UNSUPPORTED"
	CodeBackendUnavailable    Code = "BACKEND_UNAVAILABLE"

	// Embedding errors
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeDimensionMismatch   Code = "DIMENSION_MISMATCH"
	CodeVectorIndexMissing  Code = "VECTOR_INDEX_MISSING"

	// Migration errors
	CodeCountMismatch   Code = "COUNT_MISMATCH"
	CodeMigrationLocked Code = "MIGRATION_LOCKED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNotFound:              CategoryNotFound,
	CodeCapabilityUnsupported: CategoryBadRequest,
	CodeBackendUnavailable:    CategoryUnavailable,
	CodeProviderUnavailable:   CategoryUnavailable,
	CodeRateLimited:           CategoryUnavailable,
	CodeDimensionMismatch:     CategoryBadRequest,
	CodeVectorIndexMissing:    CategoryInternal,
	CodeCountMismatch:         CategoryConflict,
	CodeMigrationLocked:       CategoryConflict,
	CodeConfigInvalid:         CategoryBadRequest,
	CodeConfigMissing:         CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// VaultError is the structured error type for taskvault.
type VaultError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *VaultError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *VaultError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *VaultError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *VaultError) MarshalJSON() ([]byte, error) {
	type alias VaultError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a VaultError with the same code.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *VaultError) WithCause(err error) *VaultError {
	return &VaultError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNotFound returns an error for an absent entity.
func ErrNotFound(entity, id string) *VaultError {
	return &VaultError{
		Code: CodeNotFound,
		What: fmt.Sprintf("%s %s not found", entity, id),
		Why:  "No record with this ID exists in the project's active backend",
	}
}

// ErrCapabilityUnsupported returns an error when the current backend
// cannot serve the requested operation.
func ErrCapabilityUnsupported(op, backend string) *VaultError {
	return &VaultError{
		Code: CodeCapabilityUnsupported,
		What: fmt.Sprintf("%s is not supported by the %s backend", op, backend),
		Why:  "The project's active storage backend lacks this capability",
		Fix:  "Migrate the project to cloud storage with 'taskvault migrate run', or branch on SupportsVectorSearch()",
	}
}

// ErrBackendUnavailable returns an error when cloud mode is selected but
// no connection was established at startup.
func ErrBackendUnavailable(projectID string) *VaultError {
	return &VaultError{
		Code: CodeBackendUnavailable,
		What: fmt.Sprintf("project %s is in cloud mode but the document store is not connected", projectID),
		Why:  "The connection manager never connected, either because TASKVAULT_MONGO_URI is unset or the initial connect failed",
		Fix:  "Set the Mongo connection string and restart, or migrate the project back to local mode",
	}
}

// ErrProviderUnavailable returns an error when the embedding provider
// cannot serve a request.
func ErrProviderUnavailable(provider string) *VaultError {
	return &VaultError{
		Code: CodeProviderUnavailable,
		What: fmt.Sprintf("embedding provider %s is unavailable", provider),
		Why:  "No API key is configured, or the provider request failed",
		Fix:  "Set TASKVAULT_OPENAI_API_KEY to enable embeddings; writes proceed without vectors until then",
	}
}

// ErrRateLimited returns an error when the embedding provider throttled
// the request.
func ErrRateLimited(provider string) *VaultError {
	return &VaultError{
		Code: CodeRateLimited,
		What: fmt.Sprintf("embedding provider %s rate limited the request", provider),
		Fix:  "Retry later; the record was written without a vector",
	}
}

// ErrDimensionMismatch returns an error when a vector's length does not
// match the collection's established dimensionality.
func ErrDimensionMismatch(got, want int) *VaultError {
	return &VaultError{
		Code: CodeDimensionMismatch,
		What: fmt.Sprintf("embedding has %d dimensions, collection expects %d", got, want),
		Why:  "Mixed dimensionalities silently corrupt similarity search",
		Fix:  "Check the embedding provider configuration; this is a data-integrity bug",
	}
}

// ErrVectorIndexMissing returns an error when the operator-managed Atlas
// vector index does not exist.
func ErrVectorIndexMissing(index string) *VaultError {
	return &VaultError{
		Code: CodeVectorIndexMissing,
		What: fmt.Sprintf("vector search index %q does not exist", index),
		Why:  "The Atlas vector index is an operator-managed artifact and was not provisioned",
		Fix:  "Create the index (path: embedding, similarity: cosine) in the Atlas UI or API, then retry",
	}
}

// ErrCountMismatch returns an error when migration verification fails.
func ErrCountMismatch(family string, source, target int) *VaultError {
	return &VaultError{
		Code: CodeCountMismatch,
		What: fmt.Sprintf("%s count mismatch after copy: source=%d target=%d", family, source, target),
		Why:  "Verification failed, so the storage-mode cutover was not performed",
		Fix:  "Inspect the per-record failures in the log and re-run the migration; already-copied records are skipped",
	}
}

// ErrMigrationLocked returns an error when another migration holds the
// per-project lock.
func ErrMigrationLocked(projectID, owner string) *VaultError {
	return &VaultError{
		Code: CodeMigrationLocked,
		What: fmt.Sprintf("a migration for project %s is already running", projectID),
		Why:  fmt.Sprintf("Lock is held by %s", owner),
		Fix:  "Wait for the running migration to finish, or remove the stale lock file if the process died",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *VaultError {
	return &VaultError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check ~/.taskvault/config.yaml and fix the invalid field",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *VaultError {
	return &VaultError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
		Why:  "This field is required but not set in configuration",
		Fix:  fmt.Sprintf("Add '%s' to ~/.taskvault/config.yaml or set the matching TASKVAULT_* variable", field),
	}
}

// AsVaultError attempts to convert an error to a VaultError.
// Returns nil if the error is not a VaultError.
func AsVaultError(err error) *VaultError {
	var verr *VaultError
	if As(err, &verr) {
		return verr
	}
	return nil
}

// HasCode reports whether err is a VaultError carrying the given code.
func HasCode(err error, code Code) bool {
	verr := AsVaultError(err)
	return verr != nil && verr.Code == code
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if verr, ok := err.(*VaultError); ok {
		if t, ok := target.(**VaultError); ok {
			*t = verr
			return true
		}
	}
	// Check unwrapped error
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a VaultError with unknown code.
func Wrap(err error, what string) *VaultError {
	return &VaultError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
