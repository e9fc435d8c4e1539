// Package errors provides the error taxonomy for model synchronization.
// It extends Go's standard error handling with structured error codes,
// operation context and root-cause unwrapping for reporting.
package errors

// ErrorCode represents a specific failure condition in a synchronization run.
// Error codes are string-based for debuggability and natural log output.
type ErrorCode string

const (
	// Serialization errors.

	// CodeSerialization indicates the model could not be exported to or
	// imported from its file representation.
	CodeSerialization ErrorCode = "SERIALIZATION_FAILED"

	// Merge errors.

	// CodeConflictInit indicates a merge conflict could not be staged in the
	// working copy. The working copy has been reset to its local state.
	CodeConflictInit ErrorCode = "CONFLICT_INIT_FAILED"

	// CodeCancelled indicates the operation was cancelled by the user or
	// through its context.
	CodeCancelled ErrorCode = "CANCELLED"

	// Network errors.

	// CodeTransport indicates a network failure during fetch, pull or push.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeRefNotAdvertised indicates the remote does not advertise an expected
	// reference. It is absorbed by the synchronization process.
	CodeRefNotAdvertised ErrorCode = "REF_NOT_ADVERTISED"

	// CodePushRejected indicates one or more remote reference updates were
	// rejected during push.
	CodePushRejected ErrorCode = "PUSH_REJECTED"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates the application configuration is invalid.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// String returns the string representation of the ErrorCode.
func (c ErrorCode) String() string {
	return string(c)
}
