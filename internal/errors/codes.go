package errors

// Error codes for the contractc backend
// These codes are used in diagnostics and documentation
// to provide consistent error identification across the toolchain.
//
// Error code ranges:
// E0401-E0404: Contract-specific errors
// E0405-E0406: IR text and verification errors
// E0900: Internal compiler errors

const (
	// E0401: A function touches storage beyond its declared purity
	ErrorPurityViolation = "E0401"

	// E0402: Script main declared with parameters
	ErrorScriptMainArgs = "E0402"

	// E0403: Two exported functions hash to the same selector
	ErrorDuplicateSelector = "E0403"

	// E0404: Compilation unit without an entry point
	ErrorMissingEntry = "E0404"

	// E0405: IR text could not be parsed
	ErrorIRParse = "E0405"

	// E0406: IR failed verification
	ErrorIRVerify = "E0406"

	// E0900: Internal compiler error
	ErrorInternal = "E0900"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorPurityViolation:
		return "Function accesses storage beyond its declared purity"
	case ErrorScriptMainArgs:
		return "Script entry point main cannot take parameters"
	case ErrorDuplicateSelector:
		return "Two exported functions share a selector"
	case ErrorMissingEntry:
		return "Compilation unit has no entry point"
	case ErrorIRParse:
		return "IR text is malformed"
	case ErrorIRVerify:
		return "IR violates a structural or typing rule"
	case ErrorInternal:
		return "The compiler reached an invalid internal state"
	default:
		return "Unknown error code"
	}
}
