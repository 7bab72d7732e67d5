package core

// Exit codes for the application.
// Signal-based exits follow the Unix 128 + signal number convention.
const (
	// ExitCodeSuccess indicates clean shutdown
	ExitCodeSuccess = 0

	// ExitCodeError indicates an error occurred
	ExitCodeError = 1

	// ExitCodeUsage indicates invalid command-line usage
	ExitCodeUsage = 2

	// ExitCodeGenerationFailed indicates every provider attempt failed
	ExitCodeGenerationFailed = 3

	// ExitCodeSIGINT indicates termination due to SIGINT (Ctrl+C)
	ExitCodeSIGINT = 130

	// ExitCodeSIGTERM indicates termination due to SIGTERM
	ExitCodeSIGTERM = 143
)

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeUsage:
		return "usage"
	case ExitCodeGenerationFailed:
		return "generation failed"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}
