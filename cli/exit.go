package cli

import "fmt"

// Process exit codes returned through ExitError.
const (
	exitSuccess  = 0
	exitConfig   = 1
	exitRuntime  = 2
	exitAuth     = 3
	exitProvider = 5
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
