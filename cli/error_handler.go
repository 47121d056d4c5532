package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/cryoview/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints guidance for err based on its code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out
	ge, _ := errors.As(err)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "Configuration not found. Create cryoview.yml or pass --config.\n")

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(out, "Invalid configuration: %v\n", err)
		fmt.Fprintf(out, "Run 'cryoview config layers' to see which file is at fault.\n")

	case errors.ErrCodeAuthFailure:
		fmt.Fprintf(out, "%s\n", errors.AuthFailureMessage)
		fmt.Fprintf(out, "Set server.token in cryoview.yml or pass --token.\n")

	case errors.ErrCodeTransientFetchFailure:
		fmt.Fprintf(out, "Could not reach the diagnostics service: %s\n", ge.Message)
		fmt.Fprintf(out, "Check server.url, or start a local backend with 'cryoview devserver start'.\n")

	case errors.ErrCodeUnknownCollection:
		fmt.Fprintf(out, "Unknown collection '%v'. Run 'cryoview collections' to list them.\n", ge.Details["collection"])

	case errors.ErrCodeUnknownAction:
		fmt.Fprintf(out, "Collection '%v' has no action '%v'.\n", ge.Details["view"], ge.Details["action"])

	case errors.ErrCodeUnknownCategory:
		fmt.Fprintf(out, "Unknown filter category '%v'.\n", ge.Details["category"])

	case errors.ErrCodeNotFound:
		fmt.Fprintf(out, "Not found: %s\n", ge.Message)

	default:
		fmt.Fprintf(out, "Error: %v\n", err)
	}

	if h.Verbose && ge != nil {
		fmt.Fprintf(out, "\nError details:\n%s\n", ge.ToJSON())
	}
	return err
}
