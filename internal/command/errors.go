package command

import (
	"fmt"
	"strings"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/spf13/cobra"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", errorText(err))

	if isConnectionError(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: is the AI Office server running? Check server.base_url or pass --server.")
	}

	return reportedError{err}
}

// reportedError marks an error already printed to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// errorText prefers the server's detail for classified errors.
func errorText(err error) string {
	if apperr.KindOf(err) == "" {
		return err.Error()
	}
	return apperr.UserMessage(err)
}

// isConnectionError reports whether err looks like an unreachable server.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if apperr.Is(err, apperr.KindNetwork) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}
