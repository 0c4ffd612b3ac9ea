package cmd

import (
	"errors"
	"net/http"

	"github.com/memstack/sandboxcore/cmd/sandboxctl/client"
)

// ExitCode maps err to the process exit code spec.md §6 defines for the
// CLI/API surface: 0 success, 1 generic failure, 2 not found, 3
// resource-limit rejection. The CLI only sees sandboxcored's errors as
// HTTP status codes, so it maps those back to the same convention
// internal/sberrors.ExitCode applies server-side.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return 1
	}
	switch apiErr.Status {
	case http.StatusNotFound:
		return 2
	case http.StatusUnprocessableEntity, http.StatusServiceUnavailable:
		return 3
	default:
		return 1
	}
}
