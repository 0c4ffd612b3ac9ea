package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memstack/sandboxcore/internal/sberrors"
)

// httpError maps a lifecycle error Kind to the HTTP status a caller
// should see, grounded on sberrors.ExitCode's CLI mapping but widened
// to the full HTTP vocabulary an API surface needs.
func httpError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case sberrors.Is(err, sberrors.KindNotFound):
		status = http.StatusNotFound
	case sberrors.Is(err, sberrors.KindResourceRejected):
		status = http.StatusUnprocessableEntity
	case sberrors.Is(err, sberrors.KindResourceExhausted):
		status = http.StatusServiceUnavailable
	case sberrors.Is(err, sberrors.KindConflict):
		status = http.StatusConflict
	case sberrors.Is(err, sberrors.KindSecurityError):
		status = http.StatusForbidden
	case sberrors.Is(err, sberrors.KindTimeout):
		status = http.StatusGatewayTimeout
	case sberrors.Is(err, sberrors.KindControlChannelErr), sberrors.Is(err, sberrors.KindContainerRuntimeErr):
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
