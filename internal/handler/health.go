package handler // HTTP handlers

import (
	"net/http" // status codes

	"github.com/labstack/echo/v4" // echo context
)

// Health is the liveness check used by load balancers and the front end to
// check that the API is up.  It does not touch the store.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true}) // same shape as the other write acknowledgements
}
