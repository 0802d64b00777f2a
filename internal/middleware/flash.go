package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/disable-customer/internal/flash"
)

// Messages attaches a fresh flash bag to every request context.
func Messages() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, _ := flash.WithBag(c.Request().Context())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
