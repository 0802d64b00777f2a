package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/session"
)

// KeySession is the echo context key of the loaded *session.Session.
const KeySession = "session"

// SessionLoader loads sessions by id.
type SessionLoader interface {
	Load(ctx context.Context, id string) (*session.Session, error)
}

// SessionChecker decides whether a session may continue.
type SessionChecker interface {
	Check(ctx context.Context, s disablement.Session) (disablement.Decision, error)
}

// Sessions loads the session named by the token's sid claim and runs the
// disablement check before the handler. A session that must end is
// destroyed and the request is answered with 401.
func Sessions(store SessionLoader, checker SessionChecker, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			sid, _ := c.Get(KeySessionID).(string)
			sess, err := store.Load(ctx, sid)
			if errors.Is(err, session.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
			}
			if err != nil {
				log.Error("session load failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session unavailable"})
			}
			if sess.AccountID() != AccountID(c) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session mismatch"})
			}

			d, err := checker.Check(ctx, sess)
			if err != nil {
				log.Error("session check failed", zap.Uint64("account_id", sess.AccountID()), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session check failed"})
			}
			if d.LoggedOut() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session terminated"})
			}
			c.Set(KeySession, sess)
			return next(c)
		}
	}
}
