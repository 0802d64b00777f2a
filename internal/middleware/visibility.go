package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/disablement"
)

// bufferWriter holds the whole response until the handler returns.
type bufferWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferWriter) WriteHeader(code int)        { w.status = code }
func (w *bufferWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

// HideBackendOnly strips backend-only custom attributes from JSON
// responses sent to non-privileged callers. Privileged responses pass
// through untouched.
func HideBackendOnly(v *disablement.Visibility, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsPrivileged(c) {
				return next(c)
			}
			res := c.Response()
			orig := res.Writer
			bw := &bufferWriter{ResponseWriter: orig, status: http.StatusOK}
			res.Writer = bw
			err := next(c)
			res.Writer = orig
			// Roles are known only after JWTAuth ran inside next.
			if IsPrivileged(c) {
				return flush(orig, bw.status, bw.buf.Bytes(), err)
			}

			body := bw.buf.Bytes()
			if len(body) > 0 && strings.HasPrefix(orig.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
				stripped, serr := v.StripJSON(body)
				if serr != nil {
					log.Error("strip backend-only attributes", zap.Error(serr))
					orig.Header().Del(echo.HeaderContentLength)
					return flush(orig, http.StatusInternalServerError, []byte(`{"error":"internal error"}`), err)
				}
				body = append(stripped, '\n')
			}
			if len(body) > 0 {
				orig.Header().Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
			}
			return flush(orig, bw.status, body, err)
		}
	}
}

func flush(w http.ResponseWriter, status int, body []byte, err error) error {
	if len(body) == 0 && err != nil {
		// Nothing written yet; let echo's error handler respond.
		return err
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
	return err
}
