package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-ignition/logger"
)

// RequestLogger emits one record per request carrying the serialized
// request and response, plus the error when the handler failed.
// 5xx responses are logged at error level, failed 4xx responses at warn
// and everything else at info.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			body := captureBody(c.Request())

			err := next(c)
			if err != nil {
				// Render the error now so the status is final when logged.
				c.Error(err)
			}

			req := buildRequest(c, body)
			res := &logger.Response{
				Headers:      c.Response().Header(),
				StatusCode:   c.Response().Status,
				ResponseTime: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			}

			l := logger.FromContext(c.Request().Context(), log)
			if l == nil {
				return nil
			}
			args := []any{req, res}
			if err != nil {
				args = append(args, err)
			}
			switch status := res.StatusCode; {
			case status >= http.StatusInternalServerError:
				l.Error(args...)
			case status >= http.StatusBadRequest && err != nil:
				l.Warn(args...)
			default:
				l.Info(args...)
			}
			return nil
		}
	}
}

func buildRequest(c echo.Context, body any) *logger.Request {
	r := c.Request()
	req := &logger.Request{
		ID:          logger.RequestIDFromContext(r.Context()),
		URL:         r.URL.Path,
		Method:      r.Method,
		OriginalURL: r.URL.RequestURI(),
		IP:          c.RealIP(),
		Headers:     r.Header,
		Body:        body,
	}
	if names := c.ParamNames(); len(names) > 0 {
		req.Params = make(map[string]string, len(names))
		for i, name := range names {
			req.Params[name] = c.ParamValues()[i]
		}
	}
	if r.URL.RawQuery != "" {
		req.Query = func() url.Values { return c.QueryParams() }
	}
	return req
}

// captureBody decodes small JSON bodies and puts the bytes back on the request.
func captureBody(r *http.Request) any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if !strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return nil
	}
	if r.ContentLength > maxLoggedBody {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil || len(buf) == 0 || len(buf) > maxLoggedBody {
		return nil
	}

	var body any
	if json.Unmarshal(buf, &body) != nil {
		return nil
	}
	return body
}

type readCloser struct {
	io.Reader
	io.Closer
}
