package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gaborage/go-ignition/apperrors"
	"github.com/gaborage/go-ignition/config"
	"github.com/gaborage/go-ignition/logger"
	"github.com/gaborage/go-ignition/trace"
)

// SetupMiddlewares registers the request-id, logging, recovery and body limit
// middlewares in that order. A valid traceparent header adds the caller's
// trace fields to every record logged for the request.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg config.Provider) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := logger.WithRequestID(c.Request().Context(), id)
			reqLog := log
			if p, ok := trace.ParseParent(c.Request().Header.Get(trace.HeaderTraceParent)); ok {
				ctx = trace.WithParent(ctx, p)
				if reqLog != nil {
					reqLog = reqLog.WithFields(p.Fields())
				}
			}
			if reqLog != nil {
				ctx = logger.NewContext(ctx, reqLog)
			}
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))

	e.Use(RequestLogger(log))

	// Panics become 500s rendered by the error handler and logged with the request.
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableErrorHandler: true,
		LogErrorFunc: func(_ echo.Context, err error, _ []byte) error {
			return apperrors.New(apperrors.InternalServerError, apperrors.WithCause(err))
		},
	}))

	limit := DefaultBodyLimit
	if cfg != nil {
		limit = cfg.GetString(KeyBodyLimit, DefaultBodyLimit)
	}
	e.Use(middleware.BodyLimit(limit))
}
