package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-ignition/apperrors"
)

// ErrorResponse is the JSON-API envelope returned for failed requests.
type ErrorResponse struct {
	Errors []apperrors.Document `json:"errors"`
}

// errorHandler is installed as echo's HTTPErrorHandler.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	appErr := toAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Errors: []apperrors.Document{apperrors.Serialize(appErr)}})
	}
	if err != nil {
		c.Echo().Logger.Error(err)
	}
}

// toAppError converts handler and framework errors into *apperrors.Error.
func toAppError(err error) *apperrors.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		opts := []apperrors.Option{apperrors.WithStatusCode(he.Code)}
		if msg := httpErrorMessage(he); msg != "" {
			opts = append(opts, apperrors.WithMessage(msg))
		}
		if he.Internal != nil {
			opts = append(opts, apperrors.WithCause(he.Internal))
		}
		return apperrors.New(apperrors.KindForStatus(he.Code), opts...)
	}

	return apperrors.New(apperrors.InternalServerError, apperrors.WithCause(err))
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case nil:
		return ""
	case string:
		return m
	case error:
		return m.Error()
	default:
		return fmt.Sprint(m)
	}
}
