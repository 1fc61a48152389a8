package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/pwd-registry/support-desk/internal/observability"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(requestid.New())
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

// ErrorHandler renders errors that escape the middleware chain, such as oversized bodies.
func ErrorHandler(logger *zap.Logger, metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return renderError(c, err, logger, metrics)
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				err = renderError(c, err, logger, metrics)
			}
		}()
		return c.Next()
	}
}

// renderError writes {"error": message, "code": CODE} and, for validation failures,
// "errors": {field: [messages]}. Causes of 5xx errors are logged, never rendered.
func renderError(c *fiber.Ctx, err error, logger *zap.Logger, metrics *observability.Metrics) error {
	domainErr := toDomainError(err)
	metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)

	response := fiber.Map{
		"error": domainErr.Message,
		"code":  domainErr.Code,
	}
	if len(domainErr.Fields) > 0 {
		response["errors"] = domainErr.Fields
	}
	if len(domainErr.Details) > 0 && domainErr.HTTPStatus < http.StatusInternalServerError {
		response["details"] = domainErr.Details
	}
	if domainErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("code", domainErr.Code),
			zap.Error(err))
	}
	return c.Status(domainErr.HTTPStatus).JSON(response)
}

func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fiberErr.Code), " ", "_"))
		switch fiberErr.Code {
		case http.StatusNotFound:
			code = apperrors.CodeNotFound
		case http.StatusUnprocessableEntity:
			code = apperrors.CodeValidation
		}
		if code == "" {
			code = apperrors.CodeInternal
		}
		message := fiberErr.Message
		if fiberErr.Code >= http.StatusInternalServerError {
			message = "internal server error"
		}
		return apperrors.NewDomainError(code, message, fiberErr.Code, nil)
	}
	return apperrors.ToDomainError(err)
}
