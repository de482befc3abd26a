package handler // package handler holds the HTTP handlers of the API

import (
    "context"  // request-scoped timeouts
    "errors"   // errors.Is/As drive the status mapping
    "fmt"      // message formatting
    "net/http" // status codes
    "reflect"  // json tag lookup for validation messages
    "strings"  // message assembly
    "time"     // handler timeout

    "github.com/go-playground/validator/v10" // struct tag validation of request bodies
    "github.com/labstack/echo/v4"            // echo context and error types
    "go.uber.org/zap"                        // logging of server-side failures

    "github.com/iliyamo/eventflow/internal/model"      // business error kinds
    "github.com/iliyamo/eventflow/internal/repository" // persistence error kinds
)

// requestTimeout bounds the work a single handler does against the store.
const requestTimeout = 5 * time.Second

func timeout(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// errorStatus maps an error kind to its HTTP status. It is the only place
// where business errors meet status codes.
func errorStatus(err error) int {
    switch {
    case errors.Is(err, model.ErrNotFound), errors.Is(err, repository.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, model.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, model.ErrUnauthenticated), errors.Is(err, model.ErrInvalidCredentials):
        return http.StatusUnauthorized
    case errors.Is(err, model.ErrAlreadyBooked),
        errors.Is(err, model.ErrSoldOut),
        errors.Is(err, model.ErrNotConfirmed),
        errors.Is(err, model.ErrEventStarted),
        errors.Is(err, model.ErrInvalidTransition),
        errors.Is(err, model.ErrEmailTaken):
        return http.StatusConflict
    case errors.Is(err, model.ErrPastEvent),
        errors.Is(err, model.ErrInvalidCapacity),
        errors.Is(err, model.ErrInvalidTimeWindow),
        errors.Is(err, model.ErrInvalidInput):
        return http.StatusBadRequest
    case errors.Is(err, repository.ErrSerialization):
        // retries were exhausted; the client may try again
        return http.StatusServiceUnavailable
    case errors.Is(err, context.DeadlineExceeded):
        return http.StatusGatewayTimeout
    }
    return http.StatusInternalServerError
}

// ErrorHandler renders every error returned by a handler or middleware in
// the {"error": "..."} envelope. Server-side failures are logged and their
// detail is not sent to the client.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        status, msg := errorStatus(err), err.Error()
        var he *echo.HTTPError
        if errors.As(err, &he) {
            status, msg = he.Code, fmt.Sprint(he.Message)
        }
        if status >= http.StatusInternalServerError {
            log.Error("request failed",
                zap.String("method", c.Request().Method),
                zap.String("route", c.Path()),
                zap.Int("status", status),
                zap.Error(err))
            if he == nil {
                msg = strings.ToLower(http.StatusText(status))
            }
        }

        if c.Request().Method == http.MethodHead {
            err = c.NoContent(status)
        } else {
            err = c.JSON(status, echo.Map{"error": msg})
        }
        if err != nil {
            log.Warn("error response not written", zap.Error(err))
        }
    }
}

// Validator adapts go-playground/validator to echo.Validator. Field names
// in messages are the json names.
type Validator struct {
    v *validator.Validate
}

func NewValidator() *Validator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
        if name == "-" {
            return ""
        }
        return name
    })
    return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
    err := cv.v.Struct(i)
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return err
    }
    parts := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        if fe.Param() != "" {
            parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
        } else {
            parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
        }
    }
    return fmt.Errorf("%s: %w", strings.Join(parts, "; "), model.ErrInvalidInput)
}

// bind decodes the request body into req and validates it. Both kinds of
// failure are reported as invalid input.
func bind(c echo.Context, req any) error {
    if err := c.Bind(req); err != nil {
        return fmt.Errorf("invalid body: %w", model.ErrInvalidInput)
    }
    if err := c.Validate(req); err != nil {
        if errors.Is(err, model.ErrInvalidInput) {
            return err
        }
        return fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
    }
    return nil
}
