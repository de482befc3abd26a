package handler

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/iliyamo/eventflow/internal/model"
    "github.com/iliyamo/eventflow/internal/repository"
)

func TestErrorStatus(t *testing.T) {
    cases := []struct {
        err  error
        want int
    }{
        {model.ErrNotFound, http.StatusNotFound},
        {fmt.Errorf("event 7: %w", repository.ErrNotFound), http.StatusNotFound},
        {model.ErrForbidden, http.StatusForbidden},
        {model.ErrUnauthenticated, http.StatusUnauthorized},
        {model.ErrInvalidCredentials, http.StatusUnauthorized},
        {model.ErrAlreadyBooked, http.StatusConflict},
        {model.ErrSoldOut, http.StatusConflict},
        {model.ErrNotConfirmed, http.StatusConflict},
        {model.ErrEventStarted, http.StatusConflict},
        {model.ErrInvalidTransition, http.StatusConflict},
        {model.ErrEmailTaken, http.StatusConflict},
        {model.ErrPastEvent, http.StatusBadRequest},
        {model.ErrInvalidCapacity, http.StatusBadRequest},
        {model.ErrInvalidTimeWindow, http.StatusBadRequest},
        {fmt.Errorf("bad id: %w", model.ErrInvalidInput), http.StatusBadRequest},
        {repository.ErrSerialization, http.StatusServiceUnavailable},
        {context.DeadlineExceeded, http.StatusGatewayTimeout},
        {errors.New("disk on fire"), http.StatusInternalServerError},
    }
    for _, tc := range cases {
        require.Equal(t, tc.want, errorStatus(tc.err), tc.err.Error())
    }
}

func render(t *testing.T, err error) (int, map[string]string) {
    t.Helper()
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
    ErrorHandler(zap.NewNop())(err, c)

    var body map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    return rec.Code, body
}

func TestErrorHandlerEnvelope(t *testing.T) {
    code, body := render(t, model.ErrSoldOut)
    require.Equal(t, http.StatusConflict, code)
    require.Equal(t, model.ErrSoldOut.Error(), body["error"])

    code, body = render(t, fmt.Errorf("dial tcp: secret host: %w", errors.New("refused")))
    require.Equal(t, http.StatusInternalServerError, code)
    require.Equal(t, "internal server error", body["error"])

    code, body = render(t, echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"))
    require.Equal(t, http.StatusMethodNotAllowed, code)
    require.Equal(t, "nope", body["error"])
}

func TestValidatorMessages(t *testing.T) {
    v := NewValidator()

    err := v.Validate(&registerReq{Name: "a", Email: "not-an-email", Password: "123"})
    require.ErrorIs(t, err, model.ErrInvalidInput)
    require.Contains(t, err.Error(), "email must satisfy email")
    require.Contains(t, err.Error(), "password must satisfy min=6")

    require.NoError(t, v.Validate(&registerReq{Name: "a", Email: "a@example.com", Password: "123456"}))

    err = v.Validate(&rolesReq{})
    require.ErrorIs(t, err, model.ErrInvalidInput)
    require.Contains(t, err.Error(), "roles")
}
