package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/iliyamo/eventflow/internal/config"
    "github.com/iliyamo/eventflow/internal/model"
    "github.com/iliyamo/eventflow/internal/utils"
)

const secret = "middleware-secret"

func token(t *testing.T, roles ...model.Role) string {
    t.Helper()
    tok, err := utils.NewAccessToken(secret, &model.User{ID: "u-1", Email: "u@example.com", Roles: roles}, 5)
    require.NoError(t, err)
    return tok.Token
}

// serve runs one GET /probe request through mw and reports the status and
// the actor the handler saw.
func serve(t *testing.T, authHeader string, mw ...echo.MiddlewareFunc) (int, model.Actor) {
    t.Helper()
    e := echo.New()
    var seen model.Actor
    e.GET("/probe", func(c echo.Context) error {
        seen = ActorFrom(c)
        return c.NoContent(http.StatusNoContent)
    }, mw...)

    req := httptest.NewRequest(http.MethodGet, "/probe", nil)
    if authHeader != "" {
        req.Header.Set("Authorization", authHeader)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec.Code, seen
}

func TestJWTAuth(t *testing.T) {
    code, actor := serve(t, "Bearer "+token(t, model.RoleUser), JWTAuth(secret))
    require.Equal(t, http.StatusNoContent, code)
    require.Equal(t, "u-1", actor.UserID)
    require.Equal(t, []model.Role{model.RoleUser}, actor.Roles)

    code, _ = serve(t, "", JWTAuth(secret))
    require.Equal(t, http.StatusUnauthorized, code)
    code, _ = serve(t, "Token abc", JWTAuth(secret))
    require.Equal(t, http.StatusUnauthorized, code)
    code, _ = serve(t, "Bearer "+token(t), JWTAuth("another-secret"))
    require.Equal(t, http.StatusUnauthorized, code)
}

func TestOptionalJWT(t *testing.T) {
    code, actor := serve(t, "", OptionalJWT(secret))
    require.Equal(t, http.StatusNoContent, code)
    require.False(t, actor.Authenticated())

    code, actor = serve(t, "Bearer "+token(t), OptionalJWT(secret))
    require.Equal(t, http.StatusNoContent, code)
    require.True(t, actor.Authenticated())

    code, _ = serve(t, "Bearer broken", OptionalJWT(secret))
    require.Equal(t, http.StatusUnauthorized, code)
}

func TestRequireRole(t *testing.T) {
    guard := RequireRole(model.RoleOrganizer, model.RoleAdmin)

    code, _ := serve(t, "Bearer "+token(t, model.RoleOrganizer), JWTAuth(secret), guard)
    require.Equal(t, http.StatusNoContent, code)
    code, _ = serve(t, "Bearer "+token(t, model.RoleAdmin), JWTAuth(secret), guard)
    require.Equal(t, http.StatusNoContent, code)
    code, _ = serve(t, "Bearer "+token(t, model.RoleUser), JWTAuth(secret), guard)
    require.Equal(t, http.StatusForbidden, code)
    code, _ = serve(t, "", OptionalJWT(secret), guard)
    require.Equal(t, http.StatusUnauthorized, code)
}

func TestDisabledRedisMiddlewarePassThrough(t *testing.T) {
    log := zap.NewNop()
    code, _ := serve(t, "",
        NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, log),
        NewRedisCache(config.CacheConfig{Enabled: true}, nil, log),
        InvalidateOnWrite(config.CacheConfig{}, nil, log),
    )
    require.Equal(t, http.StatusNoContent, code)
}

func TestRateKeyStrategies(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/events/abc/tickets", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/events/:id/tickets")

    cfg := config.RateLimitConfig{Prefix: "rl"}
    require.Equal(t, "rl:ip:10.0.0.9:route:POST /v1/events/:id/tickets", buildRateKey(cfg, c))

    cfg.KeyStrategy = "client"
    c.Set(ActorKey, model.Actor{UserID: "u-1"})
    require.Equal(t, "rl:user:u-1", buildRateKey(cfg, c))

    cfg.KeyStrategy = "route"
    require.Equal(t, "rl:route:POST /v1/events/:id/tickets", buildRateKey(cfg, c))
}

func TestCacheKeyTracksGenerationAndQuery(t *testing.T) {
    e := echo.New()
    ctx := func(target string) echo.Context {
        c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
        c.SetPath("/v1/events")
        return c
    }
    cfg := config.CacheConfig{Prefix: "p"}

    a := cacheKeyFrom(cfg, ctx("/v1/events?first=5"), 0)
    require.Equal(t, a, cacheKeyFrom(cfg, ctx("/v1/events?first=5"), 0))
    require.NotEqual(t, a, cacheKeyFrom(cfg, ctx("/v1/events?first=5"), 1))
    require.NotEqual(t, a, cacheKeyFrom(cfg, ctx("/v1/events?first=6"), 0))

    cfg.KeyStrategy = "route"
    require.Equal(t, cacheKeyFrom(cfg, ctx("/v1/events?first=5"), 0), cacheKeyFrom(cfg, ctx("/v1/events?first=6"), 0))
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)

    status, got, body, ok := decodePayload(bs)
    require.True(t, ok)
    require.Equal(t, http.StatusOK, status)
    require.Equal(t, hdr, got)
    require.JSONEq(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodePayload(bs[:5])
    require.False(t, ok)
}
