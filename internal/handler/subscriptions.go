package handler

// subscriptions.go carries the live streams over WebSocket. Frames follow
// the graphql-ws message shapes: the client sends connection_init,
// subscribe, complete and ping; the server answers connection_ack, next,
// error, complete and pong. Every stream of a connection ends with it.

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "slices"
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/eventflow/internal/eventbus"
    "github.com/iliyamo/eventflow/internal/middleware"
    "github.com/iliyamo/eventflow/internal/subscription"
)

const (
    wsWriteWait  = 10 * time.Second
    wsPongWait   = 60 * time.Second
    wsPingPeriod = wsPongWait * 9 / 10
    wsMaxMessage = 64 << 10
)

// Message types of the subscription protocol.
const (
    msgConnectionInit = "connection_init"
    msgConnectionAck  = "connection_ack"
    msgSubscribe      = "subscribe"
    msgNext           = "next"
    msgError          = "error"
    msgComplete       = "complete"
    msgPing           = "ping"
    msgPong           = "pong"
)

type inFrame struct {
    ID      string          `json:"id,omitempty"`
    Type    string          `json:"type"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

type outFrame struct {
    ID      string `json:"id,omitempty"`
    Type    string `json:"type"`
    Payload any    `json:"payload,omitempty"`
}

type subscribePayload struct {
    Topic   subscription.Topic `json:"topic"`
    EventID string             `json:"eventId"`
}

type errorPayload struct {
    Message string `json:"message"`
}

// SubscriptionHandler upgrades GET /v1/subscriptions to a WebSocket and
// serves topic streams over it.
type SubscriptionHandler struct {
    Router   *subscription.Router
    Log      *zap.Logger
    upgrader websocket.Upgrader
}

// NewSubscriptionHandler accepts browser connections from origins; "*"
// allows any origin. Requests without an Origin header are always allowed.
func NewSubscriptionHandler(r *subscription.Router, log *zap.Logger, origins []string) *SubscriptionHandler {
    anyOrigin := slices.Contains(origins, "*")
    return &SubscriptionHandler{
        Router: r,
        Log:    log,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  4096,
            WriteBufferSize: 4096,
            Subprotocols:    []string{"graphql-transport-ws"},
            CheckOrigin: func(req *http.Request) bool {
                o := req.Header.Get("Origin")
                return anyOrigin || o == "" || slices.Contains(origins, o)
            },
        },
    }
}

// Serve runs one connection until the client leaves.
func (h *SubscriptionHandler) Serve(c echo.Context) error {
    conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
    if err != nil {
        // the upgrader already answered with an HTTP error
        h.Log.Debug("websocket upgrade failed", zap.Error(err))
        return nil
    }
    actor := middleware.ActorFrom(c)
    log := h.Log.With(zap.String("remote", c.RealIP()), zap.String("user_id", actor.UserID))
    log.Info("subscription connection opened")

    ctx, cancel := context.WithCancel(c.Request().Context())
    s := &wsSession{conn: conn, log: log, router: h.Router, streams: map[string]*activeStream{}}
    defer func() {
        cancel()
        s.closeAll()
        s.wg.Wait()
        _ = conn.Close()
        log.Info("subscription connection closed")
    }()

    conn.SetReadLimit(wsMaxMessage)
    _ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
    conn.SetPongHandler(func(string) error {
        return conn.SetReadDeadline(time.Now().Add(wsPongWait))
    })
    s.wg.Add(1)
    go s.keepalive(ctx)

    for {
        _, data, err := conn.ReadMessage()
        if err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
                log.Debug("websocket read failed", zap.Error(err))
            }
            return nil
        }
        _ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

        var f inFrame
        if err := json.Unmarshal(data, &f); err != nil {
            s.send(outFrame{Type: msgError, Payload: errorPayload{Message: "malformed message"}})
            continue
        }
        s.handle(ctx, f)
    }
}

// activeStream is the teardown handle of one subscribe id.
type activeStream struct {
    close func()
}

type wsSession struct {
    conn   *websocket.Conn
    log    *zap.Logger
    router *subscription.Router

    writeMu sync.Mutex

    mu      sync.Mutex
    acked   bool
    streams map[string]*activeStream
    wg      sync.WaitGroup
}

// send writes one frame; gorilla allows a single concurrent writer.
func (s *wsSession) send(f outFrame) error {
    s.writeMu.Lock()
    defer s.writeMu.Unlock()
    _ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
    return s.conn.WriteJSON(f)
}

func (s *wsSession) fail(id, msg string) {
    _ = s.send(outFrame{ID: id, Type: msgError, Payload: errorPayload{Message: msg}})
}

func (s *wsSession) keepalive(ctx context.Context) {
    defer s.wg.Done()
    t := time.NewTicker(wsPingPeriod)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
                return
            }
        }
    }
}

func (s *wsSession) handle(ctx context.Context, f inFrame) {
    switch f.Type {
    case msgConnectionInit:
        s.mu.Lock()
        s.acked = true
        s.mu.Unlock()
        _ = s.send(outFrame{Type: msgConnectionAck})
    case msgPing:
        _ = s.send(outFrame{Type: msgPong})
    case msgPong:
    case msgSubscribe:
        s.subscribe(ctx, f)
    case msgComplete:
        s.stop(f.ID)
    default:
        s.fail(f.ID, "unknown message type "+f.Type)
    }
}

func (s *wsSession) subscribe(ctx context.Context, f inFrame) {
    var p subscribePayload
    if f.ID == "" {
        s.fail("", "subscribe requires an id")
        return
    }
    if err := json.Unmarshal(f.Payload, &p); err != nil {
        s.fail(f.ID, "malformed subscribe payload")
        return
    }
    if p.EventID == "" {
        s.fail(f.ID, "eventId is required")
        return
    }

    s.mu.Lock()
    acked, dup := s.acked, s.streams[f.ID] != nil
    s.mu.Unlock()
    switch {
    case !acked:
        s.fail(f.ID, "connection not initialised")
        return
    case dup:
        s.fail(f.ID, "subscriber for "+f.ID+" already exists")
        return
    }

    switch p.Topic {
    case subscription.TopicTicketBooked:
        start(ctx, s, f.ID, p.Topic, s.router.TicketBooked(p.EventID))
    case subscription.TopicEventCapacityChanged:
        start(ctx, s, f.ID, p.Topic, s.router.EventCapacityChanged(p.EventID))
    default:
        s.fail(f.ID, "unknown topic "+string(p.Topic))
        return
    }
    s.log.Debug("stream opened", zap.String("id", f.ID), zap.String("topic", string(p.Topic)), zap.String("event_id", p.EventID))
}

// start registers st under id and pumps its values to the client until it
// terminates.
func start[T any](ctx context.Context, s *wsSession, id string, topic subscription.Topic, st *subscription.Stream[T]) {
    a := &activeStream{close: st.Close}
    s.mu.Lock()
    s.streams[id] = a
    s.mu.Unlock()

    s.wg.Add(1)
    go func() {
        defer s.wg.Done()
        defer s.forget(id, a)
        for {
            v, err := st.Next(ctx)
            if err != nil {
                switch {
                case errors.Is(err, eventbus.ErrSlowSubscriber):
                    s.fail(id, "subscriber fell behind and was disconnected")
                case errors.Is(err, eventbus.ErrBusClosed):
                    _ = s.send(outFrame{ID: id, Type: msgComplete})
                }
                return
            }
            data := map[string]any{"data": map[string]any{string(topic): v}}
            if err := s.send(outFrame{ID: id, Type: msgNext, Payload: data}); err != nil {
                return
            }
        }
    }()
}

// forget closes a and unregisters it unless id was already reused.
func (s *wsSession) forget(id string, a *activeStream) {
    a.close()
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.streams[id] == a {
        delete(s.streams, id)
    }
}

// stop ends the stream of id on the client's request.
func (s *wsSession) stop(id string) {
    s.mu.Lock()
    a := s.streams[id]
    delete(s.streams, id)
    s.mu.Unlock()
    if a != nil {
        a.close()
    }
}

func (s *wsSession) closeAll() {
    s.mu.Lock()
    all := make([]*activeStream, 0, len(s.streams))
    for id, a := range s.streams {
        all = append(all, a)
        delete(s.streams, id)
    }
    s.mu.Unlock()
    for _, a := range all {
        a.close()
    }
}
