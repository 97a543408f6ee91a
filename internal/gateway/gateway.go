// Package gateway maps one long-lived websocket connection to exactly one
// browsing session and translates between wire messages and engine intents.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/vitrine/idgen"
	"github.com/hazyhaar/vitrine/internal/engine"
	"github.com/hazyhaar/vitrine/internal/session"
)

// Intents is the slice of the interaction engine the gateway drives.
type Intents interface {
	Hover(ctx context.Context, sessionID, target string) (*engine.Result, error)
	Click(ctx context.Context, sessionID, target, categorySlug, navigationSlug string) (*engine.Result, error)
	Paginate(ctx context.Context, sessionID, target, categorySlug string) (*engine.Result, error)
	GetDetails(ctx context.Context, sessionID, sourceID string) (*engine.Result, error)
}

// Sessions is the registry surface the gateway needs: one open per
// connection, one close on disconnect.
type Sessions interface {
	Open(ctx context.Context, id string) (*session.Session, error)
	Close(ctx context.Context, id string) error
}

// Gateway upgrades client connections and runs one session per connection.
type Gateway struct {
	sessions Sessions
	intents  Intents
	upgrader websocket.Upgrader
	id       idgen.Generator
	logger   *slog.Logger
}

// New creates a Gateway.
func New(sessions Sessions, intents Intents, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		sessions: sessions,
		intents:  intents,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		id:     idgen.Prefixed("sess_", idgen.UUIDv7()),
		logger: logger,
	}
}

// ServeHTTP upgrades the request and runs the connection until the client
// disconnects or the session cannot be opened.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("gateway: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &conn{
		ws:      ws,
		gateway: g,
		state:   stateAwaitingReady,
		logger:  g.logger,
	}
	c.run(r.Context())
}

// connState is the per-connection protocol state. Messages are accepted only
// in the ready and busy states.
type connState int

const (
	stateAwaitingReady connState = iota
	stateReady
	stateBusy
	stateClosed
)

type conn struct {
	ws        *websocket.Conn
	gateway   *Gateway
	sessionID string
	state     connState
	logger    *slog.Logger
}

// run opens the session, emits session-ready, then serves intents until the
// connection drops. The session is always closed on the way out.
func (c *conn) run(ctx context.Context) {
	defer c.ws.Close()

	id := c.gateway.id()
	if _, err := c.gateway.sessions.Open(ctx, id); err != nil {
		c.logger.Error("gateway: session open", "session_id", id, "error", err)
		c.sendError(fmt.Sprintf("session initialization failed: %v", err))
		return
	}
	c.sessionID = id
	c.logger = c.logger.With("session_id", id)

	defer func() {
		c.state = stateClosed
		if err := c.gateway.sessions.Close(context.WithoutCancel(ctx), id); err != nil {
			c.logger.Warn("gateway: session close", "error", err)
		}
	}()

	if err := c.send(TypeSessionReady, SessionReadyPayload{SessionID: id}); err != nil {
		c.logger.Warn("gateway: session-ready send", "error", err)
		return
	}
	c.state = stateReady

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("gateway: read", "error", err)
			}
			return
		}
		c.handle(ctx, raw)
	}
}

// handle dispatches one inbound message. Every navigate/get-details request
// produces a terminal status event, even on failure.
func (c *conn) handle(ctx context.Context, raw []byte) {
	if c.state != stateReady && c.state != stateBusy {
		c.sendError("no active session")
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError(fmt.Sprintf("malformed message: %v", err))
		return
	}

	switch env.Type {
	case TypeNavigate:
		var p NavigatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.sendError(fmt.Sprintf("malformed navigate payload: %v", err))
			return
		}
		c.navigate(ctx, p)
	case TypeGetDetails:
		var p GetDetailsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.sendError(fmt.Sprintf("malformed get-details payload: %v", err))
			return
		}
		c.getDetails(ctx, p)
	default:
		c.sendError(fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func (c *conn) navigate(ctx context.Context, p NavigatePayload) {
	switch p.Action {
	case "hover":
		res, err := c.gateway.intents.Hover(ctx, c.sessionID, p.Target)
		c.finish(res, err)
	case "click":
		c.state = stateBusy
		c.sendStatus(ScrapeScraping, fmt.Sprintf("scraping %s", p.CategorySlug))
		res, err := c.gateway.intents.Click(ctx, c.sessionID, p.Target, p.CategorySlug, p.NavigationSlug)
		c.finish(res, err)
	case "paginate":
		c.state = stateBusy
		c.sendStatus(ScrapeScraping, "loading more products")
		res, err := c.gateway.intents.Paginate(ctx, c.sessionID, p.Target, p.CategorySlug)
		c.finish(res, err)
	default:
		c.sendError(fmt.Sprintf("unknown action %q", p.Action))
	}
}

func (c *conn) getDetails(ctx context.Context, p GetDetailsPayload) {
	c.state = stateBusy
	c.sendStatus(ScrapeScraping, fmt.Sprintf("fetching details for %s", p.Target))
	res, err := c.gateway.intents.GetDetails(ctx, c.sessionID, p.Target)
	c.finish(res, err)
}

// finish emits the result events for one intent: data-chunk when products
// came back, error when the intent failed, and always a terminal ready
// status so the client never hangs.
func (c *conn) finish(res *engine.Result, err error) {
	if c.state == stateBusy {
		c.state = stateReady
	}

	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.sendError("no active session")
		} else {
			c.sendError(err.Error())
		}
		c.sendStatus(ScrapeReady, "session ready")
		return
	}

	if len(res.Products) > 0 {
		c.send(TypeDataChunk, DataChunkPayload{
			Products:     res.Products,
			TotalScraped: res.TotalScraped,
			HasMore:      res.HasMore,
			Message:      res.Message,
		})
	}
	if res.Status == engine.StatusFailed {
		c.sendError(res.Message)
	}
	c.sendStatus(ScrapeReady, res.Message)
}

func (c *conn) send(msgType string, payload any) error {
	env, err := envelope(msgType, payload)
	if err != nil {
		return fmt.Errorf("gateway: encode %s: %w", msgType, err)
	}
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("gateway: write %s: %w", msgType, err)
	}
	return nil
}

func (c *conn) sendStatus(status, message string) {
	if err := c.send(TypeScrapeStatus, ScrapeStatusPayload{Status: status, Message: message}); err != nil {
		c.logger.Warn("gateway: status send", "error", err)
	}
}

func (c *conn) sendError(message string) {
	if err := c.send(TypeError, ErrorPayload{Message: message}); err != nil {
		c.logger.Warn("gateway: error send", "error", err)
	}
}
