package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/rodrigorodrigues/kairos/internal/eventbus"
	"github.com/rodrigorodrigues/kairos/internal/journal"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

const (
	streamBuffer = 64
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// streamMessage is one frame event pushed to WebSocket clients.
type streamMessage struct {
	Type string `json:"type"`
	journal.Entry
}

// handleEvents streams relayed frame events as JSON text messages.
// ?frame=a,b limits the stream to the named frames.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable")
		return
	}
	var only map[string]bool
	if raw := strings.TrimSpace(r.URL.Query().Get("frame")); raw != "" {
		only = map[string]bool{}
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				only[name] = true
			}
		}
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: s.cfg.Origins})
	if err != nil {
		s.log.Warn("websocket accept failed", logx.Err(err))
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	updates := make(chan journal.Entry, streamBuffer)
	var subs []eventbus.Subscription
	for _, ch := range scheduler.GenericChannels() {
		subs = append(subs, s.deps.Bus.Subscribe(ch, func(e eventbus.Event) error {
			entry := journal.EntryFromEvent(e)
			if only != nil && !only[entry.Frame] {
				return nil
			}
			select {
			case updates <- entry:
			default:
			}
			return nil
		}))
	}
	defer func() {
		for _, sub := range subs {
			s.deps.Bus.Unsubscribe(sub)
		}
	}()

	ctx := conn.CloseRead(r.Context())
	s.log.Debug("event stream connected", logx.String("remote", r.RemoteAddr))

	if err := writeMessage(ctx, conn, map[string]string{"type": "hello"}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}
		case entry := <-updates:
			if err := writeMessage(ctx, conn, streamMessage{Type: "event", Entry: entry}); err != nil {
				s.log.Debug("event stream write failed", logx.Err(err))
				conn.Close(ws.StatusInternalError, "send failed")
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *ws.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, ws.MessageText, b)
}
