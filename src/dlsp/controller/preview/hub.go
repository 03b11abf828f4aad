package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/uber/doc-lsp/src/dlsp/internal/scrollsync"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
)

const (
	_wsWriteWait      = 10 * time.Second
	_wsPongWait       = 60 * time.Second
	_wsPingEvery      = (_wsPongWait * 9) / 10
	_wsMaxMessageSize = 1 << 20
	_wsSendBuffer     = 32
)

var _upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Pages are served from the preview servers on other ports of the same host.
	CheckOrigin: sameHostOrigin,
}

// sameHostOrigin accepts connections without an Origin, from a loopback page or from the host the hub was reached on.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := u.Hostname()
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	reached, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		reached = r.Host
	}
	return strings.EqualFold(host, reached)
}

// hub is the WebSocket server shared by every preview page.
type hub struct {
	c      *controller
	port   int
	server *http.Server

	mu       sync.Mutex
	sessions map[string]*viewer
	wg       sync.WaitGroup
}

// viewer is one connected preview page.
type viewer struct {
	id        string
	previewID string
	conn      *websocket.Conn
	send      chan outbound
	markers   *scrollsync.Index
	logger    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	uri uri.URI
}

// startHub starts the WebSocket server. c.mu must be held.
func (c *controller) startHub(bind string, port int) (*hub, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(bind, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listening for preview pages on %s: %w", bind, err)
	}

	h := &hub{
		c:        c,
		port:     ln.Addr().(*net.TCPAddr).Port,
		sessions: make(map[string]*viewer),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(_wsPath, h.serveWS)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: _readHeaderTimeout}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorw("preview websocket server stopped", zap.Error(err))
		}
	}()
	c.logger.Infow("preview websocket server started", "port", h.port)
	return h, nil
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	previewID := r.URL.Query().Get("preview")
	if _, ok := h.c.lookupPreview(previewID); !ok {
		http.Error(w, "unknown preview", http.StatusNotFound)
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	conn, err := _upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.c.logger.Debugw("upgrading preview connection", zap.Error(err))
		return
	}

	v, err := h.newViewer(previewID, conn)
	if err != nil {
		h.c.logger.Warnw("creating preview session", zap.Error(err))
		conn.Close()
		return
	}

	h.add(v)
	defer h.remove(v)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		v.write()
	}()
	h.read(v)
	v.cancel()
	<-writerDone
	conn.Close()
}

func (h *hub) newViewer(previewID string, conn *websocket.Conn) (*viewer, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	index, err := scrollsync.NewIndex(h.c.markerCacheSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(h.c.ctx)
	return &viewer{
		id:        id.String(),
		previewID: previewID,
		conn:      conn,
		send:      make(chan outbound, _wsSendBuffer),
		markers:   index,
		logger:    h.c.logger.With("viewer", id.String(), "preview", previewID),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// read handles the messages of a page until it disconnects.
func (h *hub) read(v *viewer) {
	v.conn.SetReadLimit(_wsMaxMessageSize)
	if err := v.conn.SetReadDeadline(time.Now().Add(_wsPongWait)); err != nil {
		return
	}
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(_wsPongWait))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.logger.Debugw("preview page connection lost", zap.Error(err))
			}
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			v.logger.Debugw("malformed preview message", zap.Error(err))
			continue
		}
		h.c.handleMessage(v.ctx, v, msg)
	}
}

// write sends queued messages and keeps the connection alive until the page disconnects.
func (v *viewer) write() {
	ticker := time.NewTicker(_wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			v.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(_wsWriteWait))
			return
		case out := <-v.send:
			if err := v.conn.SetWriteDeadline(time.Now().Add(_wsWriteWait)); err != nil {
				return
			}
			if err := v.conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := v.conn.SetWriteDeadline(time.Now().Add(_wsWriteWait)); err != nil {
				return
			}
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues a message for the page. Messages to a page that does not keep up are dropped.
func (v *viewer) push(out outbound) {
	select {
	case v.send <- out:
	default:
		v.logger.Warnw("preview page is not keeping up, dropping message", "method", out.Method)
	}
}

func (v *viewer) setURI(u uri.URI) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.uri = u
}

func (v *viewer) showing(u uri.URI) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.uri == u
}

func (h *hub) add(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[v.id] = v
	h.c.stats.Gauge("sessions").Update(float64(len(h.sessions)))
	v.logger.Infow("preview page connected")
}

func (h *hub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, v.id)
	h.c.stats.Gauge("sessions").Update(float64(len(h.sessions)))
	v.logger.Infow("preview page disconnected")
}

func (h *hub) viewers(match func(v *viewer) bool) []*viewer {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*viewer
	for _, v := range h.sessions {
		if match(v) {
			out = append(out, v)
		}
	}
	return out
}

// close stops accepting pages and disconnects the connected ones.
func (h *hub) close(ctx context.Context) error {
	err := h.server.Shutdown(ctx)
	for _, v := range h.viewers(func(*viewer) bool { return true }) {
		v.cancel()
		v.conn.Close()
	}
	h.wg.Wait()
	return err
}

// handleMessage applies a message received from a page.
func (c *controller) handleMessage(ctx context.Context, v *viewer, msg message) {
	switch msg.Method {
	case MethodViewOpen:
		var params viewOpenParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.URI == "" {
			v.logger.Debugw("invalid view/open", zap.Error(err))
			return
		}
		v.setURI(params.URI)
	case MethodViewMarkers:
		var params viewMarkersParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.URI == "" {
			v.logger.Debugw("invalid view/markers", zap.Error(err))
			return
		}
		v.markers.Update(string(params.URI), params.Markers)
		if v.showing("") {
			v.setURI(params.URI)
		}
	case MethodViewScroll:
		var params viewScrollParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.URI == "" || params.Offset == nil {
			v.logger.Debugw("invalid view/scroll", zap.Error(err))
			return
		}
		c.viewerScrolled(ctx, v, params.URI, *params.Offset)
	default:
		v.logger.Debugw("unknown preview message", "method", msg.Method)
	}
}
