package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/guard-imoto-core/internal/detection"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/logging"
)

// findingsChannelPrefix prefixes the channel a watcher subscribes to for one
// device, e.g. "findings.dev-1234".
const findingsChannelPrefix = "findings."

// Feed actions sent by watchers and message types sent by the server.
const (
	FeedSubscribe   = "subscribe"
	FeedUnsubscribe = "unsubscribe"

	FeedAck     = "ack"
	FeedFinding = "finding"
	FeedError   = "error"
)

const (
	// feedBacklog is how many messages may queue for one watcher before
	// further findings for it are dropped.
	feedBacklog = 64

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
	ownershipTimeout    = 5 * time.Second
)

// FindingsChannel names the channel carrying deviceID's findings.
func FindingsChannel(deviceID string) string {
	return findingsChannelPrefix + deviceID
}

// FeedRequest is a command from a watcher.
type FeedRequest struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// FeedMessage is anything the server writes to a watcher.
type FeedMessage struct {
	Type         string             `json:"type"`
	Channel      string             `json:"channel,omitempty"`
	Finding      *detection.Finding `json:"finding,omitempty"`
	Subscribed   []string           `json:"subscribed,omitempty"`
	Unsubscribed []string           `json:"unsubscribed,omitempty"`
	Rejected     []string           `json:"rejected,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Hub fans findings out to the WebSocket watchers subscribed to each
// device's channel. It implements detection.Sink.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	watchers map[*watcher]map[string]struct{}
	channels map[string]map[*watcher]struct{}
}

// watcher is one connected owner. out is never closed; gone is closed when
// the hub drops the watcher and stops its writer.
type watcher struct {
	conn   *websocket.Conn
	userID string
	out    chan []byte
	gone   chan struct{}
}

func newWatcher(conn *websocket.Conn, userID string) *watcher {
	return &watcher{
		conn:   conn,
		userID: userID,
		out:    make(chan []byte, feedBacklog),
		gone:   make(chan struct{}),
	}
}

// offer queues data without blocking. A full backlog drops it.
func (w *watcher) offer(data []byte) bool {
	select {
	case w.out <- data:
		return true
	default:
		return false
	}
}

func (w *watcher) reply(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	w.offer(data)
}

// Origin checks are left to the CORS middleware; the ticket authenticates.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		watchers: make(map[*watcher]map[string]struct{}),
		channels: make(map[string]map[*watcher]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every watcher.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		h.dropLocked(w)
		if w.conn != nil {
			w.conn.Close()
		}
	}
}

// Watchers returns the number of connected watchers.
func (h *Hub) Watchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

func (h *Hub) add(w *watcher) {
	h.mu.Lock()
	h.watchers[w] = make(map[string]struct{})
	h.mu.Unlock()
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(w)
}

// dropLocked forgets w and stops its writer. Dropping twice is a no-op.
func (h *Hub) dropLocked(w *watcher) {
	subs, ok := h.watchers[w]
	if !ok {
		return
	}
	for ch := range subs {
		h.leaveLocked(w, ch)
	}
	delete(h.watchers, w)
	close(w.gone)
}

func (h *Hub) leaveLocked(w *watcher, channel string) {
	set := h.channels[channel]
	delete(set, w)
	if len(set) == 0 {
		delete(h.channels, channel)
	}
}

func (h *Hub) subscribe(w *watcher, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.watchers[w]
	if !ok {
		return
	}
	for _, ch := range channels {
		subs[ch] = struct{}{}
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[*watcher]struct{})
		}
		h.channels[ch][w] = struct{}{}
	}
}

func (h *Hub) unsubscribe(w *watcher, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.watchers[w]
	if !ok {
		return
	}
	for _, ch := range channels {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			h.leaveLocked(w, ch)
		}
	}
}

// PublishFinding sends f to the watchers of its device's channel.
func (h *Hub) PublishFinding(f detection.Finding) {
	channel := FindingsChannel(f.DeviceID)
	data, err := json.Marshal(FeedMessage{Type: FeedFinding, Channel: channel, Finding: &f})
	if err != nil {
		h.logger.Error("encoding finding for watchers", "finding_id", f.ID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for w := range h.channels[channel] {
		if !w.offer(data) {
			h.logger.Warn("watcher backlog full, finding dropped",
				"user_id", w.userID,
				"finding_id", f.ID,
			)
		}
	}
}

// keepalive returns the ping period and the grace allowed for a pong.
func (h *Hub) keepalive() (time.Duration, time.Duration) {
	ping := time.Duration(h.cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong := time.Duration(h.cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// handleWebSocket upgrades a ticket holder to a findings watcher.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	userID, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	wt := newWatcher(conn, userID)
	s.hub.add(wt)
	s.logger.Debug("findings watcher connected", "user_id", userID, "watchers", s.hub.Watchers())

	ping, pong := s.hub.keepalive()
	go wt.writeLoop(ping, pong)
	s.readFeed(wt, ping+pong)
}

// writeLoop drains out to the connection and pings every interval.
func (w *watcher) writeLoop(interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.gone:
			//nolint:errcheck // peer may already be gone
			w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(grace))
			return
		case data := <-w.out:
			//nolint:errcheck // a failed deadline surfaces as a write error
			w.conn.SetWriteDeadline(time.Now().Add(grace))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				w.conn.Close()
				return
			}
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(grace)); err != nil {
				w.conn.Close()
				return
			}
		}
	}
}

// readFeed applies watcher commands until the connection drops. Any frame,
// pongs included, extends the read deadline by idle.
func (s *Server) readFeed(w *watcher, idle time.Duration) {
	defer func() {
		s.hub.remove(w)
		w.conn.Close()
		s.logger.Debug("findings watcher disconnected", "user_id", w.userID)
	}()

	if s.hub.cfg.MaxMessageSize > 0 {
		w.conn.SetReadLimit(int64(s.hub.cfg.MaxMessageSize))
	}
	extend := func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(idle))
	}
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend("")
	w.conn.SetPongHandler(extend)

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("findings watcher read failed", "user_id", w.userID, "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend("")

		var req FeedRequest
		if err := json.Unmarshal(data, &req); err != nil {
			w.reply(FeedMessage{Type: FeedError, Error: "invalid JSON message"})
			continue
		}
		s.applyFeedRequest(w, req)
	}
}

func (s *Server) applyFeedRequest(w *watcher, req FeedRequest) {
	switch req.Action {
	case FeedSubscribe:
		var granted, rejected []string
		for _, ch := range req.Channels {
			if s.mayWatch(w.userID, ch) {
				granted = append(granted, ch)
			} else {
				rejected = append(rejected, ch)
			}
		}
		s.hub.subscribe(w, granted)
		s.logger.Info("findings watcher subscribed",
			"user_id", w.userID,
			"channels", granted,
			"rejected", len(rejected),
		)
		w.reply(FeedMessage{Type: FeedAck, Subscribed: granted, Rejected: rejected})
	case FeedUnsubscribe:
		s.hub.unsubscribe(w, req.Channels)
		w.reply(FeedMessage{Type: FeedAck, Unsubscribed: req.Channels})
	default:
		w.reply(FeedMessage{Type: FeedError, Error: "unknown action: " + req.Action})
	}
}

// mayWatch reports whether userID owns the device behind channel.
func (s *Server) mayWatch(userID, channel string) bool {
	deviceID, ok := strings.CutPrefix(channel, findingsChannelPrefix)
	if !ok || deviceID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), ownershipTimeout)
	defer cancel()
	_, err := s.pairing.Owned(ctx, userID, deviceID)
	return err == nil
}

var _ detection.Sink = (*Hub)(nil)
