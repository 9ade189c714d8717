// Package transport delivers served frames to remote viewers over websockets
// and MJPEG.
package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/media"
	"github.com/lanikai/visionstream/internal/serve"
	"github.com/lanikai/visionstream/internal/stream"
)

var log = logging.DefaultLogger.WithTag("transport")

const (
	defaultClientBuffer = 4
	defaultWriteTimeout = time.Second
	defaultPongWait     = 60 * time.Second

	// Viewers only ever send control frames.
	maxInboundMessage = 512

	mjpegBoundary = "frame"
)

// Hub fans packets from the serving loop out to every connected viewer of the
// packet's stream. A viewer that cannot keep up loses its oldest frames.
type Hub struct {
	flows [len(stream.Types)]media.Flow

	upgrader     websocket.Upgrader
	clientBuffer int
	writeTimeout time.Duration
	pongWait     time.Duration

	// Closed by Close, to disconnect every viewer.
	done      chan struct{}
	closeOnce sync.Once
}

type HubOption func(*Hub)

// WithClientBuffer sets how many frames may be queued for one viewer.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		h.clientBuffer = n
	}
}

func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.writeTimeout = d
	}
}

// WithPongWait sets how long a silent websocket viewer is kept. Pings go out
// at nine tenths of this interval.
func WithPongWait(d time.Duration) HubOption {
	return func(h *Hub) {
		h.pongWait = d
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 256 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clientBuffer: defaultClientBuffer,
		writeTimeout: defaultWriteTimeout,
		pongWait:     defaultPongWait,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the viewer endpoints to mux.
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{type}", h.serveWebSocket)
	mux.HandleFunc("GET /mjpeg/{type}", h.serveMJPEG)
}

// Transmit implements serve.Transmitter. Packets of a stream nobody watches
// are dropped without being copied.
func (h *Hub) Transmit(p serve.Packet) error {
	flow := &h.flows[p.Type]
	if flow.Subscribers() == 0 {
		return nil
	}
	msg := AppendMessage(make([]byte, 0, HeaderSize+len(p.Data)), p)
	flow.Write(msg)
	return nil
}

// Viewers returns the number of viewers connected to stream st.
func (h *Hub) Viewers(st stream.StreamType) int {
	return h.flows[st].Subscribers()
}

// Close disconnects every viewer.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		for i := range h.flows {
			h.flows[i].Close()
		}
	})
	return nil
}

func parseStreamType(w http.ResponseWriter, r *http.Request) (stream.StreamType, bool) {
	st, err := stream.ParseStreamType(r.PathValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return 0, false
	}
	return st, true
}

func (h *Hub) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	st, ok := parseStreamType(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Warn("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	ch := h.flows[st].Subscribe(h.clientBuffer)
	log.Info("Viewer %s connected to %v stream", r.RemoteAddr, st)

	gone := make(chan struct{})
	go h.readPump(conn, gone)
	h.writePump(conn, st, ch, gone)

	missed := h.flows[st].Unsubscribe(ch)
	log.Info("Viewer %s left %v stream (%d frames missed)", r.RemoteAddr, st, missed)
}

// readPump consumes inbound messages so that pongs and close frames are
// processed. It closes gone when the connection fails.
func (h *Hub) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(maxInboundMessage)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of conn.
func (h *Hub) writePump(conn *websocket.Conn, st stream.StreamType, ch <-chan []byte, gone <-chan struct{}) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer ticker.Stop()

	// A decoder joining mid-stream cannot use anything before a keyframe.
	waitKeyframe := st.IsEncoded()

	for {
		select {
		case <-gone:
			return
		case <-h.done:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if waitKeyframe {
				if hdr, _, err := ParseMessage(msg); err != nil || !hdr.Keyframe() {
					continue
				}
				waitKeyframe = false
			}
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				log.Debug("Write to viewer failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveMJPEG streams JPEG frames as multipart/x-mixed-replace, which browsers
// render natively in an <img> element.
func (h *Hub) serveMJPEG(w http.ResponseWriter, r *http.Request) {
	st, ok := parseStreamType(w, r)
	if !ok {
		return
	}
	if st.IsEncoded() {
		http.Error(w, fmt.Sprintf("%v is not an image stream", st), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.flows[st].Subscribe(h.clientBuffer)
	log.Info("MJPEG viewer %s connected to %v stream", r.RemoteAddr, st)
	defer func() {
		missed := h.flows[st].Unsubscribe(ch)
		log.Info("MJPEG viewer %s left %v stream (%d frames missed)", r.RemoteAddr, st, missed)
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, frame, err := ParseMessage(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "--%s\r\n", mjpegBoundary)
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
