package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"

	"github.com/bdougie/handcam/internal/annotate"
	"github.com/bdougie/handcam/internal/models"
)

const writeTimeout = 2 * time.Second

// WebSocketSink broadcasts annotated frames as binary JPEG messages to every
// connected viewer. A viewer sending the text "q" asks the loop to stop.
type WebSocketSink struct {
	upgrader websocket.Upgrader
	quality  int
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	stop   atomic.Bool
	server *http.Server
	ln     net.Listener
}

// NewWebSocketSink creates a sink with no server; mount Handler yourself or call Listen
func NewWebSocketSink(quality int, logger *slog.Logger) *WebSocketSink {
	if quality <= 0 {
		quality = 80
	}
	return &WebSocketSink{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		quality: quality,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler serves the viewer page on / and the frame socket on /ws
func (s *WebSocketSink) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Listen starts an HTTP server for Handler on addr
func (s *WebSocketSink) Listen(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("viewer server stopped", tint.Err(err))
		}
	}()
	s.logger.Info("viewer listening", "url", "http://"+ln.Addr().String()+"/")
	return nil
}

// Addr is the listening address once Listen succeeded
func (s *WebSocketSink) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Clients returns the number of connected viewers
func (s *WebSocketSink) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *WebSocketSink) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", tint.Err(err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("viewer connected", "remote", r.RemoteAddr, "viewers", n)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(message)), "q") {
			s.logger.Info("viewer requested stop", "remote", r.RemoteAddr)
			s.stop.Store(true)
		}
	}

	s.drop(conn)
}

func (s *WebSocketSink) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	n := len(s.clients)
	s.mu.Unlock()
	if ok {
		conn.Close()
		s.logger.Info("viewer disconnected", "viewers", n)
	}
}

// Show renders the frame and sends it to every viewer. Viewers that cannot keep up
// within the write timeout are dropped; that is not an error for the loop.
func (s *WebSocketSink) Show(frame models.Frame, overlay annotate.Overlay) error {
	s.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	if len(clients) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, annotate.Render(frame.Image, overlay), imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}

	for _, c := range clients {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
			s.logger.Debug("dropping viewer", tint.Err(err))
			s.drop(c)
		}
	}
	return nil
}

func (s *WebSocketSink) PollCancel() bool { return s.stop.Load() }

// Close disconnects every viewer and stops the server
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *WebSocketSink) handleIndex(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(rw, indexHTML)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>handcam</title></head>
<body style="background:#111;color:#ddd;font-family:sans-serif">
<img id="frame" alt="waiting for frames">
<p>Press q to stop the detector.</p>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.binaryType = "blob";
const img = document.getElementById("frame");
ws.onmessage = (e) => {
  const url = URL.createObjectURL(e.data);
  img.onload = () => URL.revokeObjectURL(url);
  img.src = url;
};
document.addEventListener("keydown", (e) => { if (e.key === "q") ws.send("q"); });
</script>
</body>
</html>
`
