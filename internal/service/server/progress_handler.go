package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleProgressStream pushes job snapshots over a websocket until the
// client goes away. /ws/progress?job=<id> streams a single job.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	jobID := r.URL.Query().Get("job")
	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ticker := time.NewTicker(s.config.ProgressInterval)
	defer ticker.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		if err := s.pushSnapshots(conn, jobID); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
		select {
		case <-closed:
			return
		case <-s.jobCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(wsWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-ticker.C:
		}
	}
}

func (s *Server) pushSnapshots(conn *websocket.Conn, jobID string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if jobID == "" {
		return conn.WriteJSON(s.jobs.Registry().List())
	}
	h, ok := s.jobs.Registry().Get(jobID)
	if !ok {
		return conn.WriteJSON(map[string]string{"error": "job not found", "id": jobID})
	}
	return conn.WriteJSON(h.Snapshot())
}

// readUntilClosed drains client frames so pongs and close frames are seen
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
