package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The dashboard runs on its own origin
	},
}

var (
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// HandleLogStream upgrades to a websocket and streams agent log lines: the
// buffered history first, then live lines until the client disconnects.
func HandleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to upgrade log stream connection")
		return
	}
	defer conn.Close()

	b := logging.GetBroadcaster()
	id, lines, history := b.Subscribe()
	defer func() {
		if dropped := b.Unsubscribe(id); dropped > 0 {
			log.Debug().Int("dropped", dropped).Msg("Log stream subscriber missed lines")
		}
	}()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, line := range history {
		if err := writeLine(conn, line); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeLine(conn, line); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeLine(conn *websocket.Conn, line string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}
