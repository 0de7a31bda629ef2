package changefeed

import (
	"net/http"

	"github.com/gorilla/websocket"

	"backtest-orchestrator/internal/logging"
)

// Upgrader is the shared websocket upgrader for the optional push
// transport; CORS is open at the HTTP layer so the origin check is
// permissive here too.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket subscribes to feed and writes every update (starting
// with the latest-on-subscribe value) to conn as JSON text frames until
// the connection errors or closes. Intended to run for the lifetime of
// one upgraded connection.
func ServeWebSocket(conn *websocket.Conn, feed *Feed, log *logging.Logger) {
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("changefeed.websocket")
	defer conn.Close()

	id, ch, initial := feed.Subscribe()
	defer feed.Unsubscribe(id)

	if err := conn.WriteJSON(initial); err != nil {
		return
	}
	for update := range ch {
		if err := conn.WriteJSON(update); err != nil {
			log.Debug("changefeed: websocket write failed, dropping subscriber", "error", err)
			return
		}
	}
}
