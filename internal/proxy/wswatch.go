package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/manatee-project/manatee-jobs/constants"
	"github.com/manatee-project/manatee-jobs/util"
	"github.com/sirupsen/logrus"
)

const pingInterval = 3 * time.Second

var upgrade = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsMessage struct {
	data    []byte
	msgType int
}

// watchClient serializes writes to one websocket connection.
type watchClient struct {
	conn    *websocket.Conn
	message chan wsMessage
	stopCh  chan struct{}
	once    sync.Once
	log     logrus.FieldLogger
}

func newWatchClient(conn *websocket.Conn, log logrus.FieldLogger) *watchClient {
	ws := &watchClient{
		conn:    conn,
		message: make(chan wsMessage, 5),
		stopCh:  make(chan struct{}),
		log:     log,
	}
	conn.SetCloseHandler(func(code int, text string) error {
		log.Debugf("watch client sent close event, code: %d", code)
		ws.Close()
		return nil
	})
	return ws
}

func (ws *watchClient) Close() {
	ws.once.Do(func() {
		close(ws.stopCh)
		ws.conn.Close()
	})
}

func (ws *watchClient) send(msgType int, data []byte) bool {
	select {
	case ws.message <- wsMessage{data: data, msgType: msgType}:
		return true
	case <-ws.stopCh:
		return false
	}
}

func (ws *watchClient) writeMessage() {
	for {
		select {
		case msg := <-ws.message:
			if err := ws.conn.WriteMessage(msg.msgType, msg.data); err != nil {
				ws.log.Debugf("watch write failed: %v", err)
				ws.Close()
				return
			}
		case <-ws.stopCh:
			return
		}
	}
}

// readMessage drains client frames so close frames are processed.
func (ws *watchClient) readMessage() {
	for {
		if _, _, err := ws.conn.ReadMessage(); err != nil {
			ws.Close()
			return
		}
	}
}

func (ws *watchClient) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !ws.send(websocket.TextMessage, []byte(constants.PING_MSG)) {
				return
			}
		case <-ws.stopCh:
			return
		}
	}
}

// WatchJobs upgrades to a websocket and pushes the requested page every poll
// interval, starting right away.
func (s *Server) WatchJobs(c *gin.Context) {
	page, pageSize, err := pageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.ParamError, err.Error()))
		return
	}

	conn, err := upgrade.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorf("Failed upgrade watch connection, error: %v", err)
		return
	}
	ws := newWatchClient(conn, s.log)
	defer ws.Close()

	go ws.readMessage()
	go ws.writeMessage()
	go ws.keepAlive()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ws.stopCh
		cancel()
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		body, err := s.dcr.QueryJobs(ctx, page, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Errorf("Failed query jobs for watch, page: %d, page_size: %d, error: %v", page, pageSize, err)
		} else if !ws.send(websocket.TextMessage, body) {
			return
		}

		select {
		case <-ticker.C:
		case <-ws.stopCh:
			return
		}
	}
}
