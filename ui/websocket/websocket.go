package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	domainGroup "github.com/AzielCF/az-grouppost/domains/group"
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	"github.com/AzielCF/az-grouppost/infrastructure/valkey"
)

const (
	CodeGroupScanProgress = "GROUP_SCAN_PROGRESS"
	CodeToast             = "TOAST"
	CodeSchedulerStats    = "SCHEDULER_STATS"
	CodePostPublishing    = "POST_PUBLISHING"
)

type client struct{}

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Result   any    `json:"result"`
	SenderID string `json:"sender_id,omitempty"`
}

type Toast struct {
	Level   string `json:"level"` // info | warning | error
	Message string `json:"message"`
}

var (
	Clients    = make(map[*websocket.Conn]client)
	Register   = make(chan *websocket.Conn)
	Unregister = make(chan *websocket.Conn)
	Broadcast  = make(chan BroadcastMessage, 256)

	remote = make(chan BroadcastMessage, 64)

	vkClient *valkey.Client
	wsChan   = "grouppost:ws_broadcast"
	localID  string
)

// SetValkeyClient shares broadcasts between the rest and mcp processes.
func SetValkeyClient(client *valkey.Client, serverID string) {
	vkClient = client
	localID = serverID
	if client != nil {
		wsChan = client.Key("ws_broadcast")
	}
}

// Publish queues a message for every connected client and never blocks;
// when the hub is saturated the message is dropped.
func Publish(message BroadcastMessage) bool {
	select {
	case Broadcast <- message:
		return true
	default:
		logrus.Warnf("[WS] broadcast queue full, dropping %s", message.Code)
		return false
	}
}

func PublishToast(level, message string) {
	Publish(BroadcastMessage{Code: CodeToast, Message: message, Result: Toast{Level: level, Message: message}})
}

// ProgressNotifier forwards permission scan progress to the UI.
type ProgressNotifier struct{}

func (ProgressNotifier) OnProgress(p domainGroup.Progress) {
	Publish(BroadcastMessage{Code: CodeGroupScanProgress, Message: string(p.Phase), Result: p})
}

var _ domainGroup.ProgressObserver = ProgressNotifier{}

func handleRegister(conn *websocket.Conn) {
	Clients[conn] = client{}
	logrus.Debug("[WS] Connection registered")
}

func handleUnregister(conn *websocket.Conn) {
	delete(Clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

func broadcastToLocal(message BroadcastMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}
	for conn := range Clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			closeConnection(conn)
		}
	}
}

func publishToValkey(message BroadcastMessage) {
	message.SenderID = localID
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	cmd := vkClient.Inner().B().Publish().Channel(wsChan).Message(string(data)).Build()
	if err := vkClient.Inner().Do(context.Background(), cmd).Error(); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func startValkeySubscriber() {
	logrus.Info("[WS] Subscribing to shared broadcasts")
	go func() {
		sub := vkClient.Inner().B().Subscribe().Channel(wsChan).Build()
		err := vkClient.Inner().Receive(context.Background(), sub, func(msg valkeylib.PubSubMessage) {
			var m BroadcastMessage
			if err := json.Unmarshal([]byte(msg.Message), &m); err != nil || m.SenderID == localID {
				return
			}
			select {
			case remote <- m:
			default:
			}
		})
		if err != nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

func closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(Clients, conn)
}

// RunHub owns Clients; every write to a connection happens here.
func RunHub() {
	if vkClient != nil {
		startValkeySubscriber()
	}
	for {
		select {
		case conn := <-Register:
			handleRegister(conn)
		case conn := <-Unregister:
			handleUnregister(conn)
		case message := <-Broadcast:
			broadcastToLocal(message)
			if vkClient != nil {
				publishToValkey(message)
			}
		case message := <-remote:
			broadcastToLocal(message)
		}
	}
}

func RegisterRoutes(app fiber.Router, scheduler domainPost.IPostUsecase) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			Unregister <- conn
			_ = conn.Close()
		}()
		Register <- conn

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] read error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var m BroadcastMessage
			if err := json.Unmarshal(message, &m); err != nil {
				logrus.Debugf("[WS] unmarshal error: %v", err)
				continue
			}
			if m.Code == "FETCH_SCHEDULER_STATS" {
				Publish(BroadcastMessage{Code: CodeSchedulerStats, Message: "Scheduler stats", Result: scheduler.Stats()})
			}
		}
	}))
}
