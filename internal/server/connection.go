package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/gravitas-games/citybuilder/internal/depot"
	"github.com/gravitas-games/citybuilder/internal/network"
	"github.com/gravitas-games/citybuilder/internal/production"
	"github.com/gravitas-games/citybuilder/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Time allowed for the depot to run a command
	commandTimeout = 5 * time.Second
)

// Connection represents a WebSocket connection to an authenticated player
type Connection struct {
	ws      *websocket.Conn
	server  *Server
	player  *models.Player
	limiter *rate.Limiter

	// Buffered channel for outbound messages. It is never closed; the write
	// pump stops with ctx.
	send chan []byte

	// ctx lives as long as the connection. Deliveries started by the
	// player are bound to it and released when it ends.
	ctx    context.Context
	cancel context.CancelFunc

	watchMu sync.Mutex
	watches map[string]func()

	closeOnce sync.Once
}

// NewConnection creates a new connection
func NewConnection(ws *websocket.Conn, server *Server, player *models.Player) *Connection {
	ctx, cancel := context.WithCancel(server.ctx)
	return &Connection{
		ws:      ws,
		server:  server,
		player:  player,
		limiter: rate.NewLimiter(rate.Limit(server.config.Server.CommandRate), server.config.Server.CommandBurst),
		send:    make(chan []byte, 256),
		ctx:     ctx,
		cancel:  cancel,
		watches: make(map[string]func()),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the depot
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warnf("websocket read error: %s", err)
			}
			return
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.SendError("", network.ErrCodeInvalidMessage, "Failed to parse message")
			continue
		}
		if !c.limiter.Allow() {
			c.SendError(clientMsg.ID, network.ErrCodeRateLimited, "Too many commands")
			continue
		}
		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.log.Debugf("websocket write error: %s", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	switch msg.Type {
	case network.MsgTypePing:
		c.reply(msg, network.MsgTypePong, map[string]interface{}{"timestamp": time.Now().Unix()})
	case network.MsgTypeStorageList:
		c.handleStorageList(msg)
	case network.MsgTypeStorageStatus:
		c.handleStorageStatus(msg)
	case network.MsgTypeStorageWatch:
		c.handleStorageWatch(msg)
	case network.MsgTypeStorageAdd:
		c.handleStorageAdd(msg)
	case network.MsgTypeStorageRemove:
		c.handleStorageRemove(msg)
	case network.MsgTypeStorageMove:
		c.handleStorageMove(msg)
	case network.MsgTypeDeliveryStart:
		c.handleDeliveryStart(msg)
	case network.MsgTypeDeliveryCancel:
		c.handleDeliveryCancel(msg)
	case network.MsgTypeProductionStart:
		c.handleProductionStart(msg)
	case network.MsgTypeProductionCancel:
		c.handleProductionCancel(msg)
	default:
		c.SendError(msg.ID, network.ErrCodeUnknownType, "Unknown message type")
	}
}

// decode parses a message payload, replying with an error on failure
func decode[T any](c *Connection, msg *network.ClientMessage) (T, bool) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.SendError(msg.ID, network.ErrCodeInvalidMessage, "Invalid payload")
		return payload, false
	}
	return payload, true
}

// do runs fn on the depot goroutine, replying with an error on failure
func (c *Connection) do(msg *network.ClientMessage, fn func(*depot.World) error) bool {
	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()
	if err := c.server.depot.Do(ctx, fn); err != nil {
		c.SendError(msg.ID, errorCode(err), err.Error())
		return false
	}
	return true
}

// mayModify replies with an error unless the player may change storages
func (c *Connection) mayModify(msg *network.ClientMessage, admin bool) bool {
	if (admin && !c.player.IsAdmin()) || !c.player.CanModify() {
		c.SendError(msg.ID, network.ErrCodeForbidden, "Not permitted")
		return false
	}
	return true
}

func (c *Connection) handleStorageList(msg *network.ClientMessage) {
	var list []depot.StorageStatus
	if c.do(msg, func(w *depot.World) error {
		list = w.StatusAll()
		return nil
	}) {
		c.reply(msg, network.MsgTypeStorageList, network.StorageListPayload{Storages: list})
	}
}

func (c *Connection) handleStorageStatus(msg *network.ClientMessage) {
	p, ok := decode[network.StoragePayload](c, msg)
	if !ok {
		return
	}
	var status depot.StorageStatus
	if c.do(msg, func(w *depot.World) (err error) {
		status, err = w.Status(p.Storage)
		return err
	}) {
		c.reply(msg, network.MsgTypeStorageStatus, status)
	}
}

func (c *Connection) handleStorageWatch(msg *network.ClientMessage) {
	p, ok := decode[network.WatchPayload](c, msg)
	if !ok {
		return
	}

	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if stop, watching := c.watches[p.Storage]; watching {
		if !p.Stop {
			c.reply(msg, network.MsgTypeStorageWatch, p)
			return
		}
		if c.do(msg, func(*depot.World) error { stop(); return nil }) {
			delete(c.watches, p.Storage)
			c.reply(msg, network.MsgTypeStorageWatch, p)
		}
		return
	}
	if p.Stop {
		c.reply(msg, network.MsgTypeStorageWatch, p)
		return
	}

	var status depot.StorageStatus
	if c.do(msg, func(w *depot.World) error {
		stop, err := w.Watch(p.Storage, func(st depot.StorageStatus) {
			if c.ctx.Err() != nil {
				return
			}
			c.SendMessage(&network.ServerMessage{Type: network.MsgTypeStorageChanged, Payload: st})
		})
		if err != nil {
			return err
		}
		c.watches[p.Storage] = stop
		status, _ = w.Status(p.Storage)
		return nil
	}) {
		c.reply(msg, network.MsgTypeStorageStatus, status)
	}
}

func (c *Connection) handleStorageAdd(msg *network.ClientMessage) {
	p, ok := decode[network.StorageAddPayload](c, msg)
	if !ok || !c.mayModify(msg, true) {
		return
	}
	var rejected int
	if c.do(msg, func(w *depot.World) (err error) {
		rejected, err = w.Add(c.ctx, p.Storage, p.Item, p.Quantity, p.Capped)
		return err
	}) {
		c.reply(msg, network.MsgTypeStorageResult, network.StorageResultPayload{
			Storage:   p.Storage,
			Item:      p.Item,
			Requested: p.Quantity,
			Applied:   p.Quantity - rejected,
		})
	}
}

func (c *Connection) handleStorageRemove(msg *network.ClientMessage) {
	p, ok := decode[network.StorageRemovePayload](c, msg)
	if !ok || !c.mayModify(msg, true) {
		return
	}
	var left int
	if c.do(msg, func(w *depot.World) (err error) {
		left, err = w.Remove(c.ctx, p.Storage, p.Item, p.Quantity)
		return err
	}) {
		c.reply(msg, network.MsgTypeStorageResult, network.StorageResultPayload{
			Storage:   p.Storage,
			Item:      p.Item,
			Requested: p.Quantity,
			Applied:   p.Quantity - left,
		})
	}
}

func (c *Connection) handleStorageMove(msg *network.ClientMessage) {
	p, ok := decode[network.TransferPayload](c, msg)
	if !ok || !c.mayModify(msg, false) {
		return
	}
	var moved int
	if c.do(msg, func(w *depot.World) (err error) {
		moved, err = w.Move(c.ctx, p.From, p.To, p.Item, p.Quantity)
		return err
	}) {
		c.reply(msg, network.MsgTypeStorageResult, network.StorageResultPayload{
			Storage:   p.From,
			To:        p.To,
			Item:      p.Item,
			Requested: p.Quantity,
			Applied:   moved,
		})
	}
}

func (c *Connection) handleDeliveryStart(msg *network.ClientMessage) {
	p, ok := decode[network.TransferPayload](c, msg)
	if !ok || !c.mayModify(msg, false) {
		return
	}
	var d depot.Delivery
	if c.do(msg, func(w *depot.World) (err error) {
		d, err = w.StartDelivery(c.ctx, c.player.ID, p.From, p.To, p.Item, p.Quantity)
		return err
	}) {
		c.reply(msg, network.MsgTypeDeliveryStarted, d)
	}
}

func (c *Connection) handleDeliveryCancel(msg *network.ClientMessage) {
	p, ok := decode[network.DeliveryCancelPayload](c, msg)
	if !ok {
		return
	}
	actor := c.player.ID
	if c.player.IsAdmin() {
		actor = ""
	}
	if c.do(msg, func(w *depot.World) error { return w.CancelDelivery(actor, p.ID) }) {
		c.reply(msg, network.MsgTypeDeliveryCancelled, p)
	}
}

func (c *Connection) handleProductionStart(msg *network.ClientMessage) {
	p, ok := decode[network.ProductionStartPayload](c, msg)
	if !ok || !c.mayModify(msg, false) {
		return
	}
	var job *production.Job
	if c.do(msg, func(w *depot.World) (err error) {
		job, err = w.StartProduction(c.player.ID, p.Storage, p.Recipe, p.Repeat)
		return err
	}) {
		c.reply(msg, network.MsgTypeProductionStarted, job)
	}
}

func (c *Connection) handleProductionCancel(msg *network.ClientMessage) {
	p, ok := decode[network.ProductionCancelPayload](c, msg)
	if !ok {
		return
	}
	actor := c.player.ID
	if c.player.IsAdmin() {
		actor = ""
	}
	if c.do(msg, func(w *depot.World) error { return w.CancelProduction(actor, p.Job, p.Refund) }) {
		c.reply(msg, network.MsgTypeProductionCancelled, p)
	}
}

// errorCode maps depot errors to protocol error codes
func errorCode(err error) string {
	switch {
	case errors.Is(err, depot.ErrUnknownStorage),
		errors.Is(err, depot.ErrUnknownItem),
		errors.Is(err, depot.ErrUnknownDelivery),
		errors.Is(err, production.ErrJobNotFound),
		errors.Is(err, production.ErrRecipeNotFound):
		return network.ErrCodeNotFound
	case errors.Is(err, depot.ErrNotOwner):
		return network.ErrCodeForbidden
	case errors.Is(err, depot.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return network.ErrCodeUnavailable
	default:
		return network.ErrCodeRejected
	}
}

// reply answers a client message
func (c *Connection) reply(msg *network.ClientMessage, msgType string, payload interface{}) {
	c.SendMessage(&network.ServerMessage{ID: msg.ID, Type: msgType, Payload: payload})
}

// stopWatches removes the connection's storage listeners on the depot
// goroutine. Entries are kept when the depot cannot be reached in time.
func (c *Connection) stopWatches(ctx context.Context) error {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if len(c.watches) == 0 {
		return nil
	}
	stops := make([]func(), 0, len(c.watches))
	for _, stop := range c.watches {
		stops = append(stops, stop)
	}
	err := c.server.depot.Do(ctx, func(*depot.World) error {
		for _, stop := range stops {
			stop()
		}
		return nil
	})
	if err != nil {
		return err
	}
	clear(c.watches)
	return nil
}

// SendMessage queues a message for the client. Messages are dropped when
// the client does not keep up.
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.log.Errorf("failed to marshal message: %s", err)
		return
	}

	select {
	case c.send <- data:
	default:
		c.server.log.Warnf("send buffer full for %s, dropping %s", c.player.ID, msg.Type)
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(id, code, message string) {
	c.SendMessage(&network.ServerMessage{
		ID:   id,
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close stops the connection's watches, releases its deliveries and closes
// the socket. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.server.session.RemovePlayer(c.player.ID, c)

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := c.stopWatches(ctx); err != nil {
			c.server.log.Warnf("stopping watches of %s: %s", c.player.ID, err)
		}
		cancel()

		// deliveries bound to ctx are released on the next depot tick
		c.cancel()
		c.ws.Close()
	})
}
