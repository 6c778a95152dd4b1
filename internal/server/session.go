package server

import (
	"sync"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/gravitas-games/citybuilder/internal/network"
	"github.com/gravitas-games/citybuilder/internal/production"
	"github.com/gravitas-games/citybuilder/pkg/models"
)

// Session tracks the connected players and routes production events to
// their connections
type Session struct {
	CreatedAt time.Time

	log         *logger.L
	bus         production.EventBus
	players     map[string]*models.Player // playerID -> Player
	connections map[string]map[*Connection]bool
	mu          sync.RWMutex
}

// SessionStatus represents the current state of the session
type SessionStatus struct {
	PlayerCount     int   `json:"player_count"`
	ConnectionCount int   `json:"connection_count"`
	Uptime          int64 `json:"uptime"` // seconds
}

// NewSession creates a session publishing production events from bus
func NewSession(bus production.EventBus) *Session {
	return &Session{
		CreatedAt:   time.Now(),
		log:         logger.New("session"),
		bus:         bus,
		players:     make(map[string]*models.Player),
		connections: make(map[string]map[*Connection]bool),
	}
}

// AddPlayer registers a connection of a player. The first connection of a
// player subscribes to the player's production events.
func (s *Session) AddPlayer(player *models.Player, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.connections[player.ID]
	if !ok {
		conns = make(map[*Connection]bool)
		s.connections[player.ID] = conns
		s.bus.Subscribe(player.ID, func(e production.Event) { s.publish(player.ID, e) })
	}
	conns[conn] = true
	s.players[player.ID] = player

	s.log.Infof("player %s (%s) joined with %d connections", player.Username, player.ID, len(conns))
}

// RemovePlayer unregisters a connection. The player leaves with the last
// connection.
func (s *Session) RemovePlayer(playerID string, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.connections[playerID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) > 0 {
		return
	}
	delete(s.connections, playerID)
	if player, exists := s.players[playerID]; exists {
		s.log.Infof("player %s (%s) left", player.Username, playerID)
		delete(s.players, playerID)
	}
	s.bus.Unsubscribe(playerID)
}

// GetPlayer retrieves a player by ID
func (s *Session) GetPlayer(playerID string) (*models.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, exists := s.players[playerID]
	return player, exists
}

// GetPlayers returns all players in the session
func (s *Session) GetPlayers() []*models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]*models.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, player)
	}
	return players
}

func (s *Session) publish(playerID string, e production.Event) {
	msg := &network.ServerMessage{
		Type: network.MsgTypeProductionEvent,
		Payload: network.ProductionEventPayload{
			Event:     e.Type.String(),
			Job:       e.Job,
			Timestamp: e.Timestamp.Unix(),
			Data:      e.Data,
		},
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections[playerID] {
		conn.SendMessage(msg)
	}
}

// GetStatus returns the current session status
func (s *Session) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SessionStatus{
		PlayerCount: len(s.players),
		Uptime:      int64(time.Since(s.CreatedAt).Seconds()),
	}
	for _, conns := range s.connections {
		status.ConnectionCount += len(conns)
	}
	return status
}
