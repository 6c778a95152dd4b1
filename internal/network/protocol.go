package network

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/gravitas-games/citybuilder/internal/depot"
	"github.com/gravitas-games/citybuilder/internal/production"
)

// Message types - Client → Server
const (
	MsgTypeStorageList      = "storage.list"
	MsgTypeStorageStatus    = "storage.status"
	MsgTypeStorageAdd       = "storage.add"
	MsgTypeStorageRemove    = "storage.remove"
	MsgTypeStorageMove      = "storage.move"
	MsgTypeStorageWatch     = "storage.watch"
	MsgTypeDeliveryStart    = "delivery.start"
	MsgTypeDeliveryCancel   = "delivery.cancel"
	MsgTypeProductionStart  = "production.start"
	MsgTypeProductionCancel = "production.cancel"
	MsgTypePing             = "ping"
)

// Message types - Server → Client
const (
	MsgTypeWelcome             = "welcome"
	MsgTypeStorageResult       = "storage.result"
	MsgTypeStorageChanged      = "storage.changed"
	MsgTypeDeliveryStarted     = "delivery.started"
	MsgTypeDeliveryCancelled   = "delivery.cancelled"
	MsgTypeProductionStarted   = "production.started"
	MsgTypeProductionEvent     = "production.event"
	MsgTypeProductionCancelled = "production.cancelled"
	MsgTypeError               = "error"
	MsgTypePong                = "pong"
)

// Error codes
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeUnknownType    = "unknown_message_type"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeForbidden      = "forbidden"
	ErrCodeNotFound       = "not_found"
	ErrCodeRejected       = "rejected"
	ErrCodeUnavailable    = "unavailable"
)

// ClientMessage represents any message from client to server. ID is
// echoed on the reply so clients can match requests and responses.
type ClientMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// StoragePayload names a storage
type StoragePayload struct {
	Storage string `json:"storage"`
}

// StorageAddPayload adds items to a storage (admin only)
type StorageAddPayload struct {
	Storage  string `json:"storage"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Capped   bool   `json:"capped"`
}

// StorageRemovePayload removes items from a storage (admin only)
type StorageRemovePayload struct {
	Storage  string `json:"storage"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// TransferPayload moves items between storages, immediately for
// storage.move or by carrier for delivery.start. An empty item moves the
// first available item.
type TransferPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// WatchPayload starts or stops change notifications for a storage
type WatchPayload struct {
	Storage string `json:"storage"`
	Stop    bool   `json:"stop"`
}

// DeliveryCancelPayload cancels a delivery
type DeliveryCancelPayload struct {
	ID uuid.UUID `json:"id"`
}

// ProductionStartPayload starts a recipe in a storage
type ProductionStartPayload struct {
	Storage string              `json:"storage"`
	Recipe  production.RecipeID `json:"recipe"`
	Repeat  bool                `json:"repeat"`
}

// ProductionCancelPayload cancels a production job
type ProductionCancelPayload struct {
	Job    production.JobID `json:"job"`
	Refund bool             `json:"refund"`
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	PlayerID string   `json:"player_id"`
	Username string   `json:"username"`
	Admin    bool     `json:"admin"`
	Tick     uint64   `json:"tick"`
	Storages []string `json:"storages"`
	Items    []string `json:"items"`
}

// StorageListPayload lists every storage
type StorageListPayload struct {
	Storages []depot.StorageStatus `json:"storages"`
}

// StorageResultPayload reports the outcome of add, remove and move
type StorageResultPayload struct {
	Storage   string `json:"storage,omitempty"`
	To        string `json:"to,omitempty"`
	Item      string `json:"item"`
	Requested int    `json:"requested"`
	Applied   int    `json:"applied"`
}

// ProductionEventPayload forwards a production job event
type ProductionEventPayload struct {
	Event     string          `json:"event"`
	Job       *production.Job `json:"job"`
	Timestamp int64           `json:"timestamp"` // Unix timestamp
	Data      map[string]any  `json:"data,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
