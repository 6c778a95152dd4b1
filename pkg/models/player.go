package models

import "time"

// Permission flags carried in the permissions claim
const (
	// PermissionAdmin allows adding and removing items directly
	PermissionAdmin int64 = 1 << iota
	// PermissionObserver allows reading storages but not changing them
	PermissionObserver
)

// Player represents a player in the game
type Player struct {
	// From JWT claims
	ID          string `json:"id"`          // Converted from int64 user_id
	Username    string `json:"username"`    // JWT claim
	Email       string `json:"email"`       // JWT claim
	Permissions int64  `json:"permissions"` // JWT claim: bitwise permission flags
	Activated   int64  `json:"activated"`   // JWT claim: activation timestamp or ban status
	AuthMethod  string `json:"auth_method"` // JWT claim: "password" or "oauth"

	// Connection state
	ConnectedAt time.Time `json:"connected_at"`
}

// IsActive checks if the player account is activated and not banned
func (p *Player) IsActive() bool {
	// activated > 0 means activated
	// activated == 0 means not activated
	// activated == -1 means banned
	return p.Activated > 0
}

// IsBanned checks if the player is banned
func (p *Player) IsBanned() bool {
	return p.Activated == -1
}

// Has reports whether the player holds every flag in perm
func (p *Player) Has(perm int64) bool {
	return p.Permissions&perm == perm
}

// IsAdmin checks if the player may change storages directly
func (p *Player) IsAdmin() bool {
	return p.Has(PermissionAdmin)
}

// CanModify checks if the player may move items and run production
func (p *Player) CanModify() bool {
	return p.IsActive() && !p.Has(PermissionObserver)
}
