package models

import "time"

// User is a chat user known to the bot. Users are auto-registered as
// unavailable on first contact and must be approved by the operator
// before the bot executes commands for them.
type User struct {
	ID        int64  `gorm:"primaryKey"` // numeric chat identity
	Username  string `gorm:"size:64"`
	Available bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
