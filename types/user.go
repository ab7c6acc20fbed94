package types

import "time"

// User is a directory identity. Users are created and maintained outside the
// chat core (admin CLI / account service); the core only looks them up.
type User struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	Username   string    `json:"username" gorm:"uniqueIndex"` // unique!
	Email      string    `json:"email" gorm:"uniqueIndex"`    // unique!
	LastOnline time.Time `json:"last_online"`
}
