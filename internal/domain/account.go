package domain

import "time"

// Account holds a user's balance in the smallest currency unit.
// Balance is never negative after a committed operation.
type Account struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}
