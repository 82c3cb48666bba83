package domain

import (
	"time"
)

// User represents a registered user and the addresses attached to it.
type User struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Addresses []Address `json:"addresses"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PrimaryAddress returns the first address flagged as primary, if any.
func (u *User) PrimaryAddress() (*Address, bool) {
	for i := range u.Addresses {
		if u.Addresses[i].IsPrimary {
			return &u.Addresses[i], true
		}
	}
	return nil, false
}
