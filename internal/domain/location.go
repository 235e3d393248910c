package domain

import "time"

// Location is a stock-holding site. The ledger only reads locations.
type Location struct {
	ID        string    `bson:"_id" json:"id" db:"id"`
	Name      string    `bson:"name" json:"name" db:"name"`
	Active    bool      `bson:"active" json:"active" db:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt" db:"updated_at"`
}

// NewLocation creates an active location
func NewLocation(id, name string) *Location {
	now := time.Now().UTC()
	return &Location{
		ID:        id,
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanHoldStock reports whether mutating operations may target this location
func (l *Location) CanHoldStock() bool {
	return l != nil && l.Active
}

// Rename updates the display name
func (l *Location) Rename(name string) {
	l.Name = name
	l.UpdatedAt = time.Now().UTC()
}

// SetActive toggles whether the location accepts stock changes
func (l *Location) SetActive(active bool) {
	l.Active = active
	l.UpdatedAt = time.Now().UTC()
}
