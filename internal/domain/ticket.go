package domain

import (
	"strings"
	"time"
)

// Ticket is one vehicle's parking session from entry to paid exit.
//
// ExitAt and Amount stay nil until the ticket is settled; both are set in the
// same write and never change afterwards.
type Ticket struct {
	ID      string
	Day     string
	Plate   string
	Vehicle Vehicle
	EntryAt time.Time
	ExitAt  *time.Time
	Settled bool
	Amount  *int64
}

// Vehicle holds the optional descriptive fields captured at entry.
type Vehicle struct {
	Brand string
	Model string
	Color string
}

// NormalizePlate trims and uppercases a plate.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Normalize trims each field; absent values stay as the empty sentinel.
func (v Vehicle) Normalize() Vehicle {
	return Vehicle{
		Brand: strings.TrimSpace(v.Brand),
		Model: strings.TrimSpace(v.Model),
		Color: strings.TrimSpace(v.Color),
	}
}

// Settle marks the ticket paid. It reports false when the ticket was already settled.
func (t *Ticket) Settle(exitAt time.Time, amount int64) bool {
	if t.Settled {
		return false
	}
	t.Settled = true
	t.ExitAt = &exitAt
	t.Amount = &amount
	return true
}
