package domain

import (
	"errors"
	"time"
)

// Tariff is the single time-based price list.
//
// The first GracePeriod is covered by Base. Every started BlockSize after that
// adds BlockRate. Elapsed time is rounded up to whole minutes.
type Tariff struct {
	Base        int64
	GracePeriod time.Duration
	BlockSize   time.Duration
	BlockRate   int64
}

// DefaultTariff is 15 for the first hour, then 5 per started 20 minutes.
func DefaultTariff() Tariff {
	return Tariff{
		Base:        15,
		GracePeriod: 60 * time.Minute,
		BlockSize:   20 * time.Minute,
		BlockRate:   5,
	}
}

// Validate rejects tariffs that would not produce a non-decreasing step function.
func (t Tariff) Validate() error {
	if t.Base < 0 || t.BlockRate <= 0 {
		return errors.New("tariff amounts must be positive")
	}
	if t.GracePeriod < 0 {
		return errors.New("tariff grace period must not be negative")
	}
	if t.BlockSize < time.Minute || t.BlockSize%time.Minute != 0 {
		return errors.New("tariff block size must be a whole number of minutes")
	}
	if t.GracePeriod%time.Minute != 0 {
		return errors.New("tariff grace period must be a whole number of minutes")
	}
	return nil
}

// ElapsedMinutes rounds now-entryAt up to whole minutes, clamped at zero.
func ElapsedMinutes(entryAt, now time.Time) int64 {
	d := now.Sub(entryAt)
	if d <= 0 {
		return 0
	}
	mins := int64(d / time.Minute)
	if d%time.Minute != 0 {
		mins++
	}
	return mins
}

// Fare computes the fee for a stay from entryAt to now.
func (t Tariff) Fare(entryAt, now time.Time) int64 {
	elapsed := ElapsedMinutes(entryAt, now)
	grace := int64(t.GracePeriod / time.Minute)
	if elapsed <= grace {
		return t.Base
	}
	block := int64(t.BlockSize / time.Minute)
	extra := elapsed - grace
	blocks := (extra + block - 1) / block
	return t.Base + blocks*t.BlockRate
}
