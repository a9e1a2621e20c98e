package peer

import "time"

// Backoff yields reconnect delays that start at Initial, double after every
// consecutive failure, and stop growing at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// NewBackoff returns a Backoff measured in multiples of unit: 1, 2, 4, 8, 16,
// then maxUnits forever.
func NewBackoff(unit time.Duration, maxUnits int) *Backoff {
	return &Backoff{Initial: unit, Max: unit * time.Duration(maxUnits)}
}

// Next returns the delay to wait before the next attempt and advances.
func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Initial
	}
	d := b.next
	if d > b.Max {
		d = b.Max
	}
	if b.next < b.Max {
		b.next *= 2
	}
	return d
}

// Reset starts the sequence over. Called after every successful connect.
func (b *Backoff) Reset() {
	b.next = b.Initial
}
