package shared

import (
	"fmt"
	"time"
)

// BookingSlotLockKey builds the redis key guarding a measurement slot.
func BookingSlotLockKey(slot time.Time) string {
	return fmt.Sprintf("bookings:slot:%d:lock", slot.UTC().Unix())
}
