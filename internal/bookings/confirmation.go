package bookings

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const confirmationAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ConfirmationNumbers produces MB-<6 digits>-<3 alnum> references. The
// digits are the low six digits of the unix millisecond clock.
type ConfirmationNumbers struct {
	now  func() time.Time
	rand func(n int) (int, error)
}

// NewConfirmationNumbers uses the wall clock and crypto/rand.
func NewConfirmationNumbers() *ConfirmationNumbers {
	return &ConfirmationNumbers{
		now: time.Now,
		rand: func(n int) (int, error) {
			v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
			if err != nil {
				return 0, err
			}
			return int(v.Int64()), nil
		},
	}
}

// Next returns a candidate confirmation number.
func (c *ConfirmationNumbers) Next() (string, error) {
	suffix := make([]byte, 3)
	for i := range suffix {
		n, err := c.rand(len(confirmationAlphabet))
		if err != nil {
			return "", err
		}
		suffix[i] = confirmationAlphabet[n]
	}
	return fmt.Sprintf("MB-%06d-%s", c.now().UnixMilli()%1_000_000, suffix), nil
}
