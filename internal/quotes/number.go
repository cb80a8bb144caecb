package quotes

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefix   = "QT-"
	numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberSuffix   = 6

	// maxNumberAttempts bounds retries after a quote number collision.
	maxNumberAttempts = 3
)

// NumberGenerator produces quote numbers of the form QT-<base36 ms>-<6 alnum>.
type NumberGenerator struct {
	now  func() time.Time
	rand func(n int) (int, error)
}

// NewNumberGenerator uses the wall clock and crypto/rand.
func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{now: time.Now, rand: cryptoIntn}
}

// Next returns a new candidate number. Uniqueness is enforced by the store.
func (g *NumberGenerator) Next() (string, error) {
	ms := g.now().UnixMilli()
	var b strings.Builder
	b.WriteString(numberPrefix)
	b.WriteString(strings.ToUpper(strconv.FormatInt(ms, 36)))
	b.WriteByte('-')
	for i := 0; i < numberSuffix; i++ {
		n, err := g.rand(len(numberAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(numberAlphabet[n])
	}
	return b.String(), nil
}

func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
