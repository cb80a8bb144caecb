// Package phone normalises customer phone numbers.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "CA"

// ErrInvalid is returned for numbers that cannot be dialled.
var ErrInvalid = errors.New("phone: invalid number")

// NormalizeE164 parses input as a North American number unless it carries a
// country code and formats it as E.164. Empty input yields an empty string.
func NormalizeE164(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}
	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}
