package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeE164(t *testing.T) {
	got, err := NormalizeE164("(613) 555-0199")
	require.NoError(t, err)
	assert.Equal(t, "+16135550199", got)

	got, err = NormalizeE164("  ")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NormalizeE164("12")
	assert.ErrorIs(t, err, ErrInvalid)
}
