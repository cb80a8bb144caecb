package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCAD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatCAD(0))
	assert.Equal(t, "$0.05", FormatCAD(5))
	assert.Equal(t, "$1,234.50", FormatCAD(123450))
	assert.Equal(t, "$11,441.25", FormatCAD(1144125))
	assert.Equal(t, "-$75.00", FormatCAD(-7500))
	assert.Equal(t, "$175.00 CAD", FormatCADWithCode(17500))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "13%", FormatPercent(0.13))
	assert.Equal(t, "14.975%", FormatPercent(0.14975))
}
