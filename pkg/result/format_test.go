package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "123.45", FormatMillis(0.12345))
	assert.Equal(t, "123.40", FormatMillis(0.1234))
	assert.Equal(t, "0.00", FormatMillis(0))
	assert.Equal(t, "1500.00", FormatMillis(1.5))
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "512.00", FormatFixed(512))
	assert.Equal(t, "33.33", FormatFixed(100.0/3))
	assert.Equal(t, "0.00", FormatFixed(-0.001))
}

func TestFormatTimestamp_UTC(t *testing.T) {
	assert.Equal(t, "1970-01-01T00:00:00Z", FormatTimestamp(0))
	assert.Equal(t, "2023-11-14T22:13:20Z", FormatTimestamp(1700000000))
	// sub-second precision is dropped
	assert.Equal(t, "2023-11-14T22:13:20Z", FormatTimestamp(1700000000.987))
}
