package bybit

import (
	"testing"

	"stoplossbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalCode(t *testing.T) {
	code, err := intervalCode(models.CandleIntervalHour)
	require.NoError(t, err)
	assert.Equal(t, "60", code)

	code, err = intervalCode(models.CandleIntervalDay)
	require.NoError(t, err)
	assert.Equal(t, "D", code)

	_, err = intervalCode(models.CandleInterval10Min)
	assert.Error(t, err)
}

func TestSupportsInterval(t *testing.T) {
	assert.NoError(t, SupportsInterval(models.CandleInterval1Min))
	assert.NoError(t, SupportsInterval(models.CandleIntervalMonth))
	assert.Error(t, SupportsInterval(models.CandleInterval2Min))
	assert.Error(t, SupportsInterval(models.CandleInterval10Min))
}
