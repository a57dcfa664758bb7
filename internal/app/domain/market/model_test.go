package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	assert.Equal(t, 1, WindowDay.Days())
	assert.Equal(t, 7, WindowWeek.Days())
	assert.Equal(t, 30, WindowMonth.Days())
	assert.Equal(t, 90, WindowQuarter.Days())
	assert.Equal(t, 0, Window("2h").Days())

	assert.True(t, WindowWeek.Valid())
	assert.False(t, Window("").Valid())

	assert.Equal(t, time.Hour, WindowDay.Granularity())
	assert.Equal(t, 4*time.Hour, WindowWeek.Granularity())
	assert.Equal(t, 24*time.Hour, WindowMonth.Granularity())
	assert.Equal(t, 72*time.Hour, WindowQuarter.Granularity())
}

func TestCandleBullish(t *testing.T) {
	assert.True(t, Candle{Open: 1, Close: 1.5}.Bullish())
	assert.False(t, Candle{Open: 1.5, Close: 1}.Bullish())
	// Equal close and open renders as a down candle.
	assert.False(t, Candle{Open: 1, Close: 1}.Bullish())
}

func TestClassifyHolder(t *testing.T) {
	assert.Equal(t, HolderWhale, ClassifyHolder(5.1))
	assert.Equal(t, HolderLarge, ClassifyHolder(5))
	assert.Equal(t, HolderLarge, ClassifyHolder(1.2))
	assert.Equal(t, HolderMedium, ClassifyHolder(1))
	assert.Equal(t, HolderMedium, ClassifyHolder(0.2))
	assert.Equal(t, HolderSmall, ClassifyHolder(0.1))
	assert.Equal(t, HolderSmall, ClassifyHolder(0))
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := UpstreamError("fetch snapshot", cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fetch snapshot")
}
