package pricing_test

import (
	"testing"
	"time"

	"ms-booking/internal/models"
	"ms-booking/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestPrice_WeekdayAfternoonHasNoMultipliers(t *testing.T) {
	// Tuesday 14:00
	start := at(2025, time.January, 7, 14, 0)
	b := pricing.Price(1000, start, start.Add(2*time.Hour), 0, nil)

	assert.Equal(t, models.Money(2000), b.BaseTotal)
	assert.Equal(t, 1.0, b.TimeMultiplier)
	assert.Equal(t, 1.0, b.DayMultiplier)
	assert.Equal(t, 1.0, b.DemandMultiplier)
	assert.Equal(t, models.Money(2000), b.Subtotal)
	assert.Equal(t, models.Money(2000), b.FinalPrice)
	assert.Equal(t, 2.0, b.Hours)
	assert.False(t, b.MinimumApplied)
	assert.Equal(t, "20.00", b.FinalPrice.String())
}

func TestPrice_SaturdayMorningPeak(t *testing.T) {
	start := at(2025, time.January, 11, 8, 0)
	b := pricing.Price(1000, start, start.Add(2*time.Hour), 0, nil)

	assert.Equal(t, models.Money(2000), b.BaseTotal)
	assert.Equal(t, 1.2, b.TimeMultiplier)
	assert.Equal(t, 1.15, b.DayMultiplier)
	assert.Equal(t, models.Money(2760), b.FinalPrice)
	assert.Equal(t, "27.60", b.FinalPrice.String())
}

func TestPrice_MinimumFloor(t *testing.T) {
	start := at(2025, time.January, 7, 14, 0)
	end := start.Add(10 * time.Minute)

	b := pricing.Price(300, start, end, 0, nil)
	assert.Equal(t, models.Money(50), b.Subtotal)
	assert.Equal(t, models.Money(50), b.FinalPrice)
	assert.False(t, b.MinimumApplied)

	b = pricing.Price(200, start, end, 0, nil)
	assert.Equal(t, models.Money(33), b.Subtotal)
	assert.Equal(t, models.Money(50), b.FinalPrice)
	assert.True(t, b.MinimumApplied)
}

func TestPrice_IsDeterministic(t *testing.T) {
	start := at(2025, time.March, 15, 17, 30)
	end := start.Add(95 * time.Minute)

	first := pricing.Price(1234, start, end, 1.5, nil)
	second := pricing.Price(1234, start, end, 1.5, nil)
	assert.Equal(t, first, second)
}

func TestPrice_TimeOfDayBands(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 0.9}, {5, 0.9}, {6, 1.0}, {7, 1.2}, {8, 1.2}, {9, 1.0},
		{16, 1.0}, {17, 1.2}, {18, 1.2}, {19, 1.0}, {21, 1.0}, {22, 0.9}, {23, 0.9},
	}
	for _, tt := range tests {
		start := at(2025, time.January, 7, tt.hour, 0)
		b := pricing.Price(1000, start, start.Add(time.Hour), 0, nil)
		assert.Equal(t, tt.want, b.TimeMultiplier, "hour %d", tt.hour)
	}
}

func TestPrice_UsesSpaceTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 13:00 UTC on a Tuesday is 08:00 in New York (EST)
	start := at(2025, time.January, 7, 13, 0)
	b := pricing.Price(1000, start, start.Add(time.Hour), 0, loc)
	assert.Equal(t, 1.2, b.TimeMultiplier)

	b = pricing.Price(1000, start, start.Add(time.Hour), 0, nil)
	assert.Equal(t, 1.0, b.TimeMultiplier)
}

func TestPrice_DemandMultiplier(t *testing.T) {
	start := at(2025, time.January, 7, 14, 0)
	b := pricing.Price(1000, start, start.Add(time.Hour), pricing.DemandMultiplier(0.95), nil)
	assert.Equal(t, 2.0, b.DemandMultiplier)
	assert.Equal(t, models.Money(2000), b.FinalPrice)
}

func TestDemandMultiplier_Tiers(t *testing.T) {
	assert.Equal(t, 1.0, pricing.DemandMultiplier(0))
	assert.Equal(t, 1.0, pricing.DemandMultiplier(0.49))
	assert.Equal(t, 1.2, pricing.DemandMultiplier(0.50))
	assert.Equal(t, 1.5, pricing.DemandMultiplier(0.75))
	assert.Equal(t, 1.5, pricing.DemandMultiplier(0.89))
	assert.Equal(t, 2.0, pricing.DemandMultiplier(0.90))
	assert.Equal(t, 2.0, pricing.DemandMultiplier(1))
}

func TestValidateDuration(t *testing.T) {
	start := at(2025, time.January, 7, 14, 0)

	err := pricing.ValidateDuration(start, start.Add(5*time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "minimum")

	assert.NoError(t, pricing.ValidateDuration(start, start.Add(10*time.Minute)))
	assert.NoError(t, pricing.ValidateDuration(start, start.Add(7*24*time.Hour)))

	err = pricing.ValidateDuration(start, start.Add(8*24*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum")

	err = pricing.ValidateDuration(start, start)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestMinListingRate(t *testing.T) {
	rate := pricing.MinListingRate()
	assert.Equal(t, models.Money(300), rate)

	start := at(2025, time.January, 7, 14, 0)
	b := pricing.Price(rate, start, start.Add(pricing.MinDuration), 0, nil)
	assert.False(t, b.MinimumApplied)
}
