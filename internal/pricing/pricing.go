// Package pricing computes booking prices. Everything here is pure: no I/O and
// no shared state, so identical inputs always produce identical breakdowns.
package pricing

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"ms-booking/internal/models"
)

const (
	// MinPrice is the smallest amount the processor will charge.
	MinPrice models.Money = 50

	MinDuration = 10 * time.Minute
	MaxDuration = 7 * 24 * time.Hour

	// multipliers are held in basis points so the arithmetic stays exact
	bpOne      = 10000
	bpPeak     = 12000
	bpNight    = 9000
	bpWeekend  = 11500
	bpDemand90 = 20000
	bpDemand75 = 15000
	bpDemand50 = 12000
)

// ValidateDuration rejects windows outside [MinDuration, MaxDuration].
func ValidateDuration(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end time must be after start time", models.ErrValidation)
	}
	d := end.Sub(start)
	if d < MinDuration {
		return fmt.Errorf("%w: booking must be at least %s (minimum duration), got %s", models.ErrValidation, MinDuration, d)
	}
	if d > MaxDuration {
		return fmt.Errorf("%w: booking must be at most %s (maximum duration), got %s", models.ErrValidation, MaxDuration, d)
	}
	return nil
}

// MinListingRate is the lowest hourly rate for which the shortest legal
// booking still clears MinPrice.
func MinListingRate() models.Money {
	num := int64(MinPrice) * int64(time.Hour)
	den := int64(MinDuration)
	// ceil so a listing at exactly this rate never prices under the floor
	return models.Money((num + den - 1) / den)
}

// TimeOfDayMultiplier returns the factor for the local start hour in basis points.
func TimeOfDayMultiplier(start time.Time) int64 {
	h := start.Hour()
	switch {
	case (h >= 7 && h < 9) || (h >= 17 && h < 19):
		return bpPeak
	case h >= 22 || h < 6:
		return bpNight
	default:
		return bpOne
	}
}

// DayOfWeekMultiplier returns the weekend factor in basis points.
func DayOfWeekMultiplier(start time.Time) int64 {
	switch start.Weekday() {
	case time.Saturday, time.Sunday:
		return bpWeekend
	default:
		return bpOne
	}
}

// DemandMultiplier maps a utilization ratio in [0,1] to its tier factor.
func DemandMultiplier(utilization float64) float64 {
	return bpToFloat(demandBP(utilization))
}

func demandBP(utilization float64) int64 {
	switch {
	case utilization >= 0.90:
		return bpDemand90
	case utilization >= 0.75:
		return bpDemand75
	case utilization >= 0.50:
		return bpDemand50
	default:
		return bpOne
	}
}

// Price computes the breakdown for a window at the given hourly rate. The
// time-of-day and day-of-week factors are read in loc (UTC when nil). A demand
// of zero or less means no demand signal and is treated as 1.0.
func Price(rate models.Money, start, end time.Time, demand float64, loc *time.Location) models.Breakdown {
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	duration := end.Sub(start)

	timeBP := TimeOfDayMultiplier(local)
	dayBP := DayOfWeekMultiplier(local)
	demandBP := int64(bpOne)
	if demand > 0 {
		demandBP = int64(math.Round(demand * bpOne))
	}

	// subtotal = duration/hour * rate * time * day * demand, rounded half-up to cents
	num := new(big.Int).Mul(big.NewInt(int64(duration)), big.NewInt(int64(rate)))
	num.Mul(num, big.NewInt(timeBP))
	num.Mul(num, big.NewInt(dayBP))
	num.Mul(num, big.NewInt(demandBP))
	den := new(big.Int).Mul(big.NewInt(int64(time.Hour)), big.NewInt(bpOne*bpOne*bpOne))
	subtotal := models.Money(roundHalfUp(num, den))

	baseNum := new(big.Int).Mul(big.NewInt(int64(duration)), big.NewInt(int64(rate)))
	baseTotal := models.Money(roundHalfUp(baseNum, big.NewInt(int64(time.Hour))))

	b := models.Breakdown{
		BaseRate:         rate,
		Hours:            duration.Hours(),
		BaseTotal:        baseTotal,
		TimeMultiplier:   bpToFloat(timeBP),
		DayMultiplier:    bpToFloat(dayBP),
		DemandMultiplier: bpToFloat(demandBP),
		Subtotal:         subtotal,
		FinalPrice:       subtotal,
	}
	if subtotal < MinPrice {
		b.FinalPrice = MinPrice
		b.MinimumApplied = true
	}
	return b
}

// roundHalfUp returns num/den rounded half away from zero. den must be positive.
func roundHalfUp(num, den *big.Int) int64 {
	twice := new(big.Int).Lsh(num, 1)
	if num.Sign() >= 0 {
		twice.Add(twice, den)
	} else {
		twice.Sub(twice, den)
	}
	q := new(big.Int).Quo(twice, new(big.Int).Lsh(den, 1))
	return q.Int64()
}

func bpToFloat(bp int64) float64 {
	return float64(bp) / bpOne
}
