package models

import "time"

// Breakdown is the derived, non-persisted result of pricing a window.
type Breakdown struct {
	BaseRate         Money   `json:"baseRate"`
	Hours            float64 `json:"hours"`
	BaseTotal        Money   `json:"baseTotal"`
	TimeMultiplier   float64 `json:"timeMultiplier"`
	DayMultiplier    float64 `json:"dayMultiplier"`
	DemandMultiplier float64 `json:"demandMultiplier"`
	Subtotal         Money   `json:"subtotal"`
	FinalPrice       Money   `json:"finalPrice"`
	MinimumApplied   bool    `json:"minimumApplied"`
}

type QuoteRequest struct {
	SpaceID   string    `json:"spaceId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}
