package models

import (
	"fmt"
	"time"
)

// SearchMetadata echoes the search parameters in the result artifact.
type SearchMetadata struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Passengers  int    `json:"passengers"`
	CabinClass  string `json:"cabin_class"`
}

// FlightSegment is the artifact form of a Segment (local clock times, HH:MM).
type FlightSegment struct {
	FlightNumber  string `json:"flight_number"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
}

// Flight is one priced itinerary in the result artifact.
type Flight struct {
	IsNonstop      bool            `json:"is_nonstop"`
	Segments       []FlightSegment `json:"segments"`
	TotalDuration  string          `json:"total_duration"`
	PointsRequired int             `json:"points_required"`
	CashPriceUSD   float64         `json:"cash_price_usd"`
	TaxesFeesUSD   float64         `json:"taxes_fees_usd"`
	CPP            float64         `json:"cpp"`
}

// ScrapeResult is the externally consumed output of one pipeline run.
// Field names are a contract with downstream consumers.
type ScrapeResult struct {
	SearchMetadata SearchMetadata `json:"search_metadata"`
	Flights        []Flight       `json:"flights"`
	TotalResults   int            `json:"total_results"`
}

// NewScrapeResult builds the artifact from matched offers, preserving their order.
func NewScrapeResult(params SearchParams, offers []PricedOffer) *ScrapeResult {
	flights := make([]Flight, 0, len(offers))
	for _, o := range offers {
		flights = append(flights, FlightFromOffer(o))
	}
	return &ScrapeResult{
		SearchMetadata: SearchMetadata{
			Origin:      params.Origin,
			Destination: params.Destination,
			Date:        params.Date,
			Passengers:  params.Passengers,
			CabinClass:  params.CabinClass,
		},
		Flights:      flights,
		TotalResults: len(flights),
	}
}

// FlightFromOffer converts a PricedOffer to its artifact form.
func FlightFromOffer(o PricedOffer) Flight {
	segs := make([]FlightSegment, 0, len(o.Segments))
	for _, s := range o.Segments {
		segs = append(segs, FlightSegment{
			FlightNumber:  s.FlightNumber,
			DepartureTime: clock(s.DepartureTime),
			ArrivalTime:   clock(s.ArrivalTime),
		})
	}
	return Flight{
		IsNonstop:      o.Stops == 0,
		Segments:       segs,
		TotalDuration:  FormatDuration(o.DurationMinutes),
		PointsRequired: o.PointsRequired,
		CashPriceUSD:   o.CashPriceUSD,
		TaxesFeesUSD:   o.TaxesFeesUSD,
		CPP:            o.CPP,
	}
}

// FormatDuration renders minutes as "5h 30m".
func FormatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04")
}

// AverageCPP is the mean CPP across flights, 0 for an empty result.
func (r *ScrapeResult) AverageCPP() float64 {
	if r == nil || len(r.Flights) == 0 {
		return 0
	}
	var total float64
	for _, f := range r.Flights {
		total += f.CPP
	}
	return total / float64(len(r.Flights))
}
