package models

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// FareType selects which pricing mode a request queries.
type FareType string

const (
	FareAward FareType = "award"
	FareCash  FareType = "cash"
)

// SearchType is the value the booking API expects for this fare type.
func (f FareType) SearchType() string {
	if f == FareAward {
		return "Award"
	}
	return "Revenue"
}

var (
	airportRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	cabinClasses = map[string]bool{"economy": true, "business": true, "first": true}
)

// SearchParams identifies one route/date/passenger search.
type SearchParams struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Passengers  int    `json:"passengers"`
	CabinClass  string `json:"cabin_class"`
}

// Normalize upper-cases airport codes and fills defaults.
func (p SearchParams) Normalize() SearchParams {
	p.Origin = strings.ToUpper(strings.TrimSpace(p.Origin))
	p.Destination = strings.ToUpper(strings.TrimSpace(p.Destination))
	p.Date = strings.TrimSpace(p.Date)
	if p.Passengers == 0 {
		p.Passengers = 1
	}
	p.CabinClass = strings.ToLower(strings.TrimSpace(p.CabinClass))
	if p.CabinClass == "" {
		p.CabinClass = "economy"
	}
	return p
}

// Validate rejects parameters the booking API would refuse.
func (p SearchParams) Validate() error {
	if !airportRegex.MatchString(p.Origin) {
		return Fatal(nil, "invalid origin %q", p.Origin)
	}
	if !airportRegex.MatchString(p.Destination) {
		return Fatal(nil, "invalid destination %q", p.Destination)
	}
	if p.Origin == p.Destination {
		return Fatal(nil, "origin and destination are both %s", p.Origin)
	}
	if _, err := time.Parse("2006-01-02", p.Date); err != nil {
		return Fatal(err, "invalid date %q", p.Date)
	}
	if p.Passengers < 1 || p.Passengers > 9 {
		return Fatal(nil, "passengers must be between 1 and 9, got %d", p.Passengers)
	}
	if !cabinClasses[p.CabinClass] {
		return Fatal(nil, "unknown cabin class %q", p.CabinClass)
	}
	return nil
}

// Segment is one flight leg group as the API reports it.
type Segment struct {
	FlightNumber  string    `json:"flight_number"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
}

// RawOffer is one itinerary as returned by a single fare-type request.
type RawOffer struct {
	FareType        FareType
	Segments        []Segment
	DurationMinutes int
	Stops           int
	FareClass       string
	Points          int
	CashAmount      float64
	TaxesFees       float64
	TaxesReported   bool
}

// ItineraryKey is the join key shared by award and cash offers for the same flights.
type ItineraryKey string

// KeyOf derives the canonical key from the ordered segment list.
func KeyOf(segments []Segment) ItineraryKey {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = strings.ToUpper(strings.TrimSpace(s.FlightNumber)) + "@" + s.DepartureTime.UTC().Format(time.RFC3339)
	}
	return ItineraryKey(strings.Join(parts, "|"))
}

// Key derives the offer's ItineraryKey.
func (o RawOffer) Key() ItineraryKey {
	return KeyOf(o.Segments)
}

// FirstDeparture is the departure of the first segment, zero when there are none.
func (o RawOffer) FirstDeparture() time.Time {
	if len(o.Segments) == 0 {
		return time.Time{}
	}
	return o.Segments[0].DepartureTime
}

// PricedOffer is a matched itinerary carrying both prices and the derived CPP.
type PricedOffer struct {
	Key             ItineraryKey
	Segments        []Segment
	DurationMinutes int
	Stops           int
	PointsRequired  int
	CashPriceUSD    float64
	TaxesFeesUSD    float64
	CPP             float64
}

// NewPricedOffer computes CPP from the inputs. Callers must exclude zero points first.
func NewPricedOffer(segments []Segment, durationMinutes, stops, points int, cash, taxes float64) PricedOffer {
	segs := make([]Segment, len(segments))
	copy(segs, segments)
	return PricedOffer{
		Key:             KeyOf(segs),
		Segments:        segs,
		DurationMinutes: durationMinutes,
		Stops:           stops,
		PointsRequired:  points,
		CashPriceUSD:    cash,
		TaxesFeesUSD:    taxes,
		CPP:             CentsPerPoint(cash, taxes, points),
	}
}

// CentsPerPoint = (cash - taxes) / points * 100, rounded to two places. Zero points yields 0.
func CentsPerPoint(cash, taxes float64, points int) float64 {
	if points == 0 {
		return 0
	}
	return math.Round((cash-taxes)/float64(points)*100*100) / 100
}

// FirstDeparture is the departure of the first segment.
func (p PricedOffer) FirstDeparture() time.Time {
	if len(p.Segments) == 0 {
		return time.Time{}
	}
	return p.Segments[0].DepartureTime
}

// Anomaly records an itinerary dropped during matching.
type Anomaly struct {
	Key      ItineraryKey `json:"key"`
	FareType FareType     `json:"fare_type,omitempty"`
	Reason   string       `json:"reason"`
}

func (a Anomaly) String() string {
	if a.FareType != "" {
		return fmt.Sprintf("%s [%s]: %s", a.Key, a.FareType, a.Reason)
	}
	return fmt.Sprintf("%s: %s", a.Key, a.Reason)
}
