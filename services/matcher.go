package services

import (
	"sort"
	"strings"

	"farecraft/models"
	"farecraft/utils"
)

// DefaultFareClass is the brand compared when no other is configured.
const DefaultFareClass = "MAIN"

// Matcher joins award and cash offers for the same itinerary and prices them.
type Matcher struct {
	logger *utils.Logger
}

// NewMatcher creates a new Matcher
func NewMatcher(logger *utils.Logger) *Matcher {
	return &Matcher{logger: logger}
}

type partition struct {
	seen  *utils.KeyTracker[models.ItineraryKey]
	byKey map[models.ItineraryKey]models.RawOffer
	order []models.ItineraryKey
}

func newPartition() *partition {
	return &partition{
		seen:  utils.NewKeyTracker[models.ItineraryKey](),
		byKey: make(map[models.ItineraryKey]models.RawOffer),
	}
}

// Match prices every itinerary present in both fare types for fareClass. The two
// slices may be passed in either order; offers are partitioned by their FareType.
// Dropped itineraries are returned as anomalies.
func (m *Matcher) Match(a, b []models.RawOffer, fareClass string) ([]models.PricedOffer, []models.Anomaly) {
	if fareClass == "" {
		fareClass = DefaultFareClass
	}

	var anomalies []models.Anomaly
	parts := map[models.FareType]*partition{
		models.FareAward: newPartition(),
		models.FareCash:  newPartition(),
	}

	for _, group := range [][]models.RawOffer{a, b} {
		for _, o := range group {
			p, ok := parts[o.FareType]
			if !ok || !strings.EqualFold(o.FareClass, fareClass) || len(o.Segments) == 0 {
				continue
			}
			key := o.Key()
			if !p.seen.Add(key) {
				m.logger.Warn("Duplicate %s offer for %s, keeping the first", o.FareType, key)
				anomalies = append(anomalies, models.Anomaly{Key: key, FareType: o.FareType, Reason: "duplicate offer, first occurrence kept"})
				continue
			}
			p.byKey[key] = o
			p.order = append(p.order, key)
		}
	}

	award, cash := parts[models.FareAward], parts[models.FareCash]
	var priced []models.PricedOffer
	for _, key := range award.order {
		aw := award.byKey[key]
		c, ok := cash.byKey[key]
		if !ok {
			anomalies = append(anomalies, models.Anomaly{Key: key, FareType: models.FareAward, Reason: "no cash price for itinerary"})
			continue
		}
		if aw.Points <= 0 {
			m.logger.Warn("Skipping %s: award price has no points", key)
			anomalies = append(anomalies, models.Anomaly{Key: key, Reason: "zero points required"})
			continue
		}
		taxes := c.TaxesFees
		if aw.TaxesReported {
			taxes = aw.TaxesFees
		}
		priced = append(priced, models.NewPricedOffer(aw.Segments, aw.DurationMinutes, aw.Stops, aw.Points, c.CashAmount, taxes))
	}
	for _, key := range cash.order {
		if _, ok := award.byKey[key]; !ok {
			anomalies = append(anomalies, models.Anomaly{Key: key, FareType: models.FareCash, Reason: "no award price for itinerary"})
		}
	}

	SortOffers(priced)
	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Key != anomalies[j].Key {
			return anomalies[i].Key < anomalies[j].Key
		}
		return anomalies[i].FareType < anomalies[j].FareType
	})

	m.logger.Info("Matched %d itineraries (%d award, %d cash, %d anomalies)", len(priced), award.seen.Count(), cash.seen.Count(), len(anomalies))
	return priced, anomalies
}

// SortOffers orders by first departure, then best CPP, then key.
func SortOffers(offers []models.PricedOffer) {
	sort.Slice(offers, func(i, j int) bool {
		di, dj := offers[i].FirstDeparture(), offers[j].FirstDeparture()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if offers[i].CPP != offers[j].CPP {
			return offers[i].CPP > offers[j].CPP
		}
		return offers[i].Key < offers[j].Key
	})
}
