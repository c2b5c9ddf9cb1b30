package services

import (
	"testing"
	"time"

	"farecraft/models"
	"farecraft/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)

func seg(flight string, depHour int) models.Segment {
	dep := day.Add(time.Duration(depHour) * time.Hour)
	return models.Segment{FlightNumber: flight, DepartureTime: dep, ArrivalTime: dep.Add(5 * time.Hour)}
}

func awardOffer(points int, taxes float64, segs ...models.Segment) models.RawOffer {
	return models.RawOffer{
		FareType: models.FareAward, FareClass: "MAIN", Segments: segs,
		DurationMinutes: 330, Points: points, TaxesFees: taxes, TaxesReported: true,
	}
}

func cashOffer(cash, taxes float64, segs ...models.Segment) models.RawOffer {
	return models.RawOffer{
		FareType: models.FareCash, FareClass: "MAIN", Segments: segs,
		DurationMinutes: 330, CashAmount: cash, TaxesFees: taxes, TaxesReported: true,
	}
}

func TestMatch_ComputesCPP(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	award := []models.RawOffer{awardOffer(12500, 5.6, seg("AA28", 7))}
	cash := []models.RawOffer{cashOffer(140.6, 20.1, seg("AA28", 7))}

	priced, anomalies := m.Match(award, cash, "MAIN")
	require.Len(t, priced, 1)
	assert.Empty(t, anomalies)

	p := priced[0]
	assert.Equal(t, 12500, p.PointsRequired)
	assert.Equal(t, 140.6, p.CashPriceUSD)
	assert.Equal(t, 5.6, p.TaxesFeesUSD)
	assert.Equal(t, 1.08, p.CPP)
}

func TestMatch_CashTaxesWhenAwardOmitsThem(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	a := awardOffer(10000, 0, seg("AA1", 8))
	a.TaxesReported = false

	priced, _ := m.Match([]models.RawOffer{a}, []models.RawOffer{cashOffer(200, 50, seg("AA1", 8))}, "MAIN")
	require.Len(t, priced, 1)
	assert.Equal(t, 50.0, priced[0].TaxesFeesUSD)
	assert.Equal(t, 1.5, priced[0].CPP)
}

func TestMatch_ArgumentOrderDoesNotMatter(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	award := []models.RawOffer{
		awardOffer(20000, 5.6, seg("AA10", 12)),
		awardOffer(12500, 5.6, seg("AA28", 7)),
		awardOffer(15000, 5.6, seg("AA1111", 9), seg("AA2222", 13)),
	}
	cash := []models.RawOffer{
		cashOffer(300, 20, seg("AA1111", 9), seg("AA2222", 13)),
		cashOffer(140.6, 20.1, seg("AA28", 7)),
		cashOffer(250, 20, seg("AA10", 12)),
	}

	p1, a1 := m.Match(award, cash, "MAIN")
	p2, a2 := m.Match(cash, award, "MAIN")
	assert.Equal(t, p1, p2)
	assert.Equal(t, a1, a2)
	require.Len(t, p1, 3)

	// ordered by first departure
	assert.Equal(t, "AA28", p1[0].Segments[0].FlightNumber)
	assert.Equal(t, "AA1111", p1[1].Segments[0].FlightNumber)
	assert.Equal(t, "AA10", p1[2].Segments[0].FlightNumber)
}

func TestMatch_OneSidedItinerariesExcluded(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	award := []models.RawOffer{awardOffer(12500, 5.6, seg("AA28", 7)), awardOffer(9000, 5.6, seg("AA99", 6))}
	cash := []models.RawOffer{cashOffer(140.6, 20.1, seg("AA28", 7)), cashOffer(99, 10, seg("AA77", 10))}

	priced, anomalies := m.Match(award, cash, "MAIN")
	require.Len(t, priced, 1)
	assert.Equal(t, models.KeyOf([]models.Segment{seg("AA28", 7)}), priced[0].Key)

	require.Len(t, anomalies, 2)
	byType := map[models.FareType]models.Anomaly{}
	for _, a := range anomalies {
		byType[a.FareType] = a
	}
	assert.Contains(t, string(byType[models.FareAward].Key), "AA99")
	assert.Contains(t, string(byType[models.FareCash].Key), "AA77")
}

func TestMatch_ZeroPointsExcluded(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	priced, anomalies := m.Match(
		[]models.RawOffer{awardOffer(0, 5.6, seg("AA28", 7))},
		[]models.RawOffer{cashOffer(140.6, 20.1, seg("AA28", 7))},
		"MAIN",
	)
	assert.Empty(t, priced)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "zero points required", anomalies[0].Reason)
}

func TestMatch_DuplicateKeepsFirst(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	award := []models.RawOffer{awardOffer(12500, 5.6, seg("AA28", 7)), awardOffer(50000, 5.6, seg("AA28", 7))}
	cash := []models.RawOffer{cashOffer(140.6, 20.1, seg("AA28", 7))}

	priced, anomalies := m.Match(award, cash, "MAIN")
	require.Len(t, priced, 1)
	assert.Equal(t, 12500, priced[0].PointsRequired)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.FareAward, anomalies[0].FareType)
}

func TestMatch_FiltersFareClass(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	business := awardOffer(57500, 5.6, seg("AA28", 7))
	business.FareClass = "BUSINESS"
	award := []models.RawOffer{awardOffer(12500, 5.6, seg("AA28", 7)), business}
	cash := []models.RawOffer{cashOffer(140.6, 20.1, seg("AA28", 7))}

	priced, _ := m.Match(award, cash, "")
	require.Len(t, priced, 1)
	assert.Equal(t, 12500, priced[0].PointsRequired)

	priced, _ = m.Match(award, cash, "business")
	assert.Empty(t, priced)
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := NewMatcher(utils.NewNopLogger())
	priced, anomalies := m.Match(nil, nil, "MAIN")
	assert.Empty(t, priced)
	assert.Empty(t, anomalies)
}

func TestSortOffers_TieBreaksOnCPP(t *testing.T) {
	offers := []models.PricedOffer{
		models.NewPricedOffer([]models.Segment{seg("AA2", 7)}, 300, 0, 10000, 100, 0),
		models.NewPricedOffer([]models.Segment{seg("AA1", 7)}, 300, 0, 10000, 200, 0),
	}
	SortOffers(offers)
	assert.Equal(t, 2.0, offers[0].CPP)
	assert.Equal(t, 1.0, offers[1].CPP)
}
