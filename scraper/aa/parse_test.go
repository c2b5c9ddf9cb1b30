package aa

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"farecraft/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

func TestParseResponse_Award(t *testing.T) {
	parsed, err := ParseResponse(models.FareAward, fixture(t, "award.json"), 1)
	require.NoError(t, err)
	require.Len(t, parsed.Offers, 3)

	main := parsed.Offers[0]
	assert.Equal(t, models.FareAward, main.FareType)
	assert.Equal(t, "MAIN", main.FareClass)
	assert.Equal(t, 12500, main.Points)
	assert.InDelta(t, 5.6, main.TaxesFees, 1e-9)
	assert.True(t, main.TaxesReported)
	require.Len(t, main.Segments, 1)
	assert.Equal(t, "AA28", main.Segments[0].FlightNumber)
	assert.Equal(t, 330, main.DurationMinutes)

	connecting := parsed.Offers[2]
	assert.Equal(t, 1, connecting.Stops)
	require.Len(t, connecting.Segments, 2)
	assert.Equal(t, "AA2222", connecting.Segments[1].FlightNumber)
	assert.False(t, connecting.TaxesReported)

	assert.Equal(t, time.UnixMilli(4102444800000), parsed.SessionExpiry)
}

func TestParseResponse_AwardScalesByPassengers(t *testing.T) {
	parsed, err := ParseResponse(models.FareAward, fixture(t, "award.json"), 2)
	require.NoError(t, err)

	assert.Equal(t, 25000, parsed.Offers[0].Points)
	assert.InDelta(t, 11.2, parsed.Offers[0].TaxesFees, 1e-9)
}

func TestParseResponse_Cash(t *testing.T) {
	parsed, err := ParseResponse(models.FareCash, fixture(t, "cash.json"), 1)
	require.NoError(t, err)
	require.Len(t, parsed.Offers, 2)

	// groups are walked in name order
	assert.Equal(t, "BUSINESS", parsed.Offers[0].FareClass)
	assert.False(t, parsed.Offers[0].TaxesReported)

	main := parsed.Offers[1]
	assert.Equal(t, "MAIN", main.FareClass)
	assert.InDelta(t, 140.6, main.CashAmount, 1e-9)
	assert.InDelta(t, 20.1, main.TaxesFees, 1e-9)
}

func TestParseResponse_AwardAndCashShareKeys(t *testing.T) {
	award, err := ParseResponse(models.FareAward, fixture(t, "award.json"), 1)
	require.NoError(t, err)
	cash, err := ParseResponse(models.FareCash, fixture(t, "cash.json"), 1)
	require.NoError(t, err)

	assert.Equal(t, award.Offers[0].Key(), cash.Offers[1].Key())
	assert.Equal(t, models.ItineraryKey("AA28@2025-12-15T12:00:00Z"), award.Offers[0].Key())
}

func TestParseResponse_Errors(t *testing.T) {
	_, err := ParseResponse(models.FareCash, []byte("{not json"), 1)
	assert.ErrorIs(t, err, models.ErrFatal)

	_, err = ParseResponse(models.FareCash, []byte(`{"error":{"code":"309","message":"no flights"}}`), 1)
	assert.ErrorIs(t, err, models.ErrFatal)

	_, err = ParseResponse(models.FareCash, []byte(`{"slices":[{"segments":[{"legs":[{"departureDateTime":"yesterday"}]}]}]}`), 1)
	assert.ErrorIs(t, err, models.ErrFatal)
}

func TestParseResponse_EmptySlices(t *testing.T) {
	parsed, err := ParseResponse(models.FareAward, []byte(`{"slices":[]}`), 1)
	require.NoError(t, err)
	assert.Empty(t, parsed.Offers)
	assert.True(t, parsed.SessionExpiry.IsZero())
}
