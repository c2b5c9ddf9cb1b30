package aa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"farecraft/models"
)

type searchResponse struct {
	ResponseMetadata struct {
		SessionExpirationTime int64 `json:"sessionExpirationTime"`
	} `json:"responseMetadata"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Slices []apiSlice `json:"slices"`
}

type apiSlice struct {
	Hash              string                  `json:"hash"`
	DurationInMinutes int                     `json:"durationInMinutes"`
	Stops             int                     `json:"stops"`
	Segments          []apiSegment            `json:"segments"`
	ProductPricing    []apiProductPricing     `json:"productPricing"`
	ProductGroups     map[string][]apiProduct `json:"productGroups"`
}

type apiSegment struct {
	Flight struct {
		CarrierCode  string `json:"carrierCode"`
		FlightNumber string `json:"flightNumber"`
	} `json:"flight"`
	Legs []struct {
		DepartureDateTime string `json:"departureDateTime"`
		ArrivalDateTime   string `json:"arrivalDateTime"`
	} `json:"legs"`
}

type apiFare struct {
	BrandInfo struct {
		BrandCode string `json:"brandCode"`
	} `json:"brandInfo"`
}

type apiMoney struct {
	Amount float64 `json:"amount"`
}

type apiProductPricing struct {
	RegularPrice struct {
		Fares                    []apiFare `json:"fares"`
		PerPassengerAwardPoints  *int      `json:"perPassengerAwardPoints"`
		PerPassengerTaxesAndFees *apiMoney `json:"perPassengerTaxesAndFees"`
	} `json:"regularPrice"`
}

type apiProduct struct {
	Fares        []apiFare `json:"fares"`
	SlicePricing struct {
		AllPassengerDisplayTotal    *apiMoney `json:"allPassengerDisplayTotal"`
		AllPassengerDisplayTaxTotal *apiMoney `json:"allPassengerDisplayTaxTotal"`
	} `json:"slicePricing"`
}

// Parsed is one decoded search response.
type Parsed struct {
	Offers []models.RawOffer
	// SessionExpiry is the session end the API advertises, zero when absent.
	SessionExpiry time.Time
}

// looksLikeHTML spots the interstitial page the bot manager serves instead of JSON.
func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// ParseResponse decodes a search response into raw offers of the given fare type.
// Award prices are per passenger in the API, so points and taxes are scaled to the
// whole party to line up with the all-passenger cash totals.
func ParseResponse(fareType models.FareType, body []byte, passengers int) (*Parsed, error) {
	if passengers < 1 {
		passengers = 1
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.Fatal(err, "decoding %s response", fareType)
	}
	if resp.Error != nil && len(resp.Slices) == 0 {
		return nil, models.Fatal(nil, "%s search rejected: %s %s", fareType, resp.Error.Code, resp.Error.Message)
	}

	out := &Parsed{}
	if ms := resp.ResponseMetadata.SessionExpirationTime; ms > 0 {
		out.SessionExpiry = time.UnixMilli(ms)
	}

	for _, sl := range resp.Slices {
		segments, err := parseSegments(sl.Segments)
		if err != nil {
			return nil, models.Fatal(err, "decoding %s slice %s", fareType, sl.Hash)
		}
		base := models.RawOffer{
			FareType:        fareType,
			Segments:        segments,
			DurationMinutes: sl.DurationInMinutes,
			Stops:           sl.Stops,
		}
		switch fareType {
		case models.FareAward:
			out.Offers = append(out.Offers, awardOffers(base, sl, passengers)...)
		case models.FareCash:
			out.Offers = append(out.Offers, cashOffers(base, sl)...)
		}
	}
	return out, nil
}

func awardOffers(base models.RawOffer, sl apiSlice, passengers int) []models.RawOffer {
	var offers []models.RawOffer
	for _, p := range sl.ProductPricing {
		rp := p.RegularPrice
		if len(rp.Fares) == 0 || rp.PerPassengerAwardPoints == nil {
			continue
		}
		o := base
		o.FareClass = rp.Fares[0].BrandInfo.BrandCode
		o.Points = *rp.PerPassengerAwardPoints * passengers
		if rp.PerPassengerTaxesAndFees != nil {
			o.TaxesFees = rp.PerPassengerTaxesAndFees.Amount * float64(passengers)
			o.TaxesReported = true
		}
		offers = append(offers, o)
	}
	return offers
}

func cashOffers(base models.RawOffer, sl apiSlice) []models.RawOffer {
	groups := make([]string, 0, len(sl.ProductGroups))
	for g := range sl.ProductGroups {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var offers []models.RawOffer
	for _, g := range groups {
		for _, p := range sl.ProductGroups[g] {
			if len(p.Fares) == 0 || p.SlicePricing.AllPassengerDisplayTotal == nil {
				continue
			}
			o := base
			o.FareClass = p.Fares[0].BrandInfo.BrandCode
			o.CashAmount = p.SlicePricing.AllPassengerDisplayTotal.Amount
			if tax := p.SlicePricing.AllPassengerDisplayTaxTotal; tax != nil {
				o.TaxesFees = tax.Amount
				o.TaxesReported = true
			}
			offers = append(offers, o)
		}
	}
	return offers
}

func parseSegments(raw []apiSegment) ([]models.Segment, error) {
	segments := make([]models.Segment, 0, len(raw))
	for _, s := range raw {
		if len(s.Legs) == 0 {
			continue
		}
		dep, err := parseAPITime(s.Legs[0].DepartureDateTime)
		if err != nil {
			return nil, err
		}
		arr, err := parseAPITime(s.Legs[len(s.Legs)-1].ArrivalDateTime)
		if err != nil {
			return nil, err
		}
		segments = append(segments, models.Segment{
			FlightNumber:  strings.TrimSpace(s.Flight.CarrierCode + s.Flight.FlightNumber),
			DepartureTime: dep,
			ArrivalTime:   arr,
		})
	}
	return segments, nil
}

var apiTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05"}

func parseAPITime(v string) (time.Time, error) {
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
