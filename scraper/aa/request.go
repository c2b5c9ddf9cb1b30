package aa

import (
	"encoding/json"
	"net/http"
	"strings"

	"farecraft/models"
)

// Cookie names the booking API cross-checks against request headers.
const (
	CookieSessionID = "spa_session_id"
	CookieXSRF      = "XSRF-TOKEN"
	CookieDynatrace = "dtPC"
)

// DeriveHeaders builds the anti-tamper headers from the token set. The API rejects a
// request whose x-cid / x-xsrf-token do not echo the cookies, so a set lacking either
// is reported as AuthExpired.
func DeriveHeaders(ts models.TokenSet) (http.Header, error) {
	cid := ts.Get(CookieSessionID)
	xsrf := ts.Get(CookieXSRF)
	var missing []string
	if cid == "" {
		missing = append(missing, CookieSessionID)
	}
	if xsrf == "" {
		missing = append(missing, CookieXSRF)
	}
	if len(missing) > 0 {
		return nil, models.AuthExpired(nil, "token set lacks %s", strings.Join(missing, ", "))
	}

	h := http.Header{}
	h.Set("x-cid", cid)
	h.Set("x-xsrf-token", xsrf)
	if dt := ts.Get(CookieDynatrace); dt != "" {
		h.Set("x-dtpc", dt)
	}
	return h, nil
}

// RequestSpec describes one logical search request. It is immutable once built.
type RequestSpec struct {
	fareType models.FareType
	params   models.SearchParams
	headers  http.Header
	cookies  map[string]string
}

// NewRequestSpec derives headers and cookies from ts for one fare type.
func NewRequestSpec(fareType models.FareType, params models.SearchParams, ts models.TokenSet) (RequestSpec, error) {
	headers, err := DeriveHeaders(ts)
	if err != nil {
		return RequestSpec{}, err
	}
	return RequestSpec{
		fareType: fareType,
		params:   params,
		headers:  headers,
		cookies:  ts.Clone().Values,
	}, nil
}

func (s RequestSpec) FareType() models.FareType   { return s.fareType }
func (s RequestSpec) Params() models.SearchParams { return s.params }
func (s RequestSpec) Headers() http.Header        { return s.headers.Clone() }

// Build renders the spec as a transport Request against endpoint.
func (s RequestSpec) Build(endpoint, origin, userAgent string) (*Request, error) {
	body, err := json.Marshal(newSearchPayload(s.fareType, s.params))
	if err != nil {
		return nil, models.Fatal(err, "encoding %s search payload", s.fareType)
	}

	h := s.Headers()
	h.Set("accept", "application/json, text/plain, */*")
	h.Set("accept-language", "en-US,en;q=0.9")
	h.Set("content-type", "application/json")
	h.Set("origin", origin)
	h.Set("referer", origin+"/booking/choose-flights/1")
	h.Set("sec-fetch-dest", "empty")
	h.Set("sec-fetch-mode", "cors")
	h.Set("sec-fetch-site", "same-origin")
	if userAgent != "" {
		h.Set("user-agent", userAgent)
	}

	cookies := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		cookies[k] = v
	}
	return &Request{
		Method:  http.MethodPost,
		URL:     endpoint,
		Header:  h,
		Body:    body,
		Cookies: cookies,
	}, nil
}

type searchPayload struct {
	Metadata      payloadMetadata    `json:"metadata"`
	Passengers    []payloadPassenger `json:"passengers"`
	RequestHeader map[string]string  `json:"requestHeader"`
	Slices        []payloadSlice     `json:"slices"`
	TripOptions   payloadTripOptions `json:"tripOptions"`
	LoyaltyInfo   *struct{}          `json:"loyaltyInfo"`
	Version       string             `json:"version"`
	QueryParams   payloadQueryParams `json:"queryParams"`
}

type payloadMetadata struct {
	SelectedProducts []string          `json:"selectedProducts"`
	TripType         string            `json:"tripType"`
	UDO              map[string]string `json:"udo"`
}

type payloadPassenger struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type payloadSlice struct {
	AllCarriers               bool   `json:"allCarriers"`
	Cabin                     string `json:"cabin"`
	DepartureDate             string `json:"departureDate"`
	Destination               string `json:"destination"`
	DestinationNearbyAirports bool   `json:"destinationNearbyAirports"`
	MaxStops                  *int   `json:"maxStops"`
	Origin                    string `json:"origin"`
	OriginNearbyAirports      bool   `json:"originNearbyAirports"`
}

type payloadTripOptions struct {
	CorporateBooking bool    `json:"corporateBooking"`
	FareType         string  `json:"fareType"`
	Locale           string  `json:"locale"`
	PointOfSale      *string `json:"pointOfSale"`
	SearchType       string  `json:"searchType"`
}

type payloadQueryParams struct {
	SliceIndex  int    `json:"sliceIndex"`
	SessionID   string `json:"sessionId"`
	SolutionSet string `json:"solutionSet"`
	SolutionID  string `json:"solutionId"`
	Sort        string `json:"sort"`
}

func newSearchPayload(fareType models.FareType, p models.SearchParams) searchPayload {
	return searchPayload{
		Metadata: payloadMetadata{
			SelectedProducts: []string{},
			TripType:         "OneWay",
			UDO:              map[string]string{},
		},
		Passengers:    []payloadPassenger{{Type: "adult", Count: p.Passengers}},
		RequestHeader: map[string]string{"clientId": "AAcom"},
		Slices: []payloadSlice{{
			AllCarriers:   true,
			DepartureDate: p.Date,
			Destination:   p.Destination,
			Origin:        p.Origin,
		}},
		TripOptions: payloadTripOptions{
			FareType:   "Lowest",
			Locale:     "en_US",
			SearchType: fareType.SearchType(),
		},
		Version: "cfr",
		QueryParams: payloadQueryParams{
			Sort: "CARRIER",
		},
	}
}
