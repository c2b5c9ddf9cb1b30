package models

// InsightReport summarises one scrape result for the terminal report and run comparisons.
type InsightReport struct {
	TotalFlights   int            `json:"total_flights"`
	NonstopFlights int            `json:"nonstop_flights"`
	AverageCPP     float64        `json:"average_cpp"`
	MinCPP         float64        `json:"min_cpp"`
	MaxCPP         float64        `json:"max_cpp"`
	AveragePoints  float64        `json:"average_points"`
	BestValue      *Flight        `json:"best_value,omitempty"`
	TopByCPP       []Flight       `json:"top_by_cpp"`
	FlightsByStops map[string]int `json:"flights_by_stops"`
}
