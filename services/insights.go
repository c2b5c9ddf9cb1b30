package services

import (
	"math"
	"sort"

	"farecraft/models"
	"farecraft/utils"
)

const topByCPP = 5

// InsightService computes analytics from a scrape result
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates a new InsightService
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the CPP summary for a result
func (s *InsightService) Generate(result *models.ScrapeResult) *models.InsightReport {
	report := &models.InsightReport{
		FlightsByStops: make(map[string]int),
	}

	if result == nil || len(result.Flights) == 0 {
		s.logger.Warn("No flights to generate insights from")
		return report
	}

	flights := result.Flights
	var totalCPP, totalPoints float64
	report.MinCPP = flights[0].CPP
	report.MaxCPP = flights[0].CPP

	for i, f := range flights {
		report.TotalFlights++
		if f.IsNonstop {
			report.NonstopFlights++
		}

		totalCPP += f.CPP
		totalPoints += float64(f.PointsRequired)
		if f.CPP < report.MinCPP {
			report.MinCPP = f.CPP
		}
		if f.CPP > report.MaxCPP {
			report.MaxCPP = f.CPP
		}
		if report.BestValue == nil || f.CPP > report.BestValue.CPP {
			best := flights[i]
			report.BestValue = &best
		}

		report.FlightsByStops[stopsLabel(len(f.Segments)-1)]++
	}

	report.AverageCPP = round2(totalCPP / float64(report.TotalFlights))
	report.AveragePoints = math.Round(totalPoints / float64(report.TotalFlights))

	ranked := make([]models.Flight, len(flights))
	copy(ranked, flights)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CPP > ranked[j].CPP
	})
	n := topByCPP
	if len(ranked) < n {
		n = len(ranked)
	}
	report.TopByCPP = ranked[:n]

	return report
}

func stopsLabel(stops int) string {
	switch {
	case stops <= 0:
		return "nonstop"
	case stops == 1:
		return "1 stop"
	default:
		return "2+ stops"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
