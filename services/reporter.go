package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"farecraft/models"
)

// PrintReport formats the priced flights and their insights for the terminal
func PrintReport(w io.Writer, result *models.ScrapeResult, report *models.InsightReport) {
	border := strings.Repeat("═", 78)
	thin := strings.Repeat("─", 78)
	meta := result.SearchMetadata

	fmt.Fprintf(w, "\n╔%s╗\n", border)
	fmt.Fprintf(w, "║%s║\n", center("AWARD VS CASH FARE COMPARISON", 78))
	fmt.Fprintf(w, "╚%s╝\n", border)

	fmt.Fprintf(w, "\n SEARCH\n%s\n", thin)
	fmt.Fprintf(w, "  Route        : %s -> %s\n", meta.Origin, meta.Destination)
	fmt.Fprintf(w, "  Date         : %s\n", meta.Date)
	fmt.Fprintf(w, "  Passengers   : %d\n", meta.Passengers)
	fmt.Fprintf(w, "  Cabin        : %s\n", meta.CabinClass)

	fmt.Fprintf(w, "\n FLIGHTS (%d)\n%s\n", result.TotalResults, thin)
	if len(result.Flights) == 0 {
		fmt.Fprintf(w, "  No itineraries had both an award and a cash price.\n")
	} else {
		fmt.Fprintf(w, "  %-24s %-11s %-8s %10s %10s %8s %6s\n", "Flights", "Depart", "Duration", "Points", "Cash", "Taxes", "CPP")
		for _, f := range result.Flights {
			fmt.Fprintf(w, "  %-24s %-11s %-8s %10d %10s %8s %6.2f\n",
				truncate(flightNumbers(f), 24),
				departure(f),
				f.TotalDuration,
				f.PointsRequired,
				fmt.Sprintf("$%.2f", f.CashPriceUSD),
				fmt.Sprintf("$%.2f", f.TaxesFeesUSD),
				f.CPP,
			)
		}
	}

	if report != nil && report.TotalFlights > 0 {
		fmt.Fprintf(w, "\n INSIGHTS\n%s\n", thin)
		fmt.Fprintf(w, "  Nonstop Flights     : %d of %d\n", report.NonstopFlights, report.TotalFlights)
		fmt.Fprintf(w, "  Average CPP         : %.2f\n", report.AverageCPP)
		fmt.Fprintf(w, "  Minimum CPP         : %.2f\n", report.MinCPP)
		fmt.Fprintf(w, "  Maximum CPP         : %.2f\n", report.MaxCPP)
		fmt.Fprintf(w, "  Average Points      : %.0f\n", report.AveragePoints)

		if report.BestValue != nil {
			fmt.Fprintf(w, "\n BEST VALUE REDEMPTION\n%s\n", thin)
			fmt.Fprintf(w, "  Flights  : %s\n", flightNumbers(*report.BestValue))
			fmt.Fprintf(w, "  Departs  : %s\n", departure(*report.BestValue))
			fmt.Fprintf(w, "  Points   : %d + $%.2f\n", report.BestValue.PointsRequired, report.BestValue.TaxesFeesUSD)
			fmt.Fprintf(w, "  Cash     : $%.2f\n", report.BestValue.CashPriceUSD)
			fmt.Fprintf(w, "  CPP      : %.2f\n", report.BestValue.CPP)
		}

		if len(report.FlightsByStops) > 0 {
			fmt.Fprintf(w, "\n FLIGHTS BY STOPS\n%s\n", thin)
			type stopCount struct {
				label string
				count int
			}
			var stops []stopCount
			for label, cnt := range report.FlightsByStops {
				stops = append(stops, stopCount{label, cnt})
			}
			sort.Slice(stops, func(i, j int) bool {
				if stops[i].count != stops[j].count {
					return stops[i].count > stops[j].count
				}
				return stops[i].label < stops[j].label
			})
			for _, sc := range stops {
				bar := strings.Repeat("▓", sc.count)
				fmt.Fprintf(w, "  %-12s %3d  %s\n", sc.label+":", sc.count, bar)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", border)
}

func flightNumbers(f models.Flight) string {
	nums := make([]string, 0, len(f.Segments))
	for _, s := range f.Segments {
		nums = append(nums, s.FlightNumber)
	}
	return strings.Join(nums, " / ")
}

func departure(f models.Flight) string {
	if len(f.Segments) == 0 {
		return ""
	}
	return f.Segments[0].DepartureTime
}

func center(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	pad := (width - len(runes)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(runes)-pad)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
