package pricing

import "fmt"

// FormatCost renders a total cost for display
func FormatCost(total float64) string {
	switch {
	case total == 0:
		return "Free"
	case total < 0.0001:
		return "<$0.0001"
	case total < 0.01:
		return fmt.Sprintf("$%.4f", total)
	default:
		return fmt.Sprintf("$%.3f", total)
	}
}

// FormatPrice renders a per-1M-token price
func FormatPrice(price float64) string {
	return fmt.Sprintf("$%.2f/1M tokens", price)
}

// FormatDuration renders a duration in milliseconds: "850ms", "1.23s"
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}
