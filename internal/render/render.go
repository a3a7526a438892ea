// Package render formats comparison output for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/upb/ai-racers/internal/observability"
	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services/comparison"
	"github.com/upb/ai-racers/services/pricing"
	"github.com/upb/ai-racers/services/providers"
)

const rule = 60

// Renderer writes human readable output. With pretty off it emits plain
// text without colors or separators.
type Renderer struct {
	w      io.Writer
	pretty bool
}

// New creates a renderer writing to w
func New(w io.Writer, pretty bool) *Renderer {
	return &Renderer{w: w, pretty: pretty}
}

// Badges returns the ranking labels of one result, in display order
func Badges(r *comparison.Rankings, key string) []string {
	if r == nil {
		return nil
	}
	var out []string
	if r.IsFastest(key) {
		out = append(out, "FASTEST")
	}
	if r.IsSlowest(key) {
		out = append(out, "SLOWEST")
	}
	if r.IsCheapest(key) {
		out = append(out, "CHEAPEST")
	}
	if r.IsMostExpensive(key) {
		out = append(out, "MOST EXPENSIVE")
	}
	return out
}

// Results prints every result of a comparison with its timing, usage, cost
// and ranking badges
func (r *Renderer) Results(results []models.ComparisonResult, rankings *comparison.Rankings) {
	if len(results) == 0 {
		fmt.Fprintln(r.w, "No results")
		return
	}

	for i := range results {
		res := &results[i]
		r.header(res, rankings)
		r.details(res, rankings)
		fmt.Fprintln(r.w)
	}
}

func (r *Renderer) header(res *models.ComparisonResult, rankings *comparison.Rankings) {
	status := r.status(res.Status)
	line := fmt.Sprintf("%s %s", status, res.Pair().String())

	for _, b := range Badges(rankings, res.Key()) {
		line += " " + r.badge(b)
	}
	fmt.Fprintln(r.w, line)
	if r.pretty {
		fmt.Fprintln(r.w, strings.Repeat("─", rule))
	}
}

func (r *Renderer) details(res *models.ComparisonResult, rankings *comparison.Rankings) {
	var meta []string
	if res.DurationMs != nil {
		meta = append(meta, "time "+pricing.FormatDuration(*res.DurationMs))
	}
	if u := res.TokenUsage; u != nil {
		meta = append(meta, fmt.Sprintf("tokens %d in / %d out", u.Input(), u.Output()))
	}
	if rankings != nil {
		if est := rankings.Cost(res.Key()); est != nil {
			meta = append(meta, "cost "+est.FormattedCost)
		}
	}
	if len(meta) > 0 {
		fmt.Fprintln(r.w, r.dim(strings.Join(meta, " | ")))
	}

	switch res.Status {
	case models.ResultStatusSuccess:
		fmt.Fprintln(r.w, res.Response)
	case models.ResultStatusError:
		fmt.Fprintln(r.w, r.red("Error: "+res.Error))
	default:
		fmt.Fprintln(r.w, r.dim(string(res.Status)))
	}
}

// Connection prints the outcome of a credential check
func (r *Renderer) Connection(provider models.ProviderID, result *providers.ConnectionResult) {
	if !result.Success {
		fmt.Fprintf(r.w, "%s %s: %s\n", r.status(models.ResultStatusError), provider, result.Error)
		return
	}
	fmt.Fprintf(r.w, "%s %s: %s\n", r.status(models.ResultStatusSuccess), provider, result.Message)
	for _, m := range result.Models {
		fmt.Fprintf(r.w, "  %s\n", m)
	}
}

// Pricing prints the catalog entries of the given providers
func (r *Renderer) Pricing(catalog *pricing.Catalog, ids []models.ProviderID) {
	if catalog.Updated != "" {
		fmt.Fprintln(r.w, r.dim("Prices as of "+catalog.Updated))
	}
	for _, id := range ids {
		keys := catalog.Keys(id)
		if len(keys) == 0 {
			continue
		}
		fmt.Fprintln(r.w, r.title(string(id)))
		for _, k := range keys {
			price, _ := catalog.Lookup(id, k)
			if price.IsFree() {
				fmt.Fprintf(r.w, "  %-40s Free\n", k)
				continue
			}
			fmt.Fprintf(r.w, "  %-40s in %s  out %s\n", k, pricing.FormatPrice(price.InputPrice), pricing.FormatPrice(price.OutputPrice))
		}
	}
}

// Runs prints a list of saved comparison runs
func (r *Renderer) Runs(runs []*models.ComparisonRun) {
	if len(runs) == 0 {
		fmt.Fprintln(r.w, "No saved runs")
		return
	}
	for _, run := range runs {
		name := run.TestName
		if name == "" {
			name = truncate(run.UserPrompt, 40)
		}
		fmt.Fprintf(r.w, "%s  %s  %s\n", run.ID, r.dim(run.CreatedAt.Format("2006-01-02 15:04")), name)
	}
}

// Run prints one saved run with its results
func (r *Renderer) Run(run *models.ComparisonRun, rankings *comparison.Rankings) {
	title := run.TestName
	if title == "" {
		title = run.ID.String()
	}
	fmt.Fprintln(r.w, r.title(title))
	if run.SystemPrompt != "" {
		fmt.Fprintln(r.w, r.dim("system: ")+run.SystemPrompt)
	}
	fmt.Fprintln(r.w, r.dim("prompt: ")+run.UserPrompt)
	fmt.Fprintf(r.w, "%d/%d succeeded\n\n", run.SuccessCount(), len(run.Results))
	r.Results(run.Results, rankings)
}

// Stats prints per-provider statistics collected during the session
func (r *Renderer) Stats(stats []observability.ProviderStats) {
	for _, s := range stats {
		fmt.Fprintf(r.w, "%s %s: %d ok, %d failed, avg %s\n",
			r.dim("stats"), s.Provider, s.Successes, s.Failures, pricing.FormatDuration(s.AverageMs()))
	}
}

func (r *Renderer) status(s models.ResultStatus) string {
	switch s {
	case models.ResultStatusSuccess:
		if r.pretty {
			return color.GreenString("✓")
		}
		return "[ok]"
	case models.ResultStatusError:
		if r.pretty {
			return color.RedString("✗")
		}
		return "[error]"
	default:
		if r.pretty {
			return color.YellowString("…")
		}
		return "[" + string(s) + "]"
	}
}

func (r *Renderer) badge(label string) string {
	if !r.pretty {
		return "[" + label + "]"
	}
	switch label {
	case "FASTEST", "CHEAPEST":
		return color.New(color.FgBlack, color.BgGreen).Sprint(" " + label + " ")
	default:
		return color.New(color.FgBlack, color.BgYellow).Sprint(" " + label + " ")
	}
}

func (r *Renderer) title(s string) string {
	if r.pretty {
		return color.CyanString(s)
	}
	return s
}

func (r *Renderer) dim(s string) string {
	if r.pretty {
		return color.HiBlackString(s)
	}
	return s
}

func (r *Renderer) red(s string) string {
	if r.pretty {
		return color.RedString(s)
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
