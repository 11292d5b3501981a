package preflight

import (
	"fmt"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/legal"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/seedmetric"
)

// ContextOptions selects between the full protocol text (first query of a
// session) and the compressed reference used afterwards.
type ContextOptions struct {
	IsFirstQuery       bool
	BaseProtocol       string
	CompressedProtocol string
	Now                time.Time
}

// BuildSystemContext assembles the ordered system messages for a routed
// query: temporal awareness first, protocol second, then the mode seeds the
// routing flags call for.
func BuildSystemContext(result *models.PreflightResult, opts ContextOptions) []string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	messages := []string{
		fmt.Sprintf("Current date and time: %s. Treat knowledge beyond this moment as unavailable.",
			now.UTC().Format("2006-01-02 15:04 UTC")),
	}

	if opts.IsFirstQuery && opts.BaseProtocol != "" {
		messages = append(messages, opts.BaseProtocol)
	} else if opts.CompressedProtocol != "" {
		messages = append(messages, opts.CompressedProtocol)
	}

	flags := result.RoutingFlags
	if flags.UsesFinancialPhysics {
		messages = append(messages, financialSeed)
	}
	if flags.UsesLegalAnalysis {
		messages = append(messages, legal.Template())
	}
	if flags.UsesForex && result.ForexContext != "" {
		messages = append(messages, result.ForexContext)
	}
	if flags.IsSeedMetric {
		messages = append(messages, seedMetricSeed)
	}
	if flags.IsPsiEMAIdentity && result.CodeContext != "" {
		messages = append(messages, result.CodeContext)
	}
	if flags.UsesPsiEMA && result.IndicatorAnalysis != "" {
		messages = append(messages, indicatorSeed)
	}
	if flags.IsDesignQuestion && result.CodeContext != "" {
		messages = append(messages, result.CodeContext)
	}
	return messages
}

const financialSeed = `An attached document carries financial-statement structure. Classify each
row as income, cost, or profit, verify the accounting identity
income - cost = profit, and call out any row where the numbers and the
labels disagree.`

var seedMetricSeed = fmt.Sprintf(`Housing affordability answers must present one Markdown table with
columns City, Price/sqm, Annual income, Years, A, Regime. Years is the
income-years needed for a standard %.0f sqm dwelling; the regime thresholds
are >%.0f years FATALISM, %.0f-%.0f PHI-BREATHING, <%.0f OPTIMISM. Only use
figures grounded in the provided search blocks.`,
	seedmetric.StandardArea, seedmetric.FatalismYears,
	seedmetric.OptimismYears, seedmetric.FatalismYears, seedmetric.OptimismYears)

const indicatorSeed = `A precomputed Ψ-EMA diagnostic is attached. Present its θ, z, and R values
verbatim with the categorical reading; do not recompute or adjust any
number.`
