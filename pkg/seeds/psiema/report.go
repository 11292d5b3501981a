package psiema

import (
	"fmt"
	"strings"
)

// Pathogen is a named anomaly detected in an analysis.
type Pathogen struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Note     string `json:"note"`
}

// DetectPathogens flags anomalous regimes in an analysis.
func DetectPathogens(a *Analysis) []Pathogen {
	var out []Pathogen
	if a.Z > PhiSq {
		out = append(out, Pathogen{
			Name:     "euphoria spike",
			Severity: "acute",
			Note:     fmt.Sprintf("z=%.2f exceeds φ² (%.3f); price detached from its robust center", a.Z, PhiSq),
		})
	}
	if a.Z < -PhiSq {
		out = append(out, Pathogen{
			Name:     "capitulation shock",
			Severity: "acute",
			Note:     fmt.Sprintf("z=%.2f below -φ² (-%.3f); forced-selling signature", a.Z, PhiSq),
		})
	}
	if a.R > PhiSq {
		out = append(out, Pathogen{
			Name:     "volatility expansion",
			Severity: "chronic",
			Note:     fmt.Sprintf("amplitude ratio R=%.2f exceeds φ²; regime change in progress", a.R),
		})
	}
	if a.R < PhiInv && abs(a.Z) < PhiInv {
		out = append(out, Pathogen{
			Name:     "compression",
			Severity: "latent",
			Note:     fmt.Sprintf("R=%.2f under 1/φ with quiet z; stored energy", a.R),
		})
	}
	return out
}

// Report bundles the per-timeframe analyses for rendering.
type Report struct {
	Ticker   string
	Name     string
	Currency string
	Price    *float64
	EndDate  string
	Period   string
	Daily    *Analysis
	Weekly   *Analysis
}

// Render produces the clinical-style indicator report. Daily is required;
// weekly is included when present.
func (r *Report) Render() string {
	var sb strings.Builder
	title := r.Ticker
	if r.Name != "" {
		title = fmt.Sprintf("%s (%s)", r.Name, r.Ticker)
	}
	fmt.Fprintf(&sb, "## Ψ-EMA Diagnostic: %s\n\n", title)
	if r.Price != nil {
		fmt.Fprintf(&sb, "Last price: %.2f %s", *r.Price, r.Currency)
		if r.EndDate != "" {
			fmt.Fprintf(&sb, " (as of %s)", r.EndDate)
		}
		sb.WriteString("\n")
	}
	if r.Period != "" {
		fmt.Fprintf(&sb, "Analysis period: %s\n", r.Period)
	}
	sb.WriteString("\n")

	renderFrame(&sb, "Daily", r.Daily)
	if r.Weekly != nil {
		sb.WriteString("\n")
		renderFrame(&sb, "Weekly", r.Weekly)
	}

	pathogens := DetectPathogens(r.Daily)
	if r.Weekly != nil {
		pathogens = append(pathogens, DetectPathogens(r.Weekly)...)
	}
	if len(pathogens) > 0 {
		sb.WriteString("\n### Pathogens\n")
		for _, p := range pathogens {
			fmt.Fprintf(&sb, "- **%s** [%s]: %s\n", p.Name, p.Severity, p.Note)
		}
	}
	return sb.String()
}

func renderFrame(sb *strings.Builder, label string, a *Analysis) {
	if a == nil {
		return
	}
	fmt.Fprintf(sb, "### %s (%d bars, fidelity %s)\n", label, a.BarCount, a.Fidelity)
	fmt.Fprintf(sb, "- θ (phase): %.2f°\n", a.Theta)
	fmt.Fprintf(sb, "- z (anomaly): %.2f\n", a.Z)
	fmt.Fprintf(sb, "- R (convergence): %.2f\n", a.R)
	fmt.Fprintf(sb, "- Reading: %s\n", a.Reading)
}

// NoDataTemplate is the fixed answer when a Ψ-EMA request cannot be served
// because no market data could be fetched.
func NoDataTemplate(ticker string) string {
	subject := "the requested ticker"
	if ticker != "" {
		subject = ticker
	}
	return fmt.Sprintf("No usable market data is available for %s right now, so a Ψ-EMA diagnostic cannot be produced. Check the ticker symbol or try again shortly.", subject)
}

// IdentityDoc is the canonical description attached for indicator-identity
// queries ("what is Ψ-EMA").
const IdentityDoc = `Ψ-EMA is a three-dimensional price indicator computed from close prices:

- θ (phase): the angle atan2(flow, stock), where stock is the displacement of
  price from its slow exponential baseline and flow is the smoothed rate of
  change. θ near 0° means drift along the baseline; large positive θ means
  momentum is leading position.
- z (anomaly): a robust z-score of the latest close against the trailing
  window, using the median absolute deviation so single outliers cannot
  inflate the scale.
- R (convergence): the ratio of recent price amplitude to prior amplitude;
  R > 1 means volatility is expanding.

The three dimensions feed a decision tree gated on the golden-ratio
thresholds φ=1.618, φ²=2.618 and 1/φ=0.618, producing one categorical
reading (BREAKOUT, OVEREXTENSION, ACCUMULATION, DISTRIBUTION, EQUILIBRIUM,
CAPITULATION) and a fidelity grade A-D reflecting data depth. A daily
analysis needs at least 55 bars; a weekly analysis at least 13.`

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
