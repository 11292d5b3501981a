package seedmetric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearsAndRegime(t *testing.T) {
	// 10000/sqm, 20000/yr income: 60*10000/20000 = 30 years.
	years := Years(10_000, 20_000)
	assert.InDelta(t, 30, years, 1e-9)
	assert.Equal(t, RegimeFatalism, RegimeFor(years))

	assert.Equal(t, RegimePhiBreathing, RegimeFor(15))
	assert.Equal(t, RegimePhiBreathing, RegimeFor(10))
	assert.Equal(t, RegimeOptimism, RegimeFor(9.9))

	assert.True(t, math.IsInf(Years(10_000, 0), 1))
}

func TestAffordabilitySolvesRecursion(t *testing.T) {
	// A = 1 + 1/A + σ must hold for the returned root.
	for _, sigma := range []float64{0, 0.4, 1, 2.5} {
		a := Affordability(sigma)
		assert.InDelta(t, a, 1+1/a+sigma, 1e-9, "sigma=%v", sigma)
		assert.Positive(t, a)
	}
}

func TestComputeDerivesAllFields(t *testing.T) {
	m := Compute("paris", 12_000, 45_000)
	assert.Equal(t, "paris", m.City)
	assert.InDelta(t, 16, m.Years, 1e-9)
	assert.Equal(t, RegimePhiBreathing, m.Regime)
	assert.Positive(t, m.A)
}

func TestParseLandIncome(t *testing.T) {
	price, income, err := ParseLandIncome("LAND:8500 INCOME:42000")
	require.NoError(t, err)
	assert.Equal(t, 8500.0, price)
	assert.Equal(t, 42000.0, income)

	// Case-insensitive, thousands separators.
	price, income, err = ParseLandIncome("noise land: 1,250.5 income: 38,000 trailing")
	require.NoError(t, err)
	assert.Equal(t, 1250.5, price)
	assert.Equal(t, 38000.0, income)

	_, _, err = ParseLandIncome("no structured reply here")
	assert.ErrorIs(t, err, ErrParseFailure)

	_, _, err = ParseLandIncome("LAND:0 INCOME:42000")
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestParseSnippetNumber(t *testing.T) {
	v, err := ParseSnippetNumber("average price is $8,500 per sqm as of 2024")
	require.NoError(t, err)
	assert.Equal(t, 8500.0, v)

	// Small figures (years, percentages) are skipped.
	_, err = ParseSnippetNumber("grew 5% over 3 years")
	assert.ErrorIs(t, err, ErrParseFailure)

	_, err = ParseSnippetNumber("no numbers at all")
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestExtractCities(t *testing.T) {
	cities := ExtractCities("LA vs NY housing price")
	assert.Equal(t, []string{"los angeles", "new york"}, cities)

	cities = ExtractCities("compare Tokyo and Kuala Lumpur apartments")
	assert.Equal(t, []string{"tokyo", "kuala lumpur"}, cities)

	// Word boundaries: "plan" must not match "la".
	assert.Empty(t, ExtractCities("plan your retirement"))

	// Duplicates collapse.
	cities = ExtractCities("nyc vs new york")
	assert.Equal(t, []string{"new york"}, cities)
}

func TestExtractDecade(t *testing.T) {
	assert.Equal(t, "90s", ExtractDecade("prices in 1995 vs today"))
	assert.Equal(t, "2010s", ExtractDecade("back in 2015"))
	assert.Equal(t, "", ExtractDecade("prices in 1893"))
	assert.Equal(t, "", ExtractDecade("no year here"))
}

func TestQueriesForCity(t *testing.T) {
	queries := QueriesForCity("paris", "90s")
	require.Len(t, queries, 4)
	assert.Contains(t, queries[0], "price per square meter")
	assert.Contains(t, queries[1], "income")
	assert.Contains(t, queries[2], "90s")
	assert.Contains(t, queries[3], "90s")

	queries = QueriesForCity("paris", "")
	require.Len(t, queries, 4)
	assert.Contains(t, queries[2], "historical")
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]CityMetrics{
		Compute("los angeles", 9_000, 65_000),
		Compute("new york", 14_000, 70_000),
	})
	assert.Contains(t, out, "| City | Price/sqm |")
	assert.Contains(t, out, "Los Angeles")
	assert.Contains(t, out, "New York")
	assert.Contains(t, out, "PHI-BREATHING")
}
