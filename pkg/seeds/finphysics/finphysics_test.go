package finphysics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIncomeStatement(t *testing.T) {
	rows := []string{
		"Income Statement FY2024 (USD)",
		"Revenue 100,000",
		"Cost of goods sold (60,000)",
		"Operating expense (10,000)",
		"Net profit 30,000",
	}
	report := Classify(rows)

	assert.Equal(t, "income_statement", report.DocumentType)
	assert.Equal(t, "USD", report.Currency)
	assert.Equal(t, 2024, report.Temporal.Year)
	assert.Empty(t, report.TemporalErrors)

	require.Len(t, report.Classifications, 4)
	assert.Equal(t, NatureIncome, report.Classifications[0].Nature)
	assert.Equal(t, SymbolInflow, report.Classifications[0].Symbol)
	assert.Equal(t, NatureCost, report.Classifications[1].Nature)
	assert.Equal(t, NatureProfit, report.Classifications[3].Nature)
	assert.Equal(t, SymbolBalance, report.Classifications[3].Symbol)

	// 100000 - 70000 - 30000 = 0 variance.
	assert.True(t, report.Validation.Valid)
	assert.InDelta(t, 0, report.Validation.VariancePct, 1e-9)
	assert.Equal(t, Summary{Income: 1, Cost: 2, Profit: 1, Total: 4}, report.Summary)
}

func TestClassifyMultilingualRows(t *testing.T) {
	rows := []string{
		"Laporan Laba Rugi 2023",
		"Pendapatan 500,000",
		"Beban operasional (300,000)",
		"Laba bersih 200,000",
	}
	report := Classify(rows)
	require.Len(t, report.Classifications, 3)
	assert.Equal(t, NatureIncome, report.Classifications[0].Nature)
	assert.Equal(t, NatureCost, report.Classifications[1].Nature)
	assert.Equal(t, NatureProfit, report.Classifications[2].Nature)
	assert.True(t, report.Validation.Valid)

	rows = []string{
		"損益計算書 2024",
		"売上 800",
		"費用 500",
		"純利益 300",
	}
	report = Classify(rows)
	require.Len(t, report.Classifications, 3)
	assert.True(t, report.Validation.Valid)
}

func TestAccountingIdentityViolation(t *testing.T) {
	rows := []string{
		"Revenue 100,000",
		"Cost 60,000",
		"Profit 10,000", // identity off by 300%
	}
	report := Classify(rows)
	assert.False(t, report.Validation.Valid)
	assert.Greater(t, report.Validation.VariancePct, VariancePctLimit)
}

func TestLogDataGuard(t *testing.T) {
	rows := []string{
		"2024-01-01 12:00:01 ERROR failed to connect",
		"2024-01-01 12:00:02 DEBUG retrying 3",
	}
	report := Classify(rows)
	assert.Equal(t, "log_data", report.DocumentType)
	assert.Empty(t, report.Classifications)
}

func TestFutureYearActualFlagged(t *testing.T) {
	rows := []string{
		"Budget 2030 Actual",
		"Revenue 100",
	}
	report := Classify(rows)
	require.Len(t, report.TemporalErrors, 1)
	assert.Contains(t, report.TemporalErrors[0], "2030")
}

func TestRowsWithoutKeywordsOrValuesSkipped(t *testing.T) {
	rows := []string{
		"Some narrative line without figures",
		"Unrelated metric 42",
	}
	report := Classify(rows)
	assert.Empty(t, report.Classifications)
	assert.False(t, report.Validation.Valid)
}

func TestExtractValueParentheses(t *testing.T) {
	v, ok := extractValue("Cost of sales (1,234.5)")
	require.True(t, ok)
	assert.Equal(t, -1234.5, v)

	_, ok = extractValue("no digits here")
	assert.False(t, ok)
}

func TestDescribeValidReport(t *testing.T) {
	report := Classify([]string{
		"Income Statement FY2024 (USD)",
		"Revenue 100,000",
		"Cost of goods sold (60,000)",
		"Net profit 40,000",
	})
	text := report.Describe()

	assert.Contains(t, text, "Financial physics classification:")
	assert.Contains(t, text, "Document type: income_statement (USD)")
	assert.Contains(t, text, "Reporting year: 2024")
	assert.Contains(t, text, "Rows classified: 3 (income 1, cost 1, profit 1)")
	assert.Contains(t, text, "Accounting identity holds")
}

func TestDescribeIdentityFailure(t *testing.T) {
	report := Classify([]string{
		"Revenue 100,000",
		"Cost 10,000",
		"Net profit 40,000",
	})
	text := report.Describe()
	assert.Contains(t, text, "Accounting identity FAILS")
	assert.Contains(t, text, "limit 5.0%")
}

func TestDescribeNoProfitRow(t *testing.T) {
	report := Classify([]string{"Revenue 100,000", "Cost 10,000"})
	assert.Contains(t, report.Describe(), "Accounting identity unchecked: no profit row found")
}
