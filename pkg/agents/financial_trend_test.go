package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/finance"
)

func TestFinancialTrendGrowthAndMovers(t *testing.T) {
	red, err := (&financialTrendAnalyzer{}).Reduce(&Execution{Statement: sampleStatement()})
	require.NoError(t, err)

	assert.Equal(t, "yearly", red.Analysis["granularity"])
	assert.Nil(t, red.Analysis["cagr"], "two periods cannot produce a CAGR")
	assert.Equal(t, 2, red.Analysis["periods_available"])
	assert.Empty(t, red.Analysis["seasonal_tags"])

	growth := red.Analysis["growth"].(map[string]interface{})
	assert.InDelta(t, 26.83, growth["revenue"].(float64), 1e-9)
	assert.InDelta(t, 14.29, growth["total_assets"].(float64), 1e-9)
	assert.InDelta(t, 22.22, growth["equity"].(float64), 1e-9)

	movers := red.Analysis["biggest_movers"].([]interface{})
	require.Len(t, movers, maxSources)

	first := movers[0].(map[string]interface{})
	assert.Equal(t, "net income", first["item"])
	assert.Equal(t, "income_statement", first["kind"])
	assert.InDelta(t, 56.52, first["change_percentage"].(float64), 1e-9)

	second := movers[1].(map[string]interface{})
	assert.Equal(t, "net cash from operating activities", second["item"])
	third := movers[2].(map[string]interface{})
	assert.Equal(t, "operating income", third["item"])
	fourth := movers[3].(map[string]interface{})
	assert.Equal(t, "cash and cash equivalents", fourth["item"])
	fifth := movers[4].(map[string]interface{})
	assert.Equal(t, "accounts receivable", fifth["item"])
}

func TestFinancialTrendMoversExcludeReportedRatios(t *testing.T) {
	movers := biggestMovers(sampleStatement(), 50)
	for _, m := range movers {
		entry := m.(map[string]interface{})
		assert.NotEqual(t, string(finance.KindRatio), entry["kind"])
	}
}

func TestFinancialTrendQuarterlyPeriods(t *testing.T) {
	stmt := sampleStatement()
	stmt.Periods = finance.Periods{Current: "Q1 2025", Prior: "Q1 2024"}

	red, err := (&financialTrendAnalyzer{}).Reduce(&Execution{Statement: stmt})
	require.NoError(t, err)

	assert.Equal(t, "quarterly", red.Analysis["granularity"])
	assert.Equal(t, []string{"q1"}, red.Analysis["seasonal_tags"])
}

func TestFinancialTrendSeasonalMarkers(t *testing.T) {
	stmt := sampleStatement()
	stmt.Periods = finance.Periods{Current: "Ramadan 1446", Prior: "Ramadan 1445"}

	red, err := (&financialTrendAnalyzer{}).Reduce(&Execution{Statement: stmt})
	require.NoError(t, err)

	assert.Equal(t, "yearly", red.Analysis["granularity"])
	assert.Equal(t, []string{"ramadan"}, red.Analysis["seasonal_tags"])
}

func TestFinancialTrendEmptyStatement(t *testing.T) {
	red, err := (&financialTrendAnalyzer{}).Reduce(&Execution{})
	require.NoError(t, err)

	assert.Empty(t, red.Analysis["biggest_movers"])
	growth := red.Analysis["growth"].(map[string]interface{})
	require.Len(t, growth, 6)
	for name, v := range growth {
		assert.Nil(t, v, name)
	}
}
