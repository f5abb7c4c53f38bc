package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/finance"
)

func TestProfitabilityReduceMargins(t *testing.T) {
	red, err := (&profitabilityAnalyzer{}).Reduce(&Execution{Statement: sampleStatement()})
	require.NoError(t, err)

	margins := red.Analysis["margins"].(map[string]interface{})
	check := func(name string, cur, prior, threshold float64) {
		entry := margins[name].(map[string]interface{})
		assert.InDelta(t, cur, entry["current"].(float64), 1e-9, name)
		assert.InDelta(t, prior, entry["prior"].(float64), 1e-9, name)
		assert.Equal(t, threshold, entry["threshold"], name)
		assert.Equal(t, true, entry["meets_threshold"], name)
	}
	check("gross", 34.62, 31.71, 30)
	check("operating", 18.27, 15.61, 15)
	check("ebitda", 20.58, 18.29, 20)
	check("net", 13.85, 11.22, 10)

	assert.Equal(t, 4, red.Analysis["margin_health"])

	growth := red.Analysis["growth"].(map[string]interface{})
	assert.InDelta(t, 26.83, growth["revenue"].(float64), 1e-9)
	assert.InDelta(t, 38.46, growth["gross_profit"].(float64), 1e-9)
	assert.InDelta(t, 48.44, growth["operating_income"].(float64), 1e-9)
	assert.InDelta(t, 56.52, growth["net_income"].(float64), 1e-9)
}

func TestProfitabilityHealthCountsOnlyMetThresholds(t *testing.T) {
	stmt := sampleStatement()
	stmt.IncomeStatement["results"]["operating income"] = finance.ValuePair{Current: 700000, Prior: 640000}

	red, err := (&profitabilityAnalyzer{}).Reduce(&Execution{Statement: stmt})
	require.NoError(t, err)

	// Operating drops to 13.46% and EBITDA to 15.77%, leaving gross and
	// net above their lines.
	assert.Equal(t, 2, red.Analysis["margin_health"])

	margins := red.Analysis["margins"].(map[string]interface{})
	op := margins["operating"].(map[string]interface{})
	assert.Equal(t, false, op["meets_threshold"])
	assert.InDelta(t, 13.46, op["current"].(float64), 1e-9)
}

func TestProfitabilityReduceEmptyStatement(t *testing.T) {
	red, err := (&profitabilityAnalyzer{}).Reduce(&Execution{})
	require.NoError(t, err)

	assert.Equal(t, 0, red.Analysis["margin_health"])
	margins := red.Analysis["margins"].(map[string]interface{})
	require.Len(t, margins, 4)
	for name, v := range margins {
		entry := v.(map[string]interface{})
		assert.Nil(t, entry["current"], name)
		assert.Equal(t, false, entry["meets_threshold"], name)
	}
	growth := red.Analysis["growth"].(map[string]interface{})
	assert.Nil(t, growth["revenue"])
	assert.Equal(t, 0, red.Statistics["margins_computed"])
}
