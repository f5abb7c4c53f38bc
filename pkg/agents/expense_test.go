package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/finance"
)

func TestExpenseReduceScenario(t *testing.T) {
	red, err := (&expenseAnalyzer{}).Reduce(&Execution{Transactions: scenarioTransactions()})
	require.NoError(t, err)

	assert.Equal(t, 123000.0, red.Analysis["total"])
	assert.Equal(t, 3, red.Analysis["transaction_count"], "the credit is excluded")

	categories := red.Analysis["categories"].(map[string]interface{})
	gov := categories["government_compliance"].(map[string]interface{})
	assert.Equal(t, 38000.0, gov["total"])
	assert.Equal(t, 2, gov["count"])
	assert.Equal(t, 30.89, gov["percentage"])

	op := categories["operational"].(map[string]interface{})
	assert.Equal(t, 85000.0, op["total"])
	assert.Equal(t, 1, op["count"])
	assert.Equal(t, 69.11, op["percentage"])

	top := red.Analysis["top_categories"].([]interface{})
	require.Len(t, top, 2)
	assert.Equal(t, "operational", top[0].(map[string]interface{})["category"])

	largest := red.Analysis["largest_expense"].(map[string]interface{})
	assert.Equal(t, "Office Rent", largest["description"])
	assert.Equal(t, -85000.0, largest["amount"])

	assert.Empty(t, red.Analysis["anomalies"])

	dateRange := red.Analysis["date_range"].(map[string]interface{})
	assert.Equal(t, "2024-01-10", dateRange["from"])
	assert.Equal(t, "2024-02-15", dateRange["to"])

	assert.Contains(t, red.Summary, "123000.00")
	assert.Contains(t, red.Summary, "government_compliance")
	require.NotEmpty(t, red.Sources)
	assert.Contains(t, red.Sources[0].Content, "Office Rent")
}

func TestExpenseReduceEmpty(t *testing.T) {
	red, err := (&expenseAnalyzer{}).Reduce(&Execution{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, red.Analysis["total"])
	assert.Equal(t, 0, red.Analysis["transaction_count"])
	assert.Empty(t, red.Analysis["categories"])
	assert.Empty(t, red.Analysis["anomalies"])
	assert.NotContains(t, red.Analysis, "largest_expense")
	assert.NotContains(t, red.Analysis, "date_range")
	assert.Empty(t, red.Sources)
}

func TestExpenseAnomalyDetection(t *testing.T) {
	txs := make([]finance.Transaction, 0, 13)
	for i := 1; i <= 12; i++ {
		txs = append(txs, finance.Transaction{
			Date: day(2024, 1, i), Description: "Fuel Aldrees", Amount: -200, Type: finance.Debit,
		})
	}
	txs = append(txs, finance.Transaction{
		Date: day(2024, 1, 20), Description: "Equipment purchase", Amount: -50000, Type: finance.Debit,
	})

	red, err := (&expenseAnalyzer{}).Reduce(&Execution{Transactions: txs})
	require.NoError(t, err)

	anomalies := red.Analysis["anomalies"].([]interface{})
	require.Len(t, anomalies, 1)
	entry := anomalies[0].(map[string]interface{})
	assert.Equal(t, "Equipment purchase", entry["description"])
	assert.Greater(t, entry["z_score"].(float64), zScoreThreshold)
}

func TestUncategorizedResidualBucket(t *testing.T) {
	red, err := (&expenseAnalyzer{}).Reduce(&Execution{Transactions: []finance.Transaction{
		{Date: day(2024, 3, 1), Description: "Mystery outflow", Amount: -123, Type: finance.Debit},
	}})
	require.NoError(t, err)

	categories := red.Analysis["categories"].(map[string]interface{})
	require.Contains(t, categories, finance.Uncategorized)
	bucket := categories[finance.Uncategorized].(map[string]interface{})
	assert.Equal(t, 123.0, bucket["total"])
}
