package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/finance"
)

func TestExtractFiguresResolvesCandidates(t *testing.T) {
	f := extractFigures(sampleStatement())

	require.True(t, f.Revenue.ok)
	assert.Equal(t, 5200000.0, f.Revenue.Current, "net sales resolves as revenue")
	assert.Equal(t, 4100000.0, f.Revenue.Prior)

	require.True(t, f.Equity.ok)
	assert.Equal(t, 2200000.0, f.Equity.Current)

	require.True(t, f.OperatingCashFlow.ok)
	assert.Equal(t, 810000.0, f.OperatingCashFlow.Current)

	require.True(t, f.Zakat.ok)
	assert.Equal(t, "zakat provision", f.Zakat.Item)
}

func TestExtractFiguresDerivesGrossProfit(t *testing.T) {
	f := extractFigures(sampleStatement())

	require.True(t, f.GrossProfit.ok)
	assert.Equal(t, "derived", f.GrossProfit.Section)
	assert.Equal(t, 1800000.0, f.GrossProfit.Current)
	assert.Equal(t, 1300000.0, f.GrossProfit.Prior)
	require.NotNil(t, f.GrossProfit.ChangePct)
	assert.InDelta(t, 38.46, *f.GrossProfit.ChangePct, 1e-9)
}

func TestExtractFiguresPrefersReportedGrossProfit(t *testing.T) {
	stmt := sampleStatement()
	stmt.IncomeStatement["results"]["gross profit"] = finance.ValuePair{Current: 1750000, Prior: 1280000}

	f := extractFigures(stmt)
	require.True(t, f.GrossProfit.ok)
	assert.Equal(t, 1750000.0, f.GrossProfit.Current, "the reported line wins over the derivation")
	assert.NotEqual(t, "derived", f.GrossProfit.Section)
}

func TestEbitdaAddsBackDepreciation(t *testing.T) {
	f := extractFigures(sampleStatement())

	e := f.ebitda()
	require.True(t, e.ok)
	assert.Equal(t, 1070000.0, e.Current)
	assert.Equal(t, 750000.0, e.Prior)

	bare := &statementFigures{OperatingIncome: f.OperatingIncome}
	e = bare.ebitda()
	require.True(t, e.ok)
	assert.Equal(t, 950000.0, e.Current, "without depreciation it falls back to operating income")

	assert.False(t, (&statementFigures{}).ebitda().ok)
}

func TestWorkingCapital(t *testing.T) {
	f := extractFigures(sampleStatement())

	wc := f.workingCapital()
	require.True(t, wc.ok)
	assert.Equal(t, 1000000.0, wc.Current)
	assert.Equal(t, 670000.0, wc.Prior)

	assert.False(t, (&statementFigures{CurrentAssets: f.CurrentAssets}).workingCapital().ok)
}

func TestPairRatioAndMargin(t *testing.T) {
	num := derivedFigure("a", finance.KindIncomeStatement, 100, 50)
	den := derivedFigure("b", finance.KindIncomeStatement, 400, 0)

	cur, prior := pairRatio(num, den)
	require.NotNil(t, cur)
	assert.Equal(t, 0.25, *cur)
	assert.Nil(t, prior, "a zero prior denominator stays null")

	cur, prior = pairMargin(num, den)
	require.NotNil(t, cur)
	assert.Equal(t, 25.0, *cur)
	assert.Nil(t, prior)

	cur, prior = pairRatio(figure{}, den)
	assert.Nil(t, cur)
	assert.Nil(t, prior)
}

func TestRatioEntryChange(t *testing.T) {
	v := func(x float64) *float64 { return &x }

	entry := ratioEntry(v(2), v(1.6))
	assert.Equal(t, 2.0, entry["current"])
	assert.Equal(t, 1.6, entry["prior"])
	assert.InDelta(t, 25, entry["change_percentage"].(float64), 1e-9)

	entry = ratioEntry(v(2), nil)
	assert.Equal(t, 2.0, entry["current"])
	assert.Nil(t, entry["prior"])
	assert.Nil(t, entry["change_percentage"])
}

func TestDaysOfConvention(t *testing.T) {
	inventory := derivedFigure("inventory", finance.KindBalanceSheet, 550000, 520000)
	cogs := derivedFigure("cogs", finance.KindIncomeStatement, 3400000, 2800000)

	d := daysOf(inventory, cogs)
	require.NotNil(t, d)
	assert.InDelta(t, 59.04, *d, 1e-9)

	assert.Nil(t, daysOf(figure{}, cogs))
	zeroFlow := derivedFigure("cogs", finance.KindIncomeStatement, 0, 0)
	assert.Nil(t, daysOf(inventory, zeroFlow))
}

func TestFigureSourcesDedupAndCap(t *testing.T) {
	stmt := sampleStatement()
	f := extractFigures(stmt)

	sources := figureSources(stmt, f.Revenue, f.Revenue, f.COGS, figure{})
	require.Len(t, sources, 2, "duplicates and unresolved figures are dropped")
	assert.Equal(t, "income_statement/revenue/net sales", sources[0].ID)
	assert.Contains(t, sources[0].Content, "Nahda Trading")

	sources = figureSources(stmt, f.Revenue, f.COGS, f.TotalAssets,
		f.Equity, f.Cash, f.Inventory, f.Receivables)
	assert.Len(t, sources, maxSources)
}

func TestStatementOfGuardsNil(t *testing.T) {
	stmt := statementOf(&Execution{})
	require.NotNil(t, stmt)
	assert.True(t, stmt.Empty())
}
