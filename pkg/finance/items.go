package finance

// Candidate name sets for statement lookups. Parsed statements arrive
// with whatever item names the source used; lookups try these in order
// via Statement.Find, which folds case and separators.

var (
	ItemRevenue = []string{
		"revenue", "revenues", "net sales", "sales", "total revenue",
		"total revenues",
	}
	ItemCOGS = []string{
		"cost of goods sold", "cogs", "cost of sales", "cost of revenue",
	}
	ItemGrossProfit = []string{
		"gross profit", "gross income",
	}
	ItemOperatingIncome = []string{
		"operating income", "operating profit", "income from operations",
	}
	ItemNetIncome = []string{
		"net income", "net profit", "profit for the year",
		"profit for the period", "net earnings",
	}
	ItemDepreciation = []string{
		"depreciation and amortization", "depreciation", "amortization",
	}
	ItemInterestExpense = []string{
		"interest expense", "finance costs", "finance expense",
		"finance charges",
	}
	ItemTotalAssets = []string{
		"total assets",
	}
	ItemTotalLiabilities = []string{
		"total liabilities",
	}
	ItemEquity = []string{
		"total equity", "total shareholders equity", "shareholders equity",
		"stockholders equity", "equity",
	}
	ItemCurrentAssets = []string{
		"total current assets", "current assets",
	}
	ItemCurrentLiabilities = []string{
		"total current liabilities", "current liabilities",
	}
	ItemInventory = []string{
		"inventory", "inventories",
	}
	ItemCash = []string{
		"cash and cash equivalents", "cash and bank balances", "cash",
	}
	ItemReceivables = []string{
		"accounts receivable", "trade receivables", "receivables",
	}
	ItemPayables = []string{
		"accounts payable", "trade payables", "payables",
	}
	ItemZakat = []string{
		"zakat provision", "zakat payable", "zakat",
	}
	ItemOperatingCashFlow = []string{
		"net cash from operating activities",
		"net cash provided by operating activities",
		"cash from operating activities",
		"cash flows from operating activities", "operating cash flow",
	}
)
