package finance

import (
	"strings"
)

// Category is one keyword-defined bucket. Multi-word keywords match as
// phrases inside the normalized description; single words match whole
// tokens only, so "fee" never matches "coffee".
type Category struct {
	Key      string
	Keywords []string
}

// CategoryTable is an ordered list of categories. Order is the
// tie-break: the first category with a matching keyword wins.
type CategoryTable []Category

// Categorize returns the first matching category key.
func (t CategoryTable) Categorize(description string) (string, bool) {
	tokens, normalized := tokenize(description)
	for _, cat := range t {
		for _, kw := range cat.Keywords {
			if matchKeyword(tokens, normalized, kw) {
				return cat.Key, true
			}
		}
	}
	return "", false
}

// Keys returns the category keys in table order.
func (t CategoryTable) Keys() []string {
	keys := make([]string, len(t))
	for i, cat := range t {
		keys[i] = cat.Key
	}
	return keys
}

func tokenize(description string) (map[string]bool, string) {
	normalized := strings.ToLower(description)
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens, strings.Join(fields, " ")
}

func matchKeyword(tokens map[string]bool, normalized, keyword string) bool {
	kw := strings.ToLower(keyword)
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(normalized, kw)
	}
	return tokens[kw]
}

// Uncategorized is the residual bucket for unmatched debits.
const Uncategorized = "uncategorized"

// OtherIncome is the residual bucket for unmatched credits.
const OtherIncome = "other_income"

// CategorizeTransaction picks the category for a transaction by its
// direction, falling back to the residual bucket.
func CategorizeTransaction(tx Transaction) string {
	if tx.Type == Credit {
		if cat, ok := IncomeCategories.Categorize(tx.Description); ok {
			return cat
		}
		return OtherIncome
	}
	if cat, ok := ExpenseCategories.Categorize(tx.Description); ok {
		return cat
	}
	return Uncategorized
}

// ExpenseCategories is the debit taxonomy for Saudi business accounts.
// Earlier entries win ties.
var ExpenseCategories = CategoryTable{
	{Key: "government_compliance", Keywords: []string{
		"gosi", "qiwa", "sadad", "zakat", "zatca", "vat", "tax", "customs",
		"muqeem", "absher", "mol", "municipality", "baladiya", "saudi post",
	}},
	{Key: "payroll", Keywords: []string{
		"payroll", "salary", "salaries", "wps", "wage", "wages",
		"end of service", "eos",
	}},
	{Key: "operational", Keywords: []string{
		"rent", "lease", "office", "utilities", "electricity", "water",
		"maintenance", "cleaning", "security", "sec bill",
	}},
	{Key: "banking_finance", Keywords: []string{
		"fee", "fees", "charge", "charges", "commission", "interest",
		"loan", "murabaha", "installment", "swift", "sarie", "remittance",
	}},
	{Key: "technology_telecom", Keywords: []string{
		"stc", "mobily", "zain", "internet", "hosting", "software",
		"license", "subscription", "saas", "cloud",
	}},
	{Key: "travel_transport", Keywords: []string{
		"saudia", "flynas", "flyadeal", "airline", "hotel", "uber",
		"careem", "fuel", "petrol", "aldrees", "parking",
	}},
	{Key: "supplies_inventory", Keywords: []string{
		"supplier", "inventory", "wholesale", "materials", "procurement",
		"purchase order",
	}},
	{Key: "insurance", Keywords: []string{
		"insurance", "tawuniya", "bupa", "medgulf", "takaful",
	}},
	{Key: "professional_services", Keywords: []string{
		"consulting", "legal", "audit", "accounting", "advisory",
		"recruitment",
	}},
	{Key: "marketing", Keywords: []string{
		"marketing", "advertising", "media", "sponsorship", "campaign",
	}},
}

// IncomeCategories is the credit taxonomy. Earlier entries win ties.
var IncomeCategories = CategoryTable{
	{Key: "sales_revenue", Keywords: []string{
		"invoice", "inv", "client", "customer", "sales", "payment received",
		"pos settlement", "mada",
	}},
	{Key: "transfers_in", Keywords: []string{
		"transfer", "sarie", "iban", "remittance", "incoming",
	}},
	{Key: "investment_income", Keywords: []string{
		"dividend", "profit share", "murabaha profit", "return",
	}},
	{Key: "government_support", Keywords: []string{
		"hrdf", "monshaat", "subsidy", "grant", "refund gosi",
	}},
	{Key: "refunds", Keywords: []string{
		"refund", "reversal", "chargeback",
	}},
}

// FeeKeywords flag a debit as a bank fee regardless of amount.
var FeeKeywords = []string{
	"fee", "fees", "charge", "charges", "commission",
	"service charge", "maintenance fee", "transfer fee", "swift fee",
	"atm fee", "account fee", "card fee", "vat on fee",
}

// TypicalFeeAmounts are the absolute SAR values Saudi banks commonly
// charge. A debit matching one of these AND naming a known bank is
// treated as a fee even without a fee keyword. Fixed here as reviewed
// reference data.
var TypicalFeeAmounts = []float64{
	2.30, 5, 5.75, 10, 11.50, 15, 17.25, 20, 23, 25, 28.75, 30, 35, 46,
	50, 57.50, 69, 75, 100, 115,
}

// BankTokens are names of Saudi banks as they appear in descriptions.
var BankTokens = []string{
	"alrajhi", "al rajhi", "snb", "alahli", "al ahli", "ncb", "riyad bank",
	"riyadbank", "sab", "saudi awwal", "alinma", "albilad", "al bilad",
	"anb", "arab national", "bsf", "fransi", "samba", "jazira", "aljazira",
	"gib", "emirates nbd", "meem", "stc pay", "stcpay", "urpay",
}

// IsTypicalFeeAmount reports whether the unsigned amount is one of the
// typical fee values, within one halala.
func IsTypicalFeeAmount(amount float64) bool {
	if amount < 0 {
		amount = -amount
	}
	for _, v := range TypicalFeeAmounts {
		diff := amount - v
		if diff < 0 {
			diff = -diff
		}
		if diff <= 0.01 {
			return true
		}
	}
	return false
}

// ContainsBankToken reports whether the description names a known bank.
func ContainsBankToken(description string) bool {
	tokens, normalized := tokenize(description)
	for _, bank := range BankTokens {
		if matchKeyword(tokens, normalized, bank) {
			return true
		}
	}
	return false
}

// ContainsFeeKeyword reports whether the description carries an
// explicit fee term.
func ContainsFeeKeyword(description string) bool {
	tokens, normalized := tokenize(description)
	for _, kw := range FeeKeywords {
		if matchKeyword(tokens, normalized, kw) {
			return true
		}
	}
	return false
}

// LooksLikeFee applies the fee heuristic: explicit keyword, or a
// typical fee amount tied to a known bank token.
func LooksLikeFee(description string, amount float64) bool {
	if ContainsFeeKeyword(description) {
		return true
	}
	return IsTypicalFeeAmount(amount) && ContainsBankToken(description)
}

// QueryKeywords is the closed vocabulary the query understander
// extracts into keyword filters.
var QueryKeywords = []string{
	"payroll", "gosi", "qiwa", "sadad", "swift", "atm", "salary", "rent",
	"vat", "zakat", "transfer", "pos", "iban", "sarie", "invoice", "fee",
	"fees", "subscription", "utilities", "insurance", "loan", "commission",
}
