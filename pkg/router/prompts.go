package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/mizanhq/mizan/pkg/protocol"
)

var (
	schemaOnce sync.Once
	schemaJSON string
)

// intentSchema renders the intent schema once. Definitions are inlined
// so the prompt stays self-contained for small models.
func intentSchema() string {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			DoNotReference:            true,
			AllowAdditionalProperties: false,
		}
		schema := reflector.Reflect(&protocol.QueryIntent{})
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			schemaJSON = "{}"
			return
		}
		schemaJSON = string(data)
	})
	return schemaJSON
}

func classifySystemPrompt() string {
	return fmt.Sprintf(`You classify questions about uploaded financial data into a structured intent.

You must respond with valid JSON matching this exact schema:

%s

Important:
- Output ONLY valid JSON, no other text
- Use only the query types listed in the request
- Extract filters only when the question states them explicitly
- confidence is your certainty in query_type, between 0 and 1
- search_terms are short phrases worth matching against the records`, intentSchema())
}

// classifyPrompt lists the query types of one document family so the
// small model never sees the other family's taxonomy.
func classifyPrompt(query string, dt protocol.DocumentType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\n", dt)
	fmt.Fprintf(&b, "Allowed query types: %s\n\n", strings.Join(allowedQueryTypes(dt), ", "))
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(query))
	return b.String()
}

func allowedQueryTypes(dt protocol.DocumentType) []string {
	if dt == protocol.DocumentTypeFinancial {
		return []string{
			string(protocol.QueryRatioAnalysis),
			string(protocol.QueryProfitabilityAnalysis),
			string(protocol.QueryLiquidityAnalysis),
			string(protocol.QueryRiskAssessment),
			string(protocol.QueryEfficiencyAnalysis),
			string(protocol.QueryTrendAnalysis),
			string(protocol.QueryMultiStatement),
			string(protocol.QuerySpecificLineItem),
			string(protocol.QueryGeneralOverview),
		}
	}
	return []string{
		string(protocol.QueryExpense),
		string(protocol.QueryIncome),
		string(protocol.QueryFee),
		string(protocol.QueryBudget),
		string(protocol.QueryTrendAnalysis),
		string(protocol.QueryTransactionSearch),
		string(protocol.QueryGeneralOverview),
	}
}
