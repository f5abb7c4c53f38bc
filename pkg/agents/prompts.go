package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/protocol"
)

const systemPrompt = `You are Mizan, a financial analyst for Saudi businesses. ` +
	`All amounts are in Saudi Riyals (SAR). Ground every figure you state in ` +
	`the provided context; never invent numbers. Answer in clear English for ` +
	`a business owner, not an accountant.`

// Aspects is the structure of a thinking prompt. Every agent fills the
// same seven slots so the reasoning call always walks the same ground:
// period, taxonomy, method, business setting, inputs, unknowns, shape
// of the answer.
type Aspects struct {
	TimePeriod       string
	Categories       string
	AnalysisType     string
	BusinessContext  string
	DataRequirements string
	OpenQuestions    string
	OutputFormat     string
}

func thinkingPrompt(cat protocol.AgentCategory, query string, a Aspects) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are performing the %s analysis.\n\n", cat)
	if strings.TrimSpace(query) != "" {
		fmt.Fprintf(&b, "Request: %s\n\n", strings.TrimSpace(query))
	}
	b.WriteString("Think through each aspect before any conclusion:\n")
	fmt.Fprintf(&b, "1. Time period: %s\n", a.TimePeriod)
	fmt.Fprintf(&b, "2. Categories: %s\n", a.Categories)
	fmt.Fprintf(&b, "3. Analysis type: %s\n", a.AnalysisType)
	fmt.Fprintf(&b, "4. Business context: %s\n", a.BusinessContext)
	fmt.Fprintf(&b, "5. Data requirements: %s\n", a.DataRequirements)
	fmt.Fprintf(&b, "6. Open questions: %s\n", a.OpenQuestions)
	fmt.Fprintf(&b, "7. Output format: %s\n", a.OutputFormat)
	return b.String()
}

func finalPrompt(cat protocol.AgentCategory, query, thinking, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the final %s analysis for the business owner.\n\n", cat)
	if strings.TrimSpace(query) != "" {
		fmt.Fprintf(&b, "Request: %s\n\n", strings.TrimSpace(query))
	}
	if strings.TrimSpace(thinking) != "" {
		b.WriteString("Your earlier reasoning:\n")
		b.WriteString(strings.TrimSpace(thinking))
		b.WriteString("\n\n")
	}
	b.WriteString("Computed figures (authoritative, use these numbers exactly):\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\nAnswer with the key findings first, then the numbers behind them.")
	return b.String()
}

// chatPrompt builds the one-call prompt. A filtered retrieval takes
// precedence: the model is told to answer from the matching records and
// to treat the cached analysis as background only.
func chatPrompt(cat protocol.AgentCategory, exec *Execution, contextBudget int) (string, []protocol.Source) {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer this question using the %s analysis context below.\n\n", cat)
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(exec.Query))

	var sources []protocol.Source
	if len(exec.Retrieved) > 0 {
		if exec.Filtered {
			b.WriteString("Matching records (answer from these; the cached analysis is background only):\n")
		} else {
			b.WriteString("Relevant records:\n")
		}
		for _, r := range exec.Retrieved {
			fmt.Fprintf(&b, "- %s\n", r.Content)
			sources = append(sources, protocol.Source{
				ID:      r.ID,
				Content: r.Content,
				Score:   float64(r.Score),
			})
		}
		b.WriteString("\n")
	}

	if cached := exec.cachedResult(cat); cached != nil {
		b.WriteString("Cached analysis:\n")
		b.WriteString(trimToTokens(renderCached(cached), contextBudget))
		b.WriteString("\n\n")
	}

	b.WriteString("Answer directly from the context above. If it cannot answer the question, say so.")
	return b.String(), sources
}

// renderCached flattens a cached slot for prompt context. Thinking is
// excluded: it never leaves the process.
func renderCached(r *protocol.AgentResult) string {
	var b strings.Builder
	if r.FinalAnswer != "" {
		b.WriteString(r.FinalAnswer)
		b.WriteString("\n")
	}
	if len(r.Analysis) > 0 {
		if data, err := json.Marshal(r.Analysis); err == nil {
			b.Write(data)
		}
	}
	return b.String()
}
