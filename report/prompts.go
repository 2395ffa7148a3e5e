package report

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/faultgraph/retrieval"
	"github.com/brunobiangulo/faultgraph/store"
)

const answerSystemPrompt = `You are an equipment fault analysis assistant. Answer questions based ONLY on the provided incident context. If the context does not contain the answer, say so plainly. Cite accident codes when referencing specific incidents.`

const reportSystemPrompt = `You are a senior reliability engineer writing fault analysis reports for an industrial plant. Write in clear, structured markdown. Base every claim on the provided incident data; never invent equipment, causes, or measures not present in the context.`

// analysisTemplate defines the body of one report type.
type analysisTemplate struct {
	title    string
	sections []string
}

var analysisTemplates = map[string]analysisTemplate{
	RootCauseAnalysis: {
		title: "Root Cause Analysis",
		sections: []string{
			"Incident summary",
			"Failure chain: trace the sequence from surface phenomenon to root cause",
			"Root cause determination, citing evidence from the incident record",
			"Similar historical incidents and shared causes, if present in the context",
		},
	},
	PreventiveMeasures: {
		title: "Preventive Measures",
		sections: []string{
			"Incident summary",
			"Immediate corrective actions taken",
			"Recommended preventive measures, ranked by expected impact",
			"Monitoring and inspection recommendations for the affected equipment",
		},
	},
	Comprehensive: {
		title: "Comprehensive Analysis",
		sections: []string{
			"Incident overview: equipment, time, area, severity, downtime",
			"Failure analysis: surface phenomenon, fault location, root cause",
			"Treatment review: measures taken and their adequacy",
			"Related incidents: patterns across similar equipment or causes",
			"Recommendations: prevention, monitoring, and process improvements",
			"Loss assessment summary, if loss figures are available",
		},
	},
}

func buildAnswerPrompt(question, contextStr string) string {
	return fmt.Sprintf(`Context from the incident knowledge base:

%s

Question: %s

Answer based only on the context above.`, contextStr, question)
}

func buildReportPrompt(tmpl analysisTemplate, record store.Record, res *retrieval.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a %q report for incident %s.\n\n", tmpl.title, record.AccidentCode)

	b.WriteString("Cover these sections, in order:\n")
	for i, s := range tmpl.sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}

	b.WriteString("\n## Incident Record\n")
	b.WriteString(record.Content)
	b.WriteString("\n\n")

	if related := BuildContext(res); related != "" {
		b.WriteString("## Knowledge Base Context\n")
		b.WriteString(related)
		b.WriteString("\n")
	}

	return b.String()
}
