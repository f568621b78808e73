// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import "strings"

// Card is the result card the UI renders for a tool call.
type Card string

const (
	CardMarketData    Card = "market_data"
	CardEstimates     Card = "estimates"
	CardDocuments     Card = "documents"
	CardFilingExtract Card = "filing_extract"
	CardQA            Card = "qa"
	CardCalculation   Card = "calculation"
	CardValuation     Card = "valuation"
	CardReportSave    Card = "report_save"
	CardJSONExtract   Card = "json_extract"
	CardJSONInspect   Card = "json_inspect"
	CardDocDiff       Card = "doc_diff"
	CardVisualization Card = "visualization"
	CardBash          Card = "bash"
	CardGeneric       Card = "generic"
)

var cliCards = map[string]Card{
	"mf-market-get":          CardMarketData,
	"mf-estimates-get":       CardEstimates,
	"mf-documents-get":       CardDocuments,
	"mf-filing-extract":      CardFilingExtract,
	"mf-qa":                  CardQA,
	"mf-calc-simple":         CardCalculation,
	"mf-valuation-basic-dcf": CardValuation,
	"mf-report-save":         CardReportSave,
	"mf-extract-json":        CardJSONExtract,
	"mf-json-inspect":        CardJSONInspect,
	"mf-doc-diff":            CardDocDiff,
	"mf-render-metrics":      CardVisualization,
	"mf-render-comparison":   CardVisualization,
	"mf-render-insight":      CardVisualization,
	"mf-render-timeline":     CardVisualization,
}

// CardFor picks the card for a tool call. cliTool wins over tool; both
// underscore and dash spellings of CLI names are accepted.
func CardFor(tool, cliTool string) Card {
	name := strings.ToLower(strings.TrimSpace(cliTool))
	if name != "" {
		if c, ok := cliCards[strings.ReplaceAll(name, "_", "-")]; ok {
			return c
		}
	}
	if strings.EqualFold(strings.TrimSpace(tool), "bash") {
		return CardBash
	}
	return CardGeneric
}
