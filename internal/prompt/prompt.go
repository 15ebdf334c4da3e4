// Package prompt holds the pure prompt builders for each enrichment use
// case. Builders format typed inputs into completion prompts; the
// pipeline calls each one once per attempt.
package prompt

import (
	"fmt"
	"strings"
)

// TitleInput is the context handed to the title-enhancement prompt.
type TitleInput struct {
	Title       string
	Description string
	Agency      string
}

// Title builds the title-enhancement prompt. The model is asked for a
// JSON object so the response survives strict parsing.
func Title(in TitleInput) string {
	var b strings.Builder
	b.WriteString("Rewrite this federal procurement title so a contractor can tell at a glance what is being bought. ")
	b.WriteString("Keep it under 100 characters, keep agency-specific identifiers, and do not invent details.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	if in.Agency != "" {
		fmt.Fprintf(&b, "Agency: %s\n", in.Agency)
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", truncate(in.Description, 2000))
	}
	b.WriteString("\nRespond with only a JSON object: {\"enhanced_title\": \"...\", \"confidence\": 0.0}\n")
	return b.String()
}

// Value builds the value-parsing prompt for a raw contract value string.
func Value(raw string) string {
	var b strings.Builder
	b.WriteString("Parse this federal contract value text into numbers. ")
	b.WriteString("If it names one amount, return it as \"single\". If it names a range, return \"min\" and \"max\". ")
	b.WriteString("Use plain numbers without currency symbols or abbreviations (\"$1.2M\" is 1200000). ")
	b.WriteString("Use null for anything the text does not state.\n\n")
	fmt.Fprintf(&b, "Value text: %s\n", raw)
	b.WriteString("\nRespond with only a JSON object: {\"single\": null, \"min\": null, \"max\": null}\n")
	return b.String()
}

// NaicsInput is the full record context handed to the NAICS classifier.
type NaicsInput struct {
	Title        string
	Description  string
	Agency       string
	ContractType string
	SetAside     string
	ValueText    string
}

// Naics builds the industry-classification prompt. The classifier is
// asked for a ranked candidate list; the pipeline validates the top
// code against the static table before accepting it.
func Naics(in NaicsInput) string {
	var b strings.Builder
	b.WriteString("Classify this federal procurement into the single most likely 6-digit NAICS industry code. ")
	b.WriteString("Rank up to three candidates, best first.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", truncate(in.Description, 2000))
	}
	if in.Agency != "" {
		fmt.Fprintf(&b, "Agency: %s\n", in.Agency)
	}
	if in.ContractType != "" {
		fmt.Fprintf(&b, "Contract type: %s\n", in.ContractType)
	}
	if in.SetAside != "" {
		fmt.Fprintf(&b, "Set-aside: %s\n", in.SetAside)
	}
	if in.ValueText != "" {
		fmt.Fprintf(&b, "Estimated value: %s\n", in.ValueText)
	}
	b.WriteString("\nRespond with only a JSON object: {\"candidates\": [{\"code\": \"541511\", \"confidence\": 0.0}]}\n")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
