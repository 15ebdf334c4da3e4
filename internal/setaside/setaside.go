// Package setaside owns the standardized set-aside taxonomy and the
// logic that matches raw classifier output against it.
package setaside

import (
	_ "embed"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

// Category is one standardized set-aside designation.
type Category struct {
	Code    string   `yaml:"code"`
	Label   string   `yaml:"label"`
	Aliases []string `yaml:"aliases"`
}

type taxonomy struct {
	PromptTemplate string     `yaml:"prompt_template"`
	Categories     []Category `yaml:"categories"`
}

var (
	tax     taxonomy
	byAlias map[string]Category
	byCode  map[string]Category
)

// foldStr case-folds for caseless comparison. A cases.Caser is stateful,
// so one is created per call rather than shared.
func foldStr(s string) string {
	return cases.Fold().String(s)
}

func init() {
	if err := yaml.Unmarshal(taxonomyYAML, &tax); err != nil {
		panic("setaside: invalid embedded taxonomy: " + err.Error())
	}
	byAlias = make(map[string]Category)
	byCode = make(map[string]Category, len(tax.Categories))
	for _, c := range tax.Categories {
		byCode[c.Code] = c
		byAlias[foldStr(c.Code)] = c
		byAlias[foldStr(c.Label)] = c
		for _, a := range c.Aliases {
			byAlias[foldStr(a)] = c
		}
	}
}

// Categories returns the fixed category set in taxonomy order.
func Categories() []Category {
	out := make([]Category, len(tax.Categories))
	copy(out, tax.Categories)
	return out
}

// ByCode returns the category with the given standardized code.
func ByCode(code string) (Category, bool) {
	c, ok := byCode[code]
	return c, ok
}

// NotApplicable is the explicit category for prospects with no
// set-aside text at all.
func NotApplicable() Category {
	c, _ := byCode["NA"]
	return c
}

// BuildPrompt renders the classification prompt for the given combined
// set-aside input string.
func BuildPrompt(input string) string {
	labels := make([]string, len(tax.Categories))
	for i, c := range tax.Categories {
		labels[i] = "- " + c.Label
	}
	p := strings.ReplaceAll(tax.PromptTemplate, "{categories}", strings.Join(labels, "\n"))
	return strings.ReplaceAll(p, "{input}", input)
}

// substringRule is one ordered matching heuristic applied after exact
// alias matching fails. All listed substrings must be present.
type substringRule struct {
	contains []string
	code     string
}

// Rules run in priority order; the first hit wins. The service-disabled
// check precedes the generic veteran check so SDVOSB text is not
// swallowed by VSA.
var substringRules = []substringRule{
	{contains: []string{"hubzone"}, code: "HZC"},
	{contains: []string{"8(a)"}, code: "8A"},
	{contains: []string{"8a"}, code: "8A"},
	{contains: []string{"women", "owned"}, code: "WOSB"},
	{contains: []string{"service", "disabled", "veteran"}, code: "SDVOSBC"},
	{contains: []string{"veteran", "owned"}, code: "VSA"},
	{contains: []string{"full and open"}, code: "NONE"},
	{contains: []string{"unrestricted"}, code: "NONE"},
	{contains: []string{"sole source"}, code: "SS"},
	{contains: []string{"small business"}, code: "SBA"},
	{contains: []string{"not applicable"}, code: "NA"},
	{contains: []string{"n/a"}, code: "NA"},
	{contains: []string{"none"}, code: "NA"},
}

// Match resolves raw classifier output (or raw source text) to a
// category: first an exact case-insensitive alias match, then the
// substring heuristics in priority order. Returns false when nothing
// matches; callers treat that as a per-kind failure, not a crash.
func Match(raw string) (Category, bool) {
	folded := foldStr(strings.TrimSpace(raw))
	if folded == "" {
		return Category{}, false
	}

	if c, ok := byAlias[folded]; ok {
		return c, true
	}

	for _, rule := range substringRules {
		hit := true
		for _, sub := range rule.contains {
			if !strings.Contains(folded, foldStr(sub)) {
				hit = false
				break
			}
		}
		if hit {
			return byCode[rule.code], true
		}
	}

	return Category{}, false
}

// Combine builds the comprehensive classification input from the
// prospect's primary set-aside field and any secondary small-business
// program text found in provenance. When both are present and differ
// the secondary is appended with a label; identical values are
// deduplicated.
func Combine(primary, secondary string) string {
	primary = strings.TrimSpace(primary)
	secondary = strings.TrimSpace(secondary)

	switch {
	case primary == "" && secondary == "":
		return ""
	case secondary == "":
		return primary
	case primary == "":
		return secondary
	case foldStr(primary) == foldStr(secondary):
		return primary
	default:
		return primary + "; program: " + secondary
	}
}
