package setaside

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchExactAliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		code string
	}{
		{"Total Small Business Set-Aside", "SBA"},
		{"SMALL BUSINESS", "SBA"},
		{"8(a) Set-Aside", "8A"},
		{"HUBZone", "HZC"},
		{"WOSB", "WOSB"},
		{"EDWOSB", "WOSB"},
		{"SDVOSB", "SDVOSBC"},
		{"Veteran-Owned Small Business", "VSA"},
		{"Sole Source", "SS"},
		{"Full and Open Competition", "NONE"},
		{"Unrestricted", "NONE"},
		{"Not Applicable", "NA"},
		{"N/A", "NA"},
	}
	for _, tc := range tests {
		c, ok := Match(tc.in)
		require.True(t, ok, tc.in)
		assert.Equal(t, tc.code, c.Code, tc.in)
	}
}

func TestMatchSubstringHeuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		code string
	}{
		{"This is a HUBZone set aside procurement", "HZC"},
		{"Competitive 8(a) program opportunity", "8A"},
		{"Reserved for women owned businesses", "WOSB"},
		{"service-disabled veteran-owned concern", "SDVOSBC"},
		{"veteran owned small business preferred", "VSA"},
		{"Competed under full and open procedures", "NONE"},
		{"unrestricted competition applies", "NONE"},
		{"awarded on a sole source basis", "SS"},
		{"open only to small business concerns", "SBA"},
	}
	for _, tc := range tests {
		c, ok := Match(tc.in)
		require.True(t, ok, tc.in)
		assert.Equal(t, tc.code, c.Code, tc.in)
	}
}

func TestMatchPriorityOrder(t *testing.T) {
	t.Parallel()

	// HUBZone beats the generic small-business rule when both appear.
	c, ok := Match("HUBZone small business set aside")
	require.True(t, ok)
	assert.Equal(t, "HZC", c.Code)

	// Service-disabled wins over the plain veteran rule.
	c, ok = Match("service disabled veteran owned")
	require.True(t, ok)
	assert.Equal(t, "SDVOSBC", c.Code)
}

func TestMatchNoHit(t *testing.T) {
	t.Parallel()

	_, ok := Match("completely unrelated text")
	assert.False(t, ok)

	_, ok = Match("")
	assert.False(t, ok)

	_, ok = Match("   ")
	assert.False(t, ok)
}

func TestCombine(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Combine("", ""))
	assert.Equal(t, "HUBZone", Combine("HUBZone", ""))
	assert.Equal(t, "8(a)", Combine("", "8(a)"))
	// Identical values deduplicate.
	assert.Equal(t, "HUBZone", Combine("HUBZone", "hubzone"))
	// Differing values concatenate with a label.
	assert.Equal(t, "Small Business; program: 8(a)", Combine("Small Business", "8(a)"))
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("Total Small Business")
	assert.Contains(t, p, "Total Small Business")
	for _, c := range Categories() {
		assert.Contains(t, p, c.Label)
	}
	assert.False(t, strings.Contains(p, "{input}"))
	assert.False(t, strings.Contains(p, "{categories}"))
}

func TestNotApplicable(t *testing.T) {
	t.Parallel()

	na := NotApplicable()
	assert.Equal(t, "NA", na.Code)
	assert.Equal(t, "Not Applicable", na.Label)
}

func TestByCode(t *testing.T) {
	t.Parallel()

	c, ok := ByCode("SBA")
	require.True(t, ok)
	assert.Equal(t, "Total Small Business Set-Aside", c.Label)

	_, ok = ByCode("XX")
	assert.False(t, ok)
}
