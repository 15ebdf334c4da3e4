package model

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

var errUnknownKind = eris.New("model: unknown enhancement kind")

// Kind identifies one enhancement type the pipeline can apply.
type Kind string

const (
	KindTitle    Kind = "title"
	KindValue    Kind = "value"
	KindNaics    Kind = "naics"
	KindSetAside Kind = "set_aside"

	// Sub-kinds accepted at the boundary; both resolve to KindNaics.
	KindNaicsCode        Kind = "naics_code"
	KindNaicsDescription Kind = "naics_description"
)

// PipelineOrder is the fixed order kinds are applied in.
var PipelineOrder = []Kind{KindTitle, KindValue, KindNaics, KindSetAside}

// KindSet is the set of enhancement kinds requested for one prospect.
type KindSet map[Kind]bool

// AllKinds returns a KindSet containing every pipeline kind.
func AllKinds() KindSet {
	return KindSet{KindTitle: true, KindValue: true, KindNaics: true, KindSetAside: true}
}

// ParseKinds parses the boundary representation of a kind selection:
// empty or "all" means every kind, otherwise a comma-separated subset.
// Unknown names are rejected. naics_code and naics_description both map
// to the naics kind.
func ParseKinds(s string) (KindSet, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return AllKinds(), true
	}

	set := KindSet{}
	for _, part := range strings.Split(s, ",") {
		switch Kind(strings.TrimSpace(part)) {
		case KindTitle:
			set[KindTitle] = true
		case KindValue:
			set[KindValue] = true
		case KindNaics, KindNaicsCode, KindNaicsDescription:
			set[KindNaics] = true
		case KindSetAside:
			set[KindSetAside] = true
		case "":
			// tolerate trailing commas
		default:
			return nil, false
		}
	}
	if len(set) == 0 {
		return nil, false
	}
	return set, true
}

// Has reports whether the set contains k.
func (ks KindSet) Has(k Kind) bool { return ks[k] }

// IsAll reports whether the set covers every pipeline kind.
func (ks KindSet) IsAll() bool {
	for _, k := range PipelineOrder {
		if !ks[k] {
			return false
		}
	}
	return true
}

// Slice returns the kinds in pipeline order.
func (ks KindSet) Slice() []Kind {
	out := make([]Kind, 0, len(ks))
	for _, k := range PipelineOrder {
		if ks[k] {
			out = append(out, k)
		}
	}
	return out
}

// String renders the set for logs and API responses.
func (ks KindSet) String() string {
	if ks.IsAll() {
		return "all"
	}
	parts := make([]string, 0, len(ks))
	for k := range ks {
		parts = append(parts, string(k))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// MarshalText implements encoding.TextMarshaler so KindSet round-trips
// through JSON as its boundary string form.
func (ks KindSet) MarshalText() ([]byte, error) {
	return []byte(ks.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ks *KindSet) UnmarshalText(b []byte) error {
	parsed, ok := ParseKinds(string(b))
	if !ok {
		return errUnknownKind
	}
	*ks = parsed
	return nil
}
