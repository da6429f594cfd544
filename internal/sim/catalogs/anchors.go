package catalogs

import (
	"encoding/json"
	"fmt"
)

// AnchorTable maps archetype -> trait -> resting value.
type AnchorTable map[string]map[string]float64

// Lookup returns the anchors for archetype.
func (t AnchorTable) Lookup(archetype string) (map[string]float64, bool) {
	a, ok := t[archetype]
	return a, ok
}

type AnchorCatalog struct {
	Table  AnchorTable
	Digest string
}

func loadAnchors(path string, out *AnchorCatalog) error {
	raw, digest, err := readValidated(path)
	if err != nil {
		return err
	}
	out.Digest = digest
	table, err := ParseAnchors(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", AnchorsFile, err)
	}
	out.Table = table
	return nil
}

// ParseAnchors accepts the anchor shapes seen in the wild and normalizes them:
//
//	{"Archetype": {"Trait": 60}}
//	{"Archetype": {"anchor": {"Trait": 60}}}
//	{"Archetype": {"Trait": {"anchor": 60}}}
//
// each optionally wrapped in {"archetypes": ...}.
func ParseAnchors(raw []byte) (AnchorTable, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(unwrap(raw, "archetypes"), &top); err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, fmt.Errorf("no archetypes")
	}
	table := make(AnchorTable, len(top))
	for arch, body := range top {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("archetype %s: %w", arch, err)
		}
		if inner, ok := fields["anchor"]; ok {
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(inner, &nested); err == nil {
				fields = nested
			}
		}
		traits := make(map[string]float64, len(fields))
		for trait, v := range fields {
			f, err := anchorValue(v)
			if err != nil {
				return nil, fmt.Errorf("archetype %s trait %s: %w", arch, trait, err)
			}
			traits[trait] = f
		}
		table[arch] = traits
	}
	return table, nil
}

func anchorValue(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var obj struct {
		Anchor *float64 `json:"anchor"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Anchor == nil {
		return 0, fmt.Errorf("want number or {\"anchor\": number}")
	}
	return *obj.Anchor, nil
}
