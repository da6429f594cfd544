// Package gravity holds the trait-to-trait influence matrix and the
// per-coach context overlay applied on top of it.
package gravity

// Matrix maps source trait -> target trait -> influence weight.
// A loaded Matrix is shared by every coach and must be treated as read-only.
type Matrix map[string]map[string]float64

// Weight returns m[src][dst], or 0 when either key is absent.
func (m Matrix) Weight(src, dst string) float64 {
	row, ok := m[src]
	if !ok {
		return 0
	}
	return row[dst]
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for src, row := range m {
		cp := make(map[string]float64, len(row))
		for dst, w := range row {
			cp[dst] = w
		}
		out[src] = cp
	}
	return out
}

// Override is one additive adjustment a context makes to the matrix.
type Override struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Delta  float64 `json:"delta"`
}

// Context is a named, time-limited modifier of the gravity matrix.
type Context struct {
	GravityOverrides []Override `json:"gravity_overrides"`
}

// Overlay returns base with the overrides of every active context added in.
//
// With no active contexts the base matrix itself is returned (no copy).
// Otherwise the result is a fresh copy; base is never written to. Unknown
// context ids are skipped.
func Overlay(base Matrix, active []string, contexts map[string]Context) Matrix {
	if len(active) == 0 {
		return base
	}
	out := base.Clone()
	for _, id := range active {
		ctx, ok := contexts[id]
		if !ok {
			continue
		}
		for _, ov := range ctx.GravityOverrides {
			row, ok := out[ov.Source]
			if !ok {
				row = map[string]float64{}
				out[ov.Source] = row
			}
			row[ov.Target] += ov.Delta
		}
	}
	return out
}
