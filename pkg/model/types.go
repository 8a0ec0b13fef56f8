package model

// Rows is tabular data as a list of records. Each entry maps a column
// name to a value. It is the shape model variants consume and produce.
type Rows []map[string]any

// Params is an opaque key/value map used for variant settings and
// per-operation parameters. The registry never inspects its contents.
type Params map[string]any

// Clone returns a shallow copy of the rows slice with copied record maps.
// Variants that retain input data should clone it first so later caller
// mutations do not leak into persisted state.
func (r Rows) Clone() Rows {
	if r == nil {
		return nil
	}
	out := make(Rows, len(r))
	for i, rec := range r {
		cp := make(map[string]any, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Clone returns a shallow copy of the parameter map.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
