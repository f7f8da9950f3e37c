package equation

import (
	"github.com/adjoint-ml/adjoint/internal/value"
)

// TangentLinearMap associates each forward value with its tangent value for
// one perturbation direction (m, dm): tangents propagate the directional
// derivative d/dc at c = 0 of the forward computation with m replaced by
// m + c*dm.
//
// Tangents of non-static values are created lazily, zero-initialized.
// Static values carry no tangent.
type TangentLinearMap struct {
	m        []value.Value
	dm       []value.Value
	tangents map[uint64]value.Value
}

// NewTangentLinearMap creates the map for direction (m, dm).
func NewTangentLinearMap(m, dm []value.Value) *TangentLinearMap {
	return &TangentLinearMap{
		m:        append([]value.Value(nil), m...),
		dm:       append([]value.Value(nil), dm...),
		tangents: make(map[uint64]value.Value),
	}
}

// Direction returns the controls and perturbations defining this map.
func (t *TangentLinearMap) Direction() (m, dm []value.Value) { return t.m, t.dm }

// Tangent returns the tangent value of v, creating it if needed. Controls
// return their perturbation direction. Static non-control values return
// nil.
func (t *TangentLinearMap) Tangent(v value.Value) value.Value {
	for i, c := range t.m {
		if c.ID() == v.ID() {
			return t.dm[i]
		}
	}
	if v.IsStatic() {
		return nil
	}
	tau, ok := t.tangents[v.ID()]
	if !ok {
		tau = v.NewLike()
		t.tangents[v.ID()] = tau
	}
	return tau
}

// Lookup returns the existing tangent of v without creating one.
func (t *TangentLinearMap) Lookup(v value.Value) (value.Value, bool) {
	for i, c := range t.m {
		if c.ID() == v.ID() {
			return t.dm[i], true
		}
	}
	tau, ok := t.tangents[v.ID()]
	return tau, ok
}
