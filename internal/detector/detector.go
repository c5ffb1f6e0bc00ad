// Package detector implements edge-triggered change detection over market
// data observables.
//
// A Detector remembers, per observable and field list, the values seen on the
// previous call. Changed reports true on the first call for a key and
// whenever any watched field differs from what was stored last time; it always
// stores the current values, so a value that stays put reports false on every
// subsequent call.
package detector

import (
	"math"
	"reflect"
	"strings"

	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Values is a copy of the watched fields of an observable, in watch order.
type Values []any

// Detector holds observed field sets. It is not safe for concurrent use;
// every strategy instance owns its own detector.
type Detector struct {
	seen map[string]Values
}

// New creates an empty detector.
func New() *Detector {
	return &Detector{seen: map[string]Values{}}
}

// Changed reports whether any of the named fields of obj changed since the
// previous call with the same observable and field list. With no fields,
// every field of obj is watched.
func (d *Detector) Changed(obj types.Observable, fields ...string) bool {
	if obj == nil {
		return false
	}

	if len(fields) == 0 {
		fields = obj.FieldNames()
	}

	key := obj.ObservableID() + "|" + strings.Join(fields, ",")
	cur := Capture(obj, fields...)

	prev, ok := d.seen[key]
	d.seen[key] = cur

	if !ok {
		return true
	}

	return Diff(prev, cur)
}

// Reset forgets everything observed so far.
func (d *Detector) Reset() {
	clear(d.seen)
}

// Len returns the number of tracked field sets.
func (d *Detector) Len() int {
	return len(d.seen)
}

// Capture copies the named field values of obj. Unknown fields capture as nil.
func Capture(obj types.Observable, fields ...string) Values {
	out := make(Values, len(fields))
	for i, name := range fields {
		v, _ := obj.FieldValue(name)
		out[i] = v
	}

	return out
}

// Diff reports whether cur differs from prev. Field sets of different
// length always differ. NaN compares equal to NaN.
func Diff(prev, cur Values) bool {
	if len(prev) != len(cur) {
		return true
	}

	for i := range prev {
		if !equal(prev[i], cur[i]) {
			return true
		}
	}

	return false
}

func equal(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)

	if aok && bok {
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}

		return af == bf
	}

	return reflect.DeepEqual(a, b)
}
