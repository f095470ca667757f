// Package costmatrix builds and represents the demand x facility travel-cost table that
// couples geometry to the optimization layer.
package costmatrix

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Sentinel is the cost charged for a (demand, facility) pair missing from the matrix.
// It deters the assignment without forbidding it.
const Sentinel = 1e9

var ErrMalformed = errors.New("malformed cost matrix")

// Matrix maps demand id -> facility id -> non-negative cost. Ids keep the order in which
// they were first seen, which fixes the enumeration order used by the solver.
// A Matrix is immutable once built.
type Matrix struct {
	demandIDs   []string
	facilityIDs []string
	rows        map[string]map[string]float64
}

// Entry is one (demand, facility, cost) triple used to assemble a Matrix.
type Entry struct {
	Demand, Facility string
	Cost             float64
}

// New assembles a Matrix from entries; ids are ordered by first appearance.
func New(entries []Entry) (*Matrix, error) {
	b := newBuilder()
	for _, e := range entries {
		if err := b.set(e.Demand, e.Facility, e.Cost); err != nil {
			return nil, err
		}
	}
	return b.m, nil
}

// FromMap is a convenience for literals. Ids are sorted to keep the order deterministic.
func FromMap(costs map[string]map[string]float64) (*Matrix, error) {
	b := newBuilder()
	for _, d := range sortedKeys(costs) {
		row := costs[d]
		b.row(d)
		for _, f := range sortedKeys(row) {
			if err := b.set(d, f, row[f]); err != nil {
				return nil, err
			}
		}
	}
	return b.m, nil
}

// Empty returns a matrix with no rows.
func Empty() *Matrix { return newBuilder().m }

type matrixBuilder struct {
	m    *Matrix
	seen map[string]struct{}
}

func newBuilder() *matrixBuilder {
	return &matrixBuilder{m: &Matrix{rows: map[string]map[string]float64{}}, seen: map[string]struct{}{}}
}

func (b *matrixBuilder) row(d string) map[string]float64 {
	r, ok := b.m.rows[d]
	if !ok {
		r = map[string]float64{}
		b.m.rows[d] = r
		b.m.demandIDs = append(b.m.demandIDs, d)
	}
	return r
}

func (b *matrixBuilder) set(d, f string, cost float64) error {
	if d == "" || f == "" {
		return fmt.Errorf("%w: empty identifier", ErrMalformed)
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		return fmt.Errorf("%w: cost %v for (%s, %s)", ErrMalformed, cost, d, f)
	}
	b.row(d)[f] = cost
	if _, ok := b.seen[f]; !ok {
		b.seen[f] = struct{}{}
		b.m.facilityIDs = append(b.m.facilityIDs, f)
	}
	return nil
}

// DemandIDs returns the demand ids in enumeration order.
func (m *Matrix) DemandIDs() []string { return append([]string(nil), m.demandIDs...) }

// FacilityIDs returns every facility id referenced by any row, in enumeration order.
func (m *Matrix) FacilityIDs() []string { return append([]string(nil), m.facilityIDs...) }

// Cost returns the stored cost of serving d from f.
func (m *Matrix) Cost(d, f string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	c, ok := m.rows[d][f]
	return c, ok
}

// CostOrSentinel returns the stored cost or Sentinel when the pair is missing.
func (m *Matrix) CostOrSentinel(d, f string) float64 {
	if c, ok := m.Cost(d, f); ok {
		return c
	}
	return Sentinel
}

// Len reports the number of demand rows and distinct facility columns.
func (m *Matrix) Len() (demand, facilities int) {
	if m == nil {
		return 0, 0
	}
	return len(m.demandIDs), len(m.facilityIDs)
}

// Empty reports whether there is nothing to solve: no demand rows or no facility columns.
func (m *Matrix) Empty() bool {
	d, f := m.Len()
	return d == 0 || f == 0
}

// Missing counts (demand, facility) pairs absent from the matrix.
func (m *Matrix) Missing() int {
	d, f := m.Len()
	n := d * f
	for _, r := range m.rows {
		n -= len(r)
	}
	return n
}

// MarshalJSON writes the nested mapping in enumeration order. Floats use the shortest
// representation that parses back to the same value.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range m.demandIDs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, d)
		buf.WriteByte('{')
		first := true
		row := m.rows[d]
		for _, f := range m.facilityIDs {
			c, ok := row[f]
			if !ok {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeKey(&buf, f)
			buf.WriteString(strconv.FormatFloat(c, 'g', -1, 64))
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, k string) {
	kb, _ := json.Marshal(k)
	buf.Write(kb)
	buf.WriteByte(':')
}

// UnmarshalJSON parses the nested mapping while preserving key order.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	b := newBuilder()
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		dk, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d, _ := dk.(string)
		b.row(d)
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		for dec.More() {
			fk, err := dec.Token()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			f, _ := fk.(string)
			vt, err := dec.Token()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			num, ok := vt.(json.Number)
			if !ok {
				return fmt.Errorf("%w: non-numeric cost for (%s, %s)", ErrMalformed, d, f)
			}
			v, err := num.Float64()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if err := b.set(d, f, v); err != nil {
				return err
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	if _, err := dec.Token(); err == nil {
		return fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	*m = *b.m
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformed, want, tok)
	}
	return nil
}

// Parse decodes a persisted matrix.
func Parse(data []byte) (*Matrix, error) {
	m := Empty()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}
