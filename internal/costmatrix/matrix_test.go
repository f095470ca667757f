package costmatrix

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatrixJSONRoundTripKeepsOrderAndValues(t *testing.T) {
	m, err := New([]Entry{
		{"PRAC2", "F_B", 12.000000000000002},
		{"PRAC2", "F_A", 5},
		{"PRAC1", "F_A", 0.1 + 0.2},
		{"PRAC1", "F_B", 1234567.891011},
	})
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `{"PRAC2":{"F_B":12.000000000000002,"F_A":5},"PRAC1":{"F_B":1234567.891011,"F_A":0.30000000000000004}}`, string(data))

	back, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, m.DemandIDs(), back.DemandIDs())
	require.Equal(t, m.FacilityIDs(), back.FacilityIDs())
	for _, d := range m.DemandIDs() {
		for _, f := range m.FacilityIDs() {
			want, _ := m.Cost(d, f)
			got, ok := back.Cost(d, f)
			require.True(t, ok)
			require.Equal(t, want, got)
		}
	}
}

func TestMatrixSparseRowsUseSentinel(t *testing.T) {
	m, err := FromMap(map[string]map[string]float64{
		"a": {"x": 1},
		"b": {"y": 2},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, m.DemandIDs())
	require.Equal(t, []string{"x", "y"}, m.FacilityIDs())
	require.Equal(t, 2, m.Missing())
	require.Equal(t, Sentinel, m.CostOrSentinel("a", "y"))
	require.Equal(t, 2.0, m.CostOrSentinel("b", "y"))
}

func TestMatrixRejectsBadCosts(t *testing.T) {
	_, err := New([]Entry{{"a", "x", -1}})
	require.ErrorIs(t, err, ErrMalformed)
	_, err = New([]Entry{{"a", "x", math.NaN()}})
	require.ErrorIs(t, err, ErrMalformed)

	for _, doc := range []string{
		``,
		`[]`,
		`{"a":{"x":"1"}}`,
		`{"a":{"x":-3}}`,
		`{"a":{"x":1}} {}`,
		`{"a":{"x":1}`,
	} {
		_, err := Parse([]byte(doc))
		require.ErrorIs(t, err, ErrMalformed, doc)
	}
}

func TestEmptyMatrix(t *testing.T) {
	m := Empty()
	require.True(t, m.Empty())
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `{}`, string(data))

	back, err := Parse(data)
	require.NoError(t, err)
	require.True(t, back.Empty())

	// demand without any facility column is still nothing to solve
	back, err = Parse([]byte(`{"a":{}}`))
	require.NoError(t, err)
	require.True(t, back.Empty())
}
