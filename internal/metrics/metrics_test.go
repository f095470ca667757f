package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	Solves.WithLabelValues("Optimal").Inc()
	require.GreaterOrEqual(t, testutil.ToFloat64(Solves.WithLabelValues("Optimal")), 1.0)
	n, err := testutil.GatherAndCount(Registry, "cflp_solves_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}
