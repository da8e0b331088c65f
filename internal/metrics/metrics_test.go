package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })

	FetchesTotal.WithLabelValues("http", "finished").Inc()
	DeepSearchRounds.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(FetchesTotal.WithLabelValues("http", "finished")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(DeepSearchRounds), 1.0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "smartsearch_fetches_total")
	assert.Contains(t, names, "smartsearch_deep_search_rounds_total")
}

func TestRegister_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	assert.Panics(t, func() { Register(reg) })
}
