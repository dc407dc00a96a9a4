package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_RegisterCleanly(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	for _, c := range Collectors() {
		require.NoError(t, reg.Register(c))
	}
}

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SessionsRejected.WithLabelValues("test"))
	SessionsRejected.WithLabelValues("test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SessionsRejected.WithLabelValues("test")))

	FeedState.WithLabelValues("test").Set(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(FeedState.WithLabelValues("test")))
}
