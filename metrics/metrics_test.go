package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	require.NotNil(t, c)

	c.DialogsCreated.Inc()
	c.UsagesCreated.WithLabelValues("client_invite").Inc()
	c.DialogsActive.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	var found bool
	for _, f := range families {
		if f.GetName() == "dum_dialog_created_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(1), f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestUsagesCreatedLabeledByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.UsagesCreated.WithLabelValues("server_invite").Inc()
	c.UsagesCreated.WithLabelValues("server_invite").Inc()
	c.UsagesCreated.WithLabelValues("client_subscription").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var metrics []*dto.Metric
	for _, f := range families {
		if f.GetName() == "dum_usage_created_total" {
			metrics = f.Metric
		}
	}
	require.Len(t, metrics, 2)
}
