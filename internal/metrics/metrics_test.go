package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRecorder(reg)
	m.Checkpoints.WithLabelValues(KindLabel(framing.KindAll)).Inc()
	m.Checkpoints.WithLabelValues(KindLabel(framing.KindAll)).Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(m.Checkpoints.WithLabelValues("all")))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestKindLabel(t *testing.T) {
	require.Equal(t, "statics", KindLabel(framing.KindStatics))
	require.Equal(t, "thread", KindLabel(framing.KindThread))
	require.Equal(t, "other", KindLabel(framing.KindThread|framing.KindStatics))
}

func TestReregisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewRecorder(reg)
	a.StoreWrites.Inc()
	b := NewRecorder(reg)
	b.StoreWrites.Inc()
	require.Equal(t, 2.0, testutil.ToFloat64(a.StoreWrites))
}
