package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered flattens the registry into "name{label=value,...}" -> value.
func gathered(t *testing.T, r *Recorder) map[string]float64 {
	t.Helper()

	families, err := r.registry.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			key := family.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestRecorder_Counts(t *testing.T) {
	r := New()

	r.Step("sepolia", "artifact", OutcomeExecuted, 2*time.Second)
	r.Step("sepolia", "artifact", OutcomeSkipped, 0)
	r.Step("sepolia", "artifact", OutcomeSkipped, 0)
	r.Retry("sepolia")
	r.Verification("sepolia", false)

	values := gathered(t, r)
	assert.Equal(t, 1.0, values["deployer_steps_total{kind=artifact,network=sepolia,outcome=executed}"])
	assert.Equal(t, 2.0, values["deployer_steps_total{kind=artifact,network=sepolia,outcome=skipped}"])
	assert.Equal(t, 1.0, values["deployer_retries_total{network=sepolia}"])
	assert.Equal(t, 1.0, values["deployer_verifications_total{network=sepolia,result=failed}"])
	assert.Equal(t, 1.0, values["deployer_step_duration_seconds{kind=artifact,network=sepolia}"])
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.Step("sepolia", "action", OutcomeFailed, time.Second)
		r.Retry("sepolia")
		r.Verification("sepolia", true)
	})
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "deployer.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.Step("mumbai", "action", OutcomeExecuted, time.Second)

	path := filepath.Join(t.TempDir(), "deployer.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `deployer_steps_total{kind="action",network="mumbai",outcome="executed"} 1`)
}
