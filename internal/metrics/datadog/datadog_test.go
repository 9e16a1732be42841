package datadog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendorport/internal/metrics"
)

type fakeClient struct {
	counts  map[string]int64
	tags    [][]string
	hists   []float64
	flushed int
	closed  bool
}

func (f *fakeClient) Count(name string, v int64, tags []string, _ float64) error {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[name] += v
	f.tags = append(f.tags, tags)
	return nil
}
func (f *fakeClient) Histogram(_ string, v float64, _ []string, _ float64) error {
	f.hists = append(f.hists, v)
	return nil
}
func (f *fakeClient) Flush() error { f.flushed++; return nil }
func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestBackend(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 7, metrics.Labels{"kind": "inserted"})
	b.ObserveHistogram(metrics.StepDuration, 0.5, nil)
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())

	assert.Equal(t, int64(7), fc.counts[metrics.RowsTotal])
	assert.Equal(t, []string{"status:success", "step:load"}, fc.tags[0])
	assert.Equal(t, []float64{0.5}, fc.hists)
	assert.Equal(t, 1, fc.flushed)
	assert.True(t, fc.closed)
}

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()
	_, err := NewBackend(Config{})
	require.Error(t, err)
}
