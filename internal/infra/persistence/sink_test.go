package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/LouYuanbo1/authorharvest/internal/infra/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu    sync.Mutex
	name  string
	err   error
	calls int
	table [][]string
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) Publish(_ context.Context, header []string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.table = append([][]string{header}, rows...)
	return nil
}

func TestFanoutPublishesToEverySink(t *testing.T) {
	a, b := &memorySink{name: "a"}, &memorySink{name: "b"}
	f := NewFanout(zap.NewNop(), metrics.New(), a, b)

	require.NoError(t, f.Publish(context.Background(), []string{"h"}, [][]string{{"1"}, {"2"}}))
	for _, s := range []*memorySink{a, b} {
		assert.Equal(t, 1, s.calls)
		assert.Equal(t, [][]string{{"h"}, {"1"}, {"2"}}, s.table)
	}
}

func TestFanoutWrapsSinkError(t *testing.T) {
	m := metrics.New()
	bad := &memorySink{name: "sheets", err: ErrUnauthorized}
	f := NewFanout(zap.NewNop(), m, &memorySink{name: "xlsx"}, bad)

	err := f.Publish(context.Background(), []string{"h"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Contains(t, err.Error(), "sheets")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishErrors.WithLabelValues("sheets")))
}

func TestFanoutWithoutSinks(t *testing.T) {
	assert.Error(t, NewFanout(zap.NewNop(), nil).Publish(context.Background(), nil, nil))
}
