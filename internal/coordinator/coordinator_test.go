package coordinator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qwikswitch-bridge/internal/coordinator"
	"qwikswitch-bridge/internal/domain"
)

type pollResult struct {
	statuses domain.StatusMap
	err      error
}

type fakePoller struct {
	mu      sync.Mutex
	results []pollResult // consumed in order; the last one repeats
	calls   int
}

func (f *fakePoller) Poll(_ context.Context) (domain.StatusMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	i := f.calls - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i].statuses, f.results[i].err
}

func (f *fakePoller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingListener struct {
	mu  sync.Mutex
	got []domain.StatusMap
}

func (l *recordingListener) ApplyStatuses(statuses domain.StatusMap) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, statuses)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.got)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshFansOutToListeners(t *testing.T) {
	statuses := domain.StatusMap{
		"@a": {DeviceID: "@a", Class: domain.ClassRelay, Value: 100},
	}
	poller := &fakePoller{results: []pollResult{{statuses: statuses}}}
	coord := coordinator.New(poller, time.Second, testLogger())

	first := &recordingListener{}
	second := &recordingListener{}
	coord.Subscribe(first)
	coord.Subscribe(second)

	require.NoError(t, coord.Refresh(context.Background()))

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
	assert.Equal(t, statuses, coord.Data())
}

func TestDataReturnsCopy(t *testing.T) {
	poller := &fakePoller{results: []pollResult{{statuses: domain.StatusMap{
		"@a": {DeviceID: "@a", Class: domain.ClassRelay, Value: 100},
	}}}}
	coord := coordinator.New(poller, time.Second, testLogger())
	require.NoError(t, coord.Refresh(context.Background()))

	data := coord.Data()
	data["@a"] = domain.DeviceStatus{DeviceID: "@a", Value: 0}

	assert.Equal(t, 100, coord.Data()["@a"].Value)
}

func TestRefreshErrorLeavesDataAndListenersUntouched(t *testing.T) {
	poller := &fakePoller{results: []pollResult{
		{statuses: domain.StatusMap{"@a": {DeviceID: "@a", Value: 100}}},
		{err: errors.New("boom")},
	}}
	coord := coordinator.New(poller, time.Second, testLogger())
	listener := &recordingListener{}
	coord.Subscribe(listener)

	require.NoError(t, coord.Refresh(context.Background()))
	require.Error(t, coord.Refresh(context.Background()))

	assert.Equal(t, 1, listener.count())
	assert.Equal(t, 100, coord.Data()["@a"].Value)
}

func TestRunContinuesAfterFailedCycle(t *testing.T) {
	poller := &fakePoller{results: []pollResult{
		{err: errors.New("timeout")},
		{statuses: domain.StatusMap{"@a": {DeviceID: "@a", Value: 100}}},
	}}
	coord := coordinator.New(poller, 10*time.Millisecond, testLogger())
	listener := &recordingListener{}
	coord.Subscribe(listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	// The first cycle fails; a later cycle still delivers data on schedule.
	require.Eventually(t, func() bool {
		return listener.count() >= 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, poller.callCount(), 2)
}
