package samplemux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epson-sensing/esensor/internal/burst"
)

type step struct {
	sample burst.Sample
	err    error
}

// scriptedSampler serves steps pushed by the test, one per ReadSample call,
// and reports io.EOF once the script is closed.
type scriptedSampler struct {
	steps chan step
}

func newScriptedSampler() *scriptedSampler {
	return &scriptedSampler{steps: make(chan step, 16)}
}

func (s *scriptedSampler) ReadSample() (burst.Sample, error) {
	st, ok := <-s.steps
	if !ok {
		return burst.Sample{}, io.EOF
	}
	return st.sample, st.err
}

func counterSample(n float64) burst.Sample {
	return burst.Sample{Fields: []string{"counter"}, Values: []float64{n}}
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	sampler := newScriptedSampler()
	mux := New(sampler)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	sampler.steps <- step{sample: counterSample(42)}

	s1 := <-ch1
	s2 := <-ch2
	assert.Equal(t, 42.0, s1.Values[0])
	assert.Equal(t, 42.0, s2.Values[0])

	close(sampler.steps)
	assert.ErrorIs(t, <-done, io.EOF)
}

func TestCorruptedFramesAreSkipped(t *testing.T) {
	sampler := newScriptedSampler()
	mux := New(sampler)

	_, ch := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	sampler.steps <- step{err: fmt.Errorf("bad envelope: %w", burst.ErrCorruptedFrame)}
	sampler.steps <- step{sample: counterSample(7)}

	s := <-ch
	assert.Equal(t, 7.0, s.Values[0])

	close(sampler.steps)
	assert.ErrorIs(t, <-done, io.EOF)
}

func TestMonitorStopsOnCancel(t *testing.T) {
	sampler := newScriptedSampler()
	defer close(sampler.steps)
	mux := New(sampler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	sampler := newScriptedSampler()
	mux := New(sampler)

	_, slow := mux.Subscribe()
	_, fast := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	// The slow subscriber never drains; its buffer fills after one sample
	// and later samples are dropped for it only.
	sampler.steps <- step{sample: counterSample(1)}
	s := <-fast
	require.Equal(t, 1.0, s.Values[0])

	sampler.steps <- step{sample: counterSample(2)}
	s = <-fast
	require.Equal(t, 2.0, s.Values[0])

	close(sampler.steps)
	require.ErrorIs(t, <-done, io.EOF)

	s = <-slow
	assert.Equal(t, 1.0, s.Values[0])
	assert.Empty(t, slow)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	mux := New(newScriptedSampler())

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)

	// Unknown IDs are ignored.
	mux.Unsubscribe("nope")
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	mux := New(newScriptedSampler())

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	require.NoError(t, mux.Close())

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	// Close is idempotent.
	require.NoError(t, mux.Close())
}

func TestSamplerFailureAfterSamplesIsReported(t *testing.T) {
	portGone := errors.New("read /dev/ttyUSB0: input/output error")

	// The reader parks the error and closes the sample channel in quick
	// succession; iterate so a racy select cannot pass by luck.
	for i := 0; i < 200; i++ {
		sampler := newScriptedSampler()
		mux := New(sampler)
		_, ch := mux.Subscribe()

		done := make(chan error, 1)
		go func() { done <- mux.Monitor(context.Background()) }()

		sampler.steps <- step{sample: counterSample(1)}
		s := <-ch
		require.Equal(t, 1.0, s.Values[0])

		sampler.steps <- step{err: portGone}
		require.ErrorIs(t, <-done, portGone)

		close(sampler.steps)
		require.NoError(t, mux.Close())
	}
}
