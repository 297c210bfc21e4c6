// Package samplemux fans out decoded sensor samples from a single polling
// loop to multiple subscribers. The device link is strictly serial, so one
// goroutine owns the sampler and everyone else consumes channels.
package samplemux

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/epson-sensing/esensor/internal/burst"
)

// Sampler produces decoded samples. *session.Session implements it.
type Sampler interface {
	ReadSample() (burst.Sample, error)
}

// SampleMux distributes samples from one Sampler to any number of
// subscribers. Slow subscribers miss samples rather than stalling the read
// loop.
type SampleMux struct {
	sampler Sampler

	subscribers  map[string]chan burst.Sample
	subscriberMu sync.Mutex

	closing   bool
	closingMu sync.Mutex
}

// New creates a SampleMux over the given sampler.
func New(sampler Sampler) *SampleMux {
	return &SampleMux{
		sampler:     sampler,
		subscribers: make(map[string]chan burst.Sample),
	}
}

// Subscribe registers a new sample channel and returns its ID for
// unsubscribing.
func (m *SampleMux) Subscribe() (string, chan burst.Sample) {
	id := uuid.NewString()
	ch := make(chan burst.Sample, 1)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *SampleMux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Monitor reads samples until the context is cancelled or the sampler fails.
// Corrupted frames are skipped: the session has already re-aligned the
// stream, and the next read returns a clean sample.
func (m *SampleMux) Monitor(ctx context.Context) error {
	sampleChan := make(chan burst.Sample)
	readErrChan := make(chan error, 1)

	// The blocking ReadSample runs in its own goroutine so the outer loop
	// stays responsive to cancellation.
	go func() {
		defer close(sampleChan)
		for {
			sample, err := m.sampler.ReadSample()
			if err != nil {
				if errors.Is(err, burst.ErrCorruptedFrame) {
					continue
				}
				select {
				case readErrChan <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case sampleChan <- sample:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case sample, ok := <-sampleChan:
			if !ok {
				// The reader parks its error before closing the sample
				// channel; both cases can be ready at once and select picks
				// arbitrarily, so check again before reporting a clean end.
				select {
				case err := <-readErrChan:
					return err
				default:
				}
				return nil
			}

			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- sample:
				default:
					// Skip rather than block the read loop.
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Close shuts down the mux and closes every subscriber channel. The sampler
// and its port belong to the caller.
func (m *SampleMux) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return nil
}
