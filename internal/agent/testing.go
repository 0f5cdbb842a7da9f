package agent

import (
	"context"
	"iter"

	"github.com/easelhq/easel/internal/stream"
)

// ScriptedGraph replays a fixed event sequence. Test use only.
//
// Events are yielded in order; when Err is set it is yielded after the last
// event. Iteration stops early when the consumer's context is cancelled.
type ScriptedGraph struct {
	Events []stream.Event
	Err    error

	// Started is closed when Stream begins yielding, letting tests
	// synchronize cancellation with a run in flight. Optional.
	Started chan struct{}

	// Gate, when non-nil, is received from before each event is yielded so
	// tests can pace the stream. Optional.
	Gate chan struct{}
}

func (s *ScriptedGraph) Stream(ctx context.Context, _ Request) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		if s.Started != nil {
			close(s.Started)
		}
		for _, ev := range s.Events {
			if s.Gate != nil {
				select {
				case <-s.Gate:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if s.Err != nil {
			yield(stream.Event{}, s.Err)
		}
	}
}
