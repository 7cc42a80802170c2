package sink

import (
	"context"
	"errors"

	"github.com/matzehuels/fractal/pkg/sim"
)

type multi []sim.Sink

// Multi draws each frame into every sink in order. All sinks see the frame
// even if an earlier one fails; the errors are joined.
func Multi(sinks ...sim.Sink) sim.Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Draw(ctx context.Context, f *sim.Frame) error {
	var errs []error
	for _, s := range m {
		if err := s.Draw(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Draw(context.Context, *sim.Frame) error { return nil }

// Discard drops every frame.
var Discard sim.Sink = discard{}
