package sink

import (
	"context"
	"encoding/json"
	"io"

	"github.com/matzehuels/fractal/pkg/sim"
)

// JSONOption configures a [JSONSink].
type JSONOption func(*JSONSink)

// WithMaxLevel drops batches deeper than level from the output. The deepest
// levels hold most of the nodes, so this keeps the stream readable.
func WithMaxLevel(level int) JSONOption { return func(s *JSONSink) { s.maxLevel = level } }

// WithEvery writes only every n-th tick.
func WithEvery(n uint64) JSONOption { return func(s *JSONSink) { s.every = n } }

// JSONSink writes frames as JSON lines.
type JSONSink struct {
	enc      *json.Encoder
	maxLevel int
	every    uint64
}

// NewJSONSink writes to w. By default every level of every tick is written.
func NewJSONSink(w io.Writer, opts ...JSONOption) *JSONSink {
	s := &JSONSink{enc: json.NewEncoder(w), maxLevel: -1, every: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JSONSink) Draw(_ context.Context, f *sim.Frame) error {
	if s.every > 1 && f.Tick%s.every != 0 {
		return nil
	}
	if s.maxLevel >= 0 && s.maxLevel+1 < len(f.Batches) {
		trimmed := *f
		trimmed.Batches = f.Batches[:s.maxLevel+1]
		f = &trimmed
	}
	return s.enc.Encode(f)
}

var _ sim.Sink = (*JSONSink)(nil)
