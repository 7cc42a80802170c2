package sink

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/fractal/pkg/sim"
)

// MatrixStride is the encoded size of one packed transform: twelve float32.
const MatrixStride = 12 * 4

var binaryMagic = [4]byte{'F', 'R', 'C', '1'}

// BinarySink writes each frame as
//
//	magic "FRC1" | tick uint64 | levels uint32 | count uint32 × levels |
//	matrices, MatrixStride bytes each, level by level
//
// All values are little-endian. Matrices are column-major: three basis
// columns followed by the translation.
type BinarySink struct {
	w *bufio.Writer
}

// NewBinarySink writes to w, flushing after every frame.
func NewBinarySink(w io.Writer) *BinarySink {
	return &BinarySink{w: bufio.NewWriter(w)}
}

func (s *BinarySink) Draw(_ context.Context, f *sim.Frame) error {
	le := binary.LittleEndian
	if _, err := s.w.Write(binaryMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(s.w, le, f.Tick); err != nil {
		return err
	}
	if err := binary.Write(s.w, le, uint32(len(f.Batches))); err != nil {
		return err
	}
	for _, b := range f.Batches {
		if err := binary.Write(s.w, le, uint32(len(b.Matrices))); err != nil {
			return err
		}
	}
	for _, b := range f.Batches {
		if err := binary.Write(s.w, le, b.Matrices); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

// BinaryFrame is a frame read back by [ReadBinary].
type BinaryFrame struct {
	Tick   uint64
	Levels [][]mgl32.Mat3x4
}

// ReadBinary decodes the next frame written by a [BinarySink]. It returns
// io.EOF when r is exhausted at a frame boundary.
func ReadBinary(r io.Reader) (*BinaryFrame, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("bad frame magic %q", magic[:])
	}

	le := binary.LittleEndian
	var f BinaryFrame
	var levels uint32
	if err := binary.Read(r, le, &f.Tick); err != nil {
		return nil, err
	}
	if err := binary.Read(r, le, &levels); err != nil {
		return nil, err
	}
	counts := make([]uint32, levels)
	if err := binary.Read(r, le, counts); err != nil {
		return nil, err
	}
	f.Levels = make([][]mgl32.Mat3x4, levels)
	for l, n := range counts {
		f.Levels[l] = make([]mgl32.Mat3x4, n)
		if err := binary.Read(r, le, f.Levels[l]); err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
	}
	return &f, nil
}

var _ sim.Sink = (*BinarySink)(nil)
