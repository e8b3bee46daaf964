package turbo

import "math/bits"

// Recursive systematic convolutional trellis
//
// Polynomials are read MSB-first: bit K-1 taps the current (feedback
// adjusted) input, bit 0 taps the oldest register cell. With K=3, octal 7
// is 1+D+D² and octal 5 is 1+D².
//
// A state holds the K-1 register cells, most recent cell in the highest bit.

const (
	// MaxConstraintLength bounds the dense transition table at 2^15 states.
	MaxConstraintLength = 16

	DefaultConstraintLength = 3
	DefaultFeedback         = 07
)

// DefaultGenerators is the (7,5) octal generator pair.
var DefaultGenerators = []uint32{07, 05}

// Trellis is the immutable state-transition table of an RSC encoder.
// It is safe for concurrent use.
type Trellis struct {
	k           int
	numStates   int
	generators  []uint32
	feedback    uint32
	parityIndex int

	// indexed by state*2 + input
	next   []int
	output []uint32
}

// NewTrellis builds the full transition table for the given constraint
// length, generator polynomials and feedback polynomial.
func NewTrellis(constraintLength int, generators []uint32, feedback uint32) (*Trellis, error) {
	if constraintLength < 2 {
		return nil, configErrorf("constraint_length", "must be at least 2, got %d", constraintLength)
	}
	if constraintLength > MaxConstraintLength {
		return nil, configErrorf("constraint_length", "must be at most %d, got %d", MaxConstraintLength, constraintLength)
	}
	if len(generators) == 0 {
		return nil, configErrorf("generators", "at least one generator polynomial is required")
	}
	if len(generators) > 32 {
		return nil, configErrorf("generators", "at most 32 generator polynomials supported, got %d", len(generators))
	}

	width := uint(constraintLength)
	limit := uint32(1) << width
	if feedback == 0 || feedback >= limit {
		return nil, configErrorf("feedback", "polynomial %o does not fit a %d-bit register", feedback, constraintLength)
	}
	if feedback&(1<<(width-1)) == 0 {
		return nil, configErrorf("feedback", "polynomial %o must tap the current input", feedback)
	}

	parityIndex := -1
	for i, g := range generators {
		if g == 0 || g >= limit {
			return nil, configErrorf("generators", "polynomial %o does not fit a %d-bit register", g, constraintLength)
		}
		if parityIndex < 0 && g != feedback {
			parityIndex = i
		}
	}
	if parityIndex < 0 {
		return nil, configErrorf("generators", "no generator differs from the feedback polynomial, code has no parity output")
	}

	memory := width - 1
	numStates := 1 << memory
	t := &Trellis{
		k:           constraintLength,
		numStates:   numStates,
		generators:  append([]uint32(nil), generators...),
		feedback:    feedback,
		parityIndex: parityIndex,
		next:        make([]int, numStates*2),
		output:      make([]uint32, numStates*2),
	}

	for state := 0; state < numStates; state++ {
		s := uint32(state)
		for input := uint32(0); input < 2; input++ {
			a := input ^ parity32(feedback&s)
			register := a<<memory | s

			var out uint32
			for r, g := range generators {
				out |= parity32(g&register) << uint(r)
			}

			idx := state*2 + int(input)
			t.next[idx] = int(a<<(memory-1) | s>>1)
			t.output[idx] = out
		}
	}

	return t, nil
}

// DefaultTrellis returns the K=3, (7,5) generator, feedback 7 trellis.
func DefaultTrellis() *Trellis {
	t, err := NewTrellis(DefaultConstraintLength, DefaultGenerators, DefaultFeedback)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Trellis) ConstraintLength() int { return t.k }

func (t *Trellis) NumStates() int { return t.numStates }

func (t *Trellis) NumOutputs() int { return len(t.generators) }

func (t *Trellis) Feedback() uint32 { return t.feedback }

// Generators returns a copy of the generator polynomials.
func (t *Trellis) Generators() []uint32 {
	return append([]uint32(nil), t.generators...)
}

// NextState returns the state reached from state on input bit.
func (t *Trellis) NextState(state int, bit uint8) int {
	return t.next[state*2+int(bit&1)]
}

// Output returns the packed output bits of a transition; bit r is the
// output of generator r.
func (t *Trellis) Output(state int, bit uint8) uint32 {
	return t.output[state*2+int(bit&1)]
}

// Parity returns the coded bit of the parity generator for a transition.
func (t *Trellis) Parity(state int, bit uint8) uint8 {
	return uint8(t.output[state*2+int(bit&1)]>>uint(t.parityIndex)) & 1
}

// Systematic returns the systematic output of a transition. A recursive
// systematic encoder always emits its input bit, whatever the state.
func (t *Trellis) Systematic(state int, bit uint8) uint8 {
	return bit & 1
}

func parity32(x uint32) uint32 {
	return uint32(bits.OnesCount32(x) & 1)
}
