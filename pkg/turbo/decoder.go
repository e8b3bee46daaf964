package turbo

import "fmt"

// DefaultIterations is the number of turbo rounds run per decode.
const DefaultIterations = 8

// Decoder alternates two log-MAP component decoders across the
// interleaver for a fixed number of rounds. There is no early stop: every
// call runs all rounds.
type Decoder struct {
	component  *ComponentDecoder
	iterations int
}

// NewDecoder builds a decoder for t running the given number of rounds.
func NewDecoder(t *Trellis, iterations int) (*Decoder, error) {
	if t == nil {
		return nil, configErrorf("trellis", "must not be nil")
	}
	if iterations < 1 {
		return nil, configErrorf("iterations", "must be at least 1, got %d", iterations)
	}
	return &Decoder{
		component:  NewComponentDecoder(t),
		iterations: iterations,
	}, nil
}

func (d *Decoder) Iterations() int { return d.iterations }

// Decode returns hard decisions for the message bits.
func (d *Decoder) Decode(sys, parity1, parity2 []float64, il *Interleaver) ([]uint8, error) {
	app, err := d.DecodeLLR(sys, parity1, parity2, il)
	if err != nil {
		return nil, err
	}
	return HardDecision(app), nil
}

// DecodeLLR returns the final a-posteriori LLRs
// Ls + extrinsic₁ + π⁻¹(extrinsic₂) of the last round.
func (d *Decoder) DecodeLLR(sys, parity1, parity2 []float64, il *Interleaver) ([]float64, error) {
	n := len(sys)
	if len(parity1) != n || len(parity2) != n {
		return nil, fmt.Errorf("turbo decode: stream lengths differ (systematic %d, parity1 %d, parity2 %d)",
			n, len(parity1), len(parity2))
	}
	if n == 0 {
		return []float64{}, nil
	}
	if il == nil || il.Len() != n {
		return nil, fmt.Errorf("turbo decode: interleaver does not cover %d bits", n)
	}

	sysInterleaved := make([]float64, n)
	interleaveInto(il, sysInterleaved, sys)

	apriori := make([]float64, n)
	aprioriInterleaved := make([]float64, n)
	var extrinsic1 []float64

	for iter := 0; iter < d.iterations; iter++ {
		var err error
		extrinsic1, err = d.component.Decode(sys, parity1, apriori)
		if err != nil {
			return nil, fmt.Errorf("iteration %d decoder 1: %w", iter+1, err)
		}

		interleaveInto(il, aprioriInterleaved, extrinsic1)
		extrinsic2, err := d.component.Decode(sysInterleaved, parity2, aprioriInterleaved)
		if err != nil {
			return nil, fmt.Errorf("iteration %d decoder 2: %w", iter+1, err)
		}

		deinterleaveInto(il, apriori, extrinsic2)
	}

	app := make([]float64, n)
	for i := range app {
		app[i] = sys[i] + extrinsic1[i] + apriori[i]
	}
	return app, nil
}

// HardDecision maps LLRs to bits: non-negative ⇒ 0, negative ⇒ 1.
func HardDecision(llr []float64) []uint8 {
	bits := make([]uint8, len(llr))
	for i, l := range llr {
		if l < 0 {
			bits[i] = 1
		}
	}
	return bits
}
