package turbo

import (
	"fmt"
	"math"
)

// Log-MAP (BCJR) soft-in/soft-out decoder for one RSC component.
//
// LLR convention throughout the package: L = ln(P(b=0)/P(b=1)), so a
// positive value favours 0. The branch metric of a transition with input u
// and parity p is
//
//	γ = ½[(1-2u)(Ls+La) + (1-2p)Lp]
//
// and every probability sum is carried out with LogSumExp.

var negInf = math.Inf(-1)

// LogSumExp returns log(exp(a)+exp(b)) without leaving the log domain.
func LogSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a >= b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

// ComponentDecoder runs the forward-backward recursion over a trellis. It
// holds no per-call state and may be shared between goroutines.
type ComponentDecoder struct {
	trellis *Trellis
	next    []int
	parity  []uint8
}

// NewComponentDecoder prepares a decoder for t.
func NewComponentDecoder(t *Trellis) *ComponentDecoder {
	n := t.NumStates() * 2
	d := &ComponentDecoder{
		trellis: t,
		next:    make([]int, n),
		parity:  make([]uint8, n),
	}
	for s := 0; s < t.NumStates(); s++ {
		for u := uint8(0); u < 2; u++ {
			d.next[s*2+int(u)] = t.NextState(s, u)
			d.parity[s*2+int(u)] = t.Parity(s, u)
		}
	}
	return d
}

// Decode returns the extrinsic LLRs for the component: the a-posteriori
// LLR minus the a-priori input and the systematic channel value.
func (d *ComponentDecoder) Decode(sys, par, apriori []float64) ([]float64, error) {
	n := len(sys)
	if len(par) != n || len(apriori) != n {
		return nil, fmt.Errorf("bcjr: length mismatch (systematic %d, parity %d, a-priori %d)",
			n, len(par), len(apriori))
	}
	extrinsic := make([]float64, n)
	if n == 0 {
		return extrinsic, nil
	}

	numStates := d.trellis.NumStates()

	// branch[k*4 + u*2 + p]
	branch := make([]float64, n*4)
	for k := 0; k < n; k++ {
		x := 0.5 * (sys[k] + apriori[k])
		y := 0.5 * par[k]
		b := branch[k*4 : k*4+4]
		b[0] = x + y  // u=0 p=0
		b[1] = x - y  // u=0 p=1
		b[2] = -x + y // u=1 p=0
		b[3] = -x - y // u=1 p=1
	}

	alpha := make([]float64, (n+1)*numStates)
	beta := make([]float64, (n+1)*numStates)

	// Forward: the encoder always starts in state 0.
	for s := range alpha[:numStates] {
		alpha[s] = negInf
	}
	alpha[0] = 0
	for k := 0; k < n; k++ {
		cur := alpha[k*numStates : (k+1)*numStates]
		nxt := alpha[(k+1)*numStates : (k+2)*numStates]
		for s := range nxt {
			nxt[s] = negInf
		}
		b := branch[k*4 : k*4+4]
		for s := 0; s < numStates; s++ {
			if math.IsInf(cur[s], -1) {
				continue
			}
			for u := 0; u < 2; u++ {
				idx := s*2 + u
				ns := d.next[idx]
				nxt[ns] = LogSumExp(nxt[ns], cur[s]+b[u*2+int(d.parity[idx])])
			}
		}
		normalize(nxt)
	}

	// Backward: no termination, so every end state is equally likely.
	last := beta[n*numStates : (n+1)*numStates]
	for s := range last {
		last[s] = 0
	}
	for k := n - 1; k >= 0; k-- {
		cur := beta[k*numStates : (k+1)*numStates]
		nxt := beta[(k+1)*numStates : (k+2)*numStates]
		b := branch[k*4 : k*4+4]
		for s := 0; s < numStates; s++ {
			acc := negInf
			for u := 0; u < 2; u++ {
				idx := s*2 + u
				acc = LogSumExp(acc, nxt[d.next[idx]]+b[u*2+int(d.parity[idx])])
			}
			cur[s] = acc
		}
		normalize(cur)
	}

	for k := 0; k < n; k++ {
		a := alpha[k*numStates : (k+1)*numStates]
		bn := beta[(k+1)*numStates : (k+2)*numStates]
		b := branch[k*4 : k*4+4]
		l0, l1 := negInf, negInf
		for s := 0; s < numStates; s++ {
			if math.IsInf(a[s], -1) {
				continue
			}
			for u := 0; u < 2; u++ {
				idx := s*2 + u
				m := a[s] + b[u*2+int(d.parity[idx])] + bn[d.next[idx]]
				if u == 0 {
					l0 = LogSumExp(l0, m)
				} else {
					l1 = LogSumExp(l1, m)
				}
			}
		}
		extrinsic[k] = (l0 - l1) - apriori[k] - sys[k]
	}

	return extrinsic, nil
}

// normalize shifts a metric row so its maximum is zero.
func normalize(row []float64) {
	peak := negInf
	for _, v := range row {
		if v > peak {
			peak = v
		}
	}
	if math.IsInf(peak, -1) {
		return
	}
	for i := range row {
		row[i] -= peak
	}
}
