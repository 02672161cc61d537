// rope.go - Rotary Position Embedding
//
// Fuer jeden geraden Index i wird das Paar (q[i], q[i+1]) um den Winkel
// theta = pos * freq(d) gedreht, d = i mod headSize. Key wird identisch
// rotiert, aber nur innerhalb von kvDim. Der Referenzpfad darf (cos,
// sin) nach Position und d/2 vorberechnen; RotationTable macht genau
// das - vorkalkulierte Tabellen statt bei jedem Schritt
// trigonometrische Funktionen neu auszuwerten.
package kernel

import "math"

// DefaultRopeBase is the fallback rotary base used when a loaded
// model's Config does not provide its own rope.freq_base. The
// conventional value for most trained LLaMA-family checkpoints is
// 10000; this core defaults to the value its reference fused kernel
// hard-codes (50000) and lets model.Config.RopeFreqBase override it
// per loaded model.
const DefaultRopeBase = 50000

// RotationTable precomputes cos/sin for every (position, d/2) pair up
// to a context length, so the per-step rotation in Apply becomes a
// table lookup instead of re-evaluating cos/sin every call the way
// ApplyRoPE does.
type RotationTable struct {
	headSize int
	cos      [][]float32
	sin      [][]float32
}

// NewRotationTable builds the table for positions [0, contextLength)
// and headSize/2 frequency bins, using base as the rotary base frequency.
func NewRotationTable(contextLength, headSize int, base float32) *RotationTable {
	half := headSize / 2
	t := &RotationTable{
		headSize: headSize,
		cos:      make([][]float32, contextLength),
		sin:      make([][]float32, contextLength),
	}

	for pos := 0; pos < contextLength; pos++ {
		t.cos[pos] = make([]float32, half)
		t.sin[pos] = make([]float32, half)
		for j := 0; j < half; j++ {
			freq := 1.0 / math.Pow(float64(base), float64(2*j)/float64(headSize))
			theta := float64(pos) * freq
			t.cos[pos][j] = float32(math.Cos(theta))
			t.sin[pos][j] = float32(math.Sin(theta))
		}
	}

	return t
}

// Apply rotates q (length dim) and, for indices below kvDim, k (length
// kvDim) in place at position pos.
func (t *RotationTable) Apply(q, k []float32, dim, kvDim, pos int) {
	cos := t.cos[pos]
	sin := t.sin[pos]

	for i := 0; i < dim; i += 2 {
		d := i % t.headSize
		j := d / 2
		c, s := cos[j], sin[j]

		rotatePair(q, i, c, s)
		if i < kvDim {
			rotatePair(k, i, c, s)
		}
	}
}

func rotatePair(v []float32, i int, c, s float32) {
	v0, v1 := v[i], v[i+1]
	v[i] = v0*c - v1*s
	v[i+1] = v0*s + v1*c
}

// ApplyRoPE rotates q and k at position pos without a precomputed
// table, evaluating cos/sin directly from base - the formula
// RotationTable.Apply's lookup is built from, kept for callers (and
// tests) that don't want to allocate a context-length-sized table.
func ApplyRoPE(q, k []float32, dim, kvDim, headSize, pos int, base float32) {
	for i := 0; i < dim; i += 2 {
		d := i % headSize
		freq := 1.0 / math.Pow(float64(base), float64(d)/float64(headSize))
		theta := float64(pos) * freq
		c := float32(math.Cos(theta))
		s := float32(math.Sin(theta))

		rotatePair(q, i, c, s)
		if i < kvDim {
			rotatePair(k, i, c, s)
		}
	}
}
