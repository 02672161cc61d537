// primitives.go - Numerische Grundbausteine
//
// RMS-Normalisierung in einer direkten und einer zweiphasigen Form
// (Reduktion + elementweise Skalierung), sowie die Aktivierungen SiLU
// und GELU und ein FMA-Helfer. Gegenueber tensor_ops.go (dort
// CGo-Aufrufe in die ggml-Bibliothek) ist dies die reine
// Go-Implementierung, die diese Kerne direkt ausfuehrt statt an eine
// C-Bibliothek zu delegieren.
package kernel

import "math"

// FMA computes a*b+c. On platforms with a hardware fused multiply-add,
// math.FMA avoids the intermediate rounding step; kept as a named helper
// so the matmul and attention kernels share one rounding behavior.
func FMA(a, b, c float32) float32 {
	return float32(math.FMA(float64(a), float64(b), float64(c)))
}

// SiLU computes silu(z) = z / (1 + e^-z), the activation that gates the
// SwiGLU feed-forward.
func SiLU(z float32) float32 {
	return z / (1 + float32(math.Exp(float64(-z))))
}

// GELU computes the tanh approximation of GELU. It is provided as an
// alternative activation but not used by the default SwiGLU path.
func GELU(z float32) float32 {
	const sqrt2OverPi = 0.7978845608028654
	inner := sqrt2OverPi * (float64(z) + 0.044715*float64(z)*float64(z)*float64(z))
	return float32(0.5 * float64(z) * (1 + math.Tanh(inner)))
}

// RMSNorm computes out[i] = weight[i] * x[i] / sqrt(mean(x^2) + eps),
// tolerating out and x being the same slice. size may be smaller than
// len(x)/len(out) when called on a sub-slice view.
func RMSNorm(out, x, weight []float32, size int, eps float32) {
	var sumSquares float32
	for i := 0; i < size; i++ {
		sumSquares += x[i] * x[i]
	}

	ss := sumSquares/float32(size) + eps
	scale := float32(1.0 / math.Sqrt(float64(ss)))

	for i := 0; i < size; i++ {
		out[i] = weight[i] * x[i] * scale
	}
}

// RMSNormReduce is phase P1 of an accelerator-shaped split of RMSNorm
// into a reduction and an apply phase: it writes numBlocks partial
// block-sums into scratch[1:numBlocks+1] and the final scalar
// 1/sqrt(ss) into scratch[0]. localMemSize is the number of elements
// reduced per block; numBlocks = ceil(size/localMemSize). scratch must
// have at least numBlocks+1 entries.
//
// The final combine sums exactly numBlocks partial sums and divides by
// the true size rather than assuming size is a multiple of
// localMemSize, so an uneven last block still yields the exact mean.
func RMSNormReduce(scratch, x []float32, size, localMemSize int, eps float32) int {
	numBlocks := (size + localMemSize - 1) / localMemSize

	var total float32
	for b := 0; b < numBlocks; b++ {
		start := b * localMemSize
		end := start + localMemSize
		if end > size {
			end = size
		}

		var blockSum float32
		for i := start; i < end; i++ {
			blockSum += x[i] * x[i]
		}

		scratch[1+b] = blockSum
		total += blockSum
	}

	ss := total/float32(size) + eps
	scratch[0] = float32(1.0 / math.Sqrt(float64(ss)))

	return numBlocks
}

// RMSNormApply is phase P2: it reads the scale published at scratch[0] by
// RMSNormReduce and writes out[i] = weight[i] * x[i] * scale.
func RMSNormApply(out, x, weight, scratch []float32, size int) {
	scale := scratch[0]
	for i := 0; i < size; i++ {
		out[i] = weight[i] * x[i] * scale
	}
}
