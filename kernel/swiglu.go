// swiglu.go - Fusionierter SwiGLU-Feedforward-Pfad
//
// g = w1*x, u = w3*x, hb[i] = silu(g[i])*u[i]. Die fusionierte Form
// berechnet beide Matmuls pro Zeile in einem Durchlauf und schreibt
// hb[i] direkt, ohne g und u als eigene Zwischenpuffer zu
// materialisieren.
package kernel

// FusedSwiGLU computes hb[i] = silu(w1.row(i)·x) * (w3.row(i)·x) for
// every row i of the hiddenDim-sized gate/up projections, without
// materializing the intermediate g/u vectors.
func FusedSwiGLU(hb []float32, w1, w3 *Matrix, x []float32, maxWorkers int) {
	ParallelFor(w1.Rows, maxWorkers, func(i int) {
		g := w1.RowDot(i, x)
		u := w3.RowDot(i, x)
		hb[i] = SiLU(g) * u
	})
}
