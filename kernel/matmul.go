// matmul.go - Matrix-Vektor-Multiplikation (dicht und quantisiert)
//
// Pro Ausgabezeile r wird ein Dot-Produkt gegen den Eingabevektor
// berechnet. Statt einer Typhierarchie ist Matrix eine getaggte
// Variante mit einer kleinen RowDot-Methode; der Aufrufer waehlt die
// Variante einmal beim Laden und haengt sie an die Matrix.
//
// Der dichte F32-Pfad ruft gonum.org/v1/gonum/blas/blas32 als reale
// BLAS-Implementierung auf (die Referenz-Formel bleibt exakt dieselbe -
// Gemv berechnet sie nur schneller als eine Dreifachschleife). Die
// quantisierten Pfade bleiben handgeschrieben: ein BLAS hat keine
// Entsprechung fuer dequantize-and-dot.
package kernel

import (
	"fmt"

	"github.com/inferned/llamacore/quant"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matrix is a tagged weight matrix: either dense F32 data or a
// quantized byte stream, along with the encoding that picks the kernel.
type Matrix struct {
	Rows, Cols int
	Encoding   quant.Encoding

	// F32 holds Rows*Cols row-major elements when Encoding == quant.F32.
	F32 []float32

	// Bytes holds the raw block-quantized row data when Encoding is
	// Q8_0 or Q4_0. Row r starts at byte offset r*rowBytes.
	Bytes []byte

	rowBytes int
}

// NewF32Matrix wraps dense row-major data as a Matrix.
func NewF32Matrix(rows, cols int, data []float32) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Encoding: quant.F32, F32: data}
}

// NewQuantMatrix wraps block-quantized row data as a Matrix. cols must
// be a multiple of quant.BlockSize for encodings Q8_0/Q4_0.
func NewQuantMatrix(rows, cols int, encoding quant.Encoding, data []byte) (*Matrix, error) {
	if cols%quant.BlockSize != 0 {
		return nil, fmt.Errorf("kernel: quantized matrix cols %d not a multiple of block size %d", cols, quant.BlockSize)
	}

	rowBytes := encoding.RowBytes(cols)
	if len(data) != rows*rowBytes {
		return nil, fmt.Errorf("kernel: quantized matrix data length %d, expected %d", len(data), rows*rowBytes)
	}

	return &Matrix{Rows: rows, Cols: cols, Encoding: encoding, Bytes: data, rowBytes: rowBytes}, nil
}

// RowDot computes the dot product of row r against x, dispatching on
// the matrix's tagged encoding.
func (m *Matrix) RowDot(r int, x []float32) float32 {
	switch m.Encoding {
	case quant.F32:
		row := m.F32[r*m.Cols : r*m.Cols+m.Cols]
		var sum float32
		for j, xj := range x {
			sum = FMA(row[j], xj, sum)
		}
		return sum
	case quant.Q8_0:
		row := m.Bytes[r*m.rowBytes : r*m.rowBytes+m.rowBytes]
		return quant.Q8_0RowDot(row, x)
	case quant.Q4_0:
		row := m.Bytes[r*m.rowBytes : r*m.rowBytes+m.rowBytes]
		return quant.Q4_0RowDot(row, x)
	default:
		panic(fmt.Sprintf("kernel: unhandled matrix encoding %v", m.Encoding))
	}
}

// MatMul computes out[r] = dot(m.row(r), x) for every row. maxWorkers
// bounds the CPU fan-out; rows beyond the launched work groups would
// exit cleanly in an accelerator formulation, which here is simply
// rows not being iterated past m.Rows.
func MatMul(out []float32, m *Matrix, x []float32, maxWorkers int) {
	if m.Encoding == quant.F32 {
		matMulF32BLAS(out, m, x)
		return
	}

	ParallelFor(m.Rows, maxWorkers, func(r int) {
		out[r] = m.RowDot(r, x)
	})
}

// MatMulAdd computes out[r] += dot(m.row(r), x), reading the old out[r]
// exactly once. Used for the attention-output and down-projection
// residual adds in the per-layer driver.
func MatMulAdd(out []float32, m *Matrix, x []float32, maxWorkers int) {
	ParallelFor(m.Rows, maxWorkers, func(r int) {
		old := out[r]
		out[r] = old + m.RowDot(r, x)
	})
}

func matMulF32BLAS(out []float32, m *Matrix, x []float32) {
	a := blas32.General{Rows: m.Rows, Cols: m.Cols, Stride: m.Cols, Data: m.F32}
	xv := blas32.Vector{N: m.Cols, Data: x, Inc: 1}
	yv := blas32.Vector{N: m.Rows, Data: out, Inc: 1}
	blas32.Implementation().Sgemv(blas.NoTrans, m.Rows, m.Cols, 1, a.Data, a.Stride, xv.Data, xv.Inc, 0, yv.Data, yv.Inc)
}
