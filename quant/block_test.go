// block_test.go - Tabellentests fuer Halbpraezision und Blockformate
package quant

import (
	"encoding/binary"
	"math"
	"testing"
)

// TestDecodeScale prueft, dass jedes 16-Bit-Muster dem binary16-Wert
// aus der IEEE-754-Spezifikation entspricht.
func TestDecodeScale(t *testing.T) {
	tests := []struct {
		name string
		bits uint16
		want float32
		nan  bool
	}{
		{name: "positive zero", bits: 0x0000, want: 0},
		{name: "negative zero", bits: 0x8000, want: 0},
		{name: "positive infinity", bits: 0x7C00, want: float32(math.Inf(1))},
		{name: "negative infinity", bits: 0xFC00, want: float32(math.Inf(-1))},
		{name: "smallest subnormal", bits: 0x0001, want: float32(1) / float32(16777216)},
		{name: "one", bits: 0x3C00, want: 1.0},
		{name: "max normal", bits: 0x7BFF, want: 65504.0},
		{name: "quiet nan", bits: 0x7E00, nan: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], tt.bits)
			got := DecodeScale(buf[:])

			if tt.nan {
				if !math.IsNaN(float64(got)) {
					t.Errorf("DecodeScale(%#04x) = %v, erwartet NaN", tt.bits, got)
				}
				return
			}

			if got != tt.want {
				t.Errorf("DecodeScale(%#04x) = %v, erwartet %v", tt.bits, got, tt.want)
			}
		})
	}
}

func encodeQ8_0Row(t *testing.T, scale float32, codes []int8) []byte {
	t.Helper()
	if len(codes)%BlockSize != 0 {
		t.Fatalf("codes length %d not a multiple of %d", len(codes), BlockSize)
	}

	row := make([]byte, 0, len(codes)/BlockSize*34)
	for b := 0; b < len(codes)/BlockSize; b++ {
		var scaleBuf [2]byte
		binary.LittleEndian.PutUint16(scaleBuf[:], float32ToHalfBits(scale))
		row = append(row, scaleBuf[:]...)
		for i := 0; i < BlockSize; i++ {
			row = append(row, byte(codes[b*BlockSize+i]))
		}
	}
	return row
}

// float32ToHalfBits is a tiny round-trip helper for building test fixtures;
// it only handles the exactly representable scales used below (1.0, 2.0,
// 0.5) and panics on any other value.
func float32ToHalfBits(f float32) uint16 {
	switch f {
	case 1.0:
		return 0x3C00
	case 2.0:
		return 0x4000
	case 0.5:
		return 0x3800
	default:
		panic("unsupported test scale")
	}
}

func TestQ8_0RowDotMatchesNaiveReference(t *testing.T) {
	codes := make([]int8, BlockSize*2)
	for i := range codes {
		codes[i] = int8(i%17 - 8)
	}
	row := encodeQ8_0Row(t, 2.0, codes)

	x := make([]float32, len(codes))
	for i := range x {
		x[i] = float32(i) * 0.1
	}

	var want float32
	for i, c := range codes {
		want += 2.0 * float32(c) * x[i]
	}

	got := Q8_0RowDot(row, x)
	if diff := math.Abs(float64(got - want)); diff > 1e-3 {
		t.Errorf("Q8_0RowDot = %v, erwartet %v (diff %v)", got, want, diff)
	}
}

func TestDequantizeQ8_0RoundTrip(t *testing.T) {
	codes := make([]int8, BlockSize)
	for i := range codes {
		codes[i] = int8(i - 16)
	}
	row := encodeQ8_0Row(t, 0.5, codes)

	got := DequantizeQ8_0Row(row, BlockSize)
	for i, c := range codes {
		want := 0.5 * float32(c)
		if math.Abs(float64(got[i]-want)) > 0.25 { // |s|/2
			t.Errorf("element %d: got %v want %v", i, got[i], want)
		}
	}
}

func TestQ4_0RowDotMatchesNaiveReference(t *testing.T) {
	packed := make([]byte, 16)
	for i := range packed {
		packed[i] = byte((i%16)<<4 | ((i + 3) % 16))
	}

	var scaleBuf [2]byte
	binary.LittleEndian.PutUint16(scaleBuf[:], float32ToHalfBits(1.0))
	row := append(append([]byte{}, scaleBuf[:]...), packed...)

	x := make([]float32, BlockSize)
	for i := range x {
		x[i] = float32(i) * 0.05
	}

	deq := DequantizeQ4_0Row(row, BlockSize)
	var want float32
	for i := range x {
		want += deq[i] * x[i]
	}

	got := Q4_0RowDot(row, x)
	if diff := math.Abs(float64(got - want)); diff > 1e-3 {
		t.Errorf("Q4_0RowDot = %v, erwartet %v (diff %v)", got, want, diff)
	}
}
