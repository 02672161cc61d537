// halfprecision.go - IEEE 754 binary16 Dekodierung
//
// Die Block-Skalen von Q8_0 und Q4_0 liegen little-endian als binary16
// vor. Statt eine eigene Dekodierung zu schreiben, wird
// github.com/x448/float16 verwendet - dieselbe Bibliothek, die ollama
// an anderer Stelle fuer Halbpraezision nutzt.
package quant

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// DecodeScale liest eine little-endian binary16-Skala aus den ersten
// zwei Bytes von b und gibt ihren float32-Wert zurueck. Unterstuetzt
// +-0, +-Inf, NaN und Subnormalen wie von float16.Float32 implementiert.
func DecodeScale(b []byte) float32 {
	bits := binary.LittleEndian.Uint16(b)
	return float16.Frombits(bits).Float32()
}
