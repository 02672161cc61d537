// attention.go - Skalierte Dot-Produkt-Attention: Referenz und Flash
//
// AttentionNaive ist die direkte pro-Kopf-Formulierung mit
// vollstaendigem Softmax ueber die Historie; AttentionFlash ist die
// gekachelte Variante mit Online-Softmax, die mit beschraenktem
// Shared-Memory auskommt. Beide sind ueber Koepfe hinweg verlegenheits-
// frei parallel (disjunkte xb-Bereiche je Kopf); innerhalb eines Kopfes
// ist die Flash-Variante eine sequentielle Uebersetzung der
// akzeleratorfoermigen Kachelschleife - die Kommentare markieren, wo in
// einem Work-Group-Modell ein Barrier stehen wuerde (B1-B5), auch wenn
// eine reine CPU-Uebersetzung keinen echten Barrier braucht.
package kernel

import "math"

// AttentionNaive computes reference scaled-dot-product attention for
// every head of one layer at position pos, writing into xb (length
// numHeads*headSize). att is scratch of length
// numHeads*contextLength (only [0, pos] of each head's slice is used).
func AttentionNaive(xb, q, keyCache, valueCache, att []float32, layerBase, pos, numHeads, kvMul, headSize, kvDim, contextLength, maxWorkers int) {
	invSqrtHeadSize := float32(1.0 / math.Sqrt(float64(headSize)))

	ParallelFor(numHeads, maxWorkers, func(h int) {
		kvHead := h / kvMul
		qh := q[h*headSize : h*headSize+headSize]
		scores := att[h*contextLength : h*contextLength+contextLength]

		var maxScore float32 = float32(math.Inf(-1))
		for t := 0; t <= pos; t++ {
			kOff := layerBase + t*kvDim + kvHead*headSize
			kt := keyCache[kOff : kOff+headSize]

			var dot float32
			for d := 0; d < headSize; d++ {
				dot = FMA(qh[d], kt[d], dot)
			}
			score := dot * invSqrtHeadSize
			scores[t] = score
			if score > maxScore {
				maxScore = score
			}
		}

		var sumExp float32
		for t := 0; t <= pos; t++ {
			e := float32(math.Exp(float64(scores[t] - maxScore)))
			scores[t] = e
			sumExp += e
		}

		out := xb[h*headSize : h*headSize+headSize]
		for d := range out {
			out[d] = 0
		}

		if sumExp == 0 {
			// Softmax denominator underflowed to zero after max-subtraction.
			// Recovered locally with a uniform fallback; never surfaced as
			// an error.
			uniform := float32(1.0 / float32(pos+1))
			for t := 0; t <= pos; t++ {
				vOff := layerBase + t*kvDim + kvHead*headSize
				vt := valueCache[vOff : vOff+headSize]
				for d := 0; d < headSize; d++ {
					out[d] = FMA(uniform, vt[d], out[d])
				}
			}
			return
		}

		invSum := 1 / sumExp
		for t := 0; t <= pos; t++ {
			weight := scores[t] * invSum
			vOff := layerBase + t*kvDim + kvHead*headSize
			vt := valueCache[vOff : vOff+headSize]
			for d := 0; d < headSize; d++ {
				out[d] = FMA(weight, vt[d], out[d])
			}
		}
	})
}

// DefaultFlashTileSize is the tile width C used when tileSize <= 0.
const DefaultFlashTileSize = 4

// AttentionFlash implements a tiled online-softmax variant of
// AttentionNaive with the same inputs/outputs; tileSize is the number
// of positions processed per tile.
func AttentionFlash(xb, q, keyCache, valueCache []float32, layerBase, pos, numHeads, kvMul, headSize, kvDim, contextLength, maxWorkers, tileSize int) {
	if tileSize <= 0 {
		tileSize = DefaultFlashTileSize
	}
	invSqrtHeadSize := float32(1.0 / math.Sqrt(float64(headSize)))

	ParallelFor(numHeads, maxWorkers, func(h int) {
		kvHead := h / kvMul
		// B1: every thread in the work group would load qh into shared
		// memory here; in this sequential translation it is simply read.
		qh := q[h*headSize : h*headSize+headSize]

		runningMax := float32(math.Inf(-1))
		runningSum := float32(0)
		out := make([]float32, headSize)

		sTile := make([]float32, tileSize)

		for tileStart := 0; tileStart <= pos; tileStart += tileSize {
			tileEnd := tileStart + tileSize - 1
			if tileEnd > pos {
				tileEnd = pos
			}
			validCount := tileEnd - tileStart + 1

			// B2: cooperative load of K/V rows for this tile.
			for i := 0; i < validCount; i++ {
				t := tileStart + i
				kOff := layerBase + t*kvDim + kvHead*headSize
				kt := keyCache[kOff : kOff+headSize]

				var dot float32
				for d := 0; d < headSize; d++ {
					dot = FMA(qh[d], kt[d], dot)
				}
				// B3: each thread writes its own score slot.
				sTile[i] = dot * invSqrtHeadSize
			}

			tileMax := sTile[0]
			for i := 1; i < validCount; i++ {
				if sTile[i] > tileMax {
					tileMax = sTile[i]
				}
			}
			// B4: one thread publishes tileMax through a broadcast cell
			// distinct from sTile, so no thread overwrites an unread score.
			broadcastTileMax := tileMax

			newMax := runningMax
			if broadcastTileMax > newMax {
				newMax = broadcastTileMax
			}
			if newMax > runningMax && !math.IsInf(float64(runningMax), -1) {
				correction := float32(math.Exp(float64(runningMax - newMax)))
				runningSum *= correction
				for d := range out {
					out[d] *= correction
				}
			}
			runningMax = newMax

			for i := 0; i < validCount; i++ {
				t := tileStart + i
				p := float32(math.Exp(float64(sTile[i] - runningMax)))
				runningSum += p

				vOff := layerBase + t*kvDim + kvHead*headSize
				vt := valueCache[vOff : vOff+headSize]
				for d := 0; d < headSize; d++ {
					out[d] = FMA(p, vt[d], out[d])
				}
			}
			// B5: barrier before the next tile iteration reuses sTile.
		}

		dst := xb[h*headSize : h*headSize+headSize]
		if runningSum == 0 {
			for d := range dst {
				dst[d] = 0
			}
			return
		}

		invSum := 1 / runningSum
		for d := range dst {
			dst[d] = out[d] * invSum
		}
	})
}
