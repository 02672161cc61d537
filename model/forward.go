// forward.go - Pro-Layer-Treiber und Top-Level-Forward-Pass
//
// Die Reihenfolge rmsnorm -> QKV -> RoPE -> Cache-Schreiben -> Attention
// -> Output-Projektion+Residual -> rmsnorm -> SwiGLU+Residual folgt
// model/models/deepseek2/model.go (dieselbe Blockreihenfolge, dort
// ueber ml.Tensor-Graphen statt direkter []float32-Scratch-Buffer
// ausgedrueckt).
package model

import (
	"fmt"

	"github.com/inferned/llamacore/kernel"
	"github.com/inferned/llamacore/kvstate"
	"github.com/inferned/llamacore/modelerrors"
)

// Forward runs one decode step: token embedding lookup, every transformer
// block, the final norm, and the classifier matmul, writing the result
// into s.Logits and returning it. position must satisfy
// 0 <= position < m.ContextLength; callers advance position by one per
// call.
func (m *Model) Forward(s *kvstate.State, token int32, position int) ([]float32, error) {
	if err := s.CheckPosition(position); err != nil {
		return nil, err
	}
	if int(token) < 0 || int(token) >= m.VocabularySize {
		return nil, fmt.Errorf("%w: token id %d out of vocabulary of size %d",
			modelerrors.ErrConfigurationInvalid, token, m.VocabularySize)
	}

	copy(s.X, m.Weights.TokenEmbedding.F32[int(token)*m.Dim:(int(token)+1)*m.Dim])

	for l, layer := range m.Weights.Layers {
		m.forwardLayer(&layer, s, l, position)
	}

	kernel.RMSNorm(s.Xb, s.X, m.Weights.RMSFinalWeight, m.Dim, m.RMSNormEps)
	kernel.MatMul(s.Logits, m.Weights.WCLS, s.Xb, m.maxWorkers)

	s.LatestToken = token
	return s.Logits, nil
}

// forwardLayer mutates s in place, advancing the residual stream s.X
// through one transformer block.
func (m *Model) forwardLayer(layer *Layer, s *kvstate.State, l, position int) {
	kvDim := m.KVDim()
	kvMul := m.KVMul()

	kernel.RMSNorm(s.Xb, s.X, layer.RMSAttWeight, m.Dim, m.RMSNormEps)

	kernel.MatMul(s.Q, layer.WQ, s.Xb, m.maxWorkers)
	kernel.MatMul(s.K, layer.WK, s.Xb, m.maxWorkers)
	kernel.MatMul(s.V, layer.WV, s.Xb, m.maxWorkers)

	m.ropeTable.Apply(s.Q, s.K, m.Dim, kvDim, position)

	s.WriteCache(l, position)

	if m.FlashAttention {
		kernel.AttentionFlash(s.Xb2, s.Q, s.KeyCache[l], s.ValueCache[l], 0, position,
			m.NumberOfHeads, kvMul, m.HeadSize, kvDim, m.ContextLength, m.maxWorkers, kernel.DefaultFlashTileSize)
	} else {
		kernel.AttentionNaive(s.Xb2, s.Q, s.KeyCache[l], s.ValueCache[l], s.Att, 0, position,
			m.NumberOfHeads, kvMul, m.HeadSize, kvDim, m.ContextLength, m.maxWorkers)
	}

	kernel.MatMulAdd(s.X, layer.WO, s.Xb2, m.maxWorkers)

	kernel.RMSNorm(s.Xb, s.X, layer.RMSFfnWeight, m.Dim, m.RMSNormEps)
	kernel.FusedSwiGLU(s.Hb, layer.W1, layer.W3, s.Xb, m.maxWorkers)
	kernel.MatMulAdd(s.X, layer.W2, s.Hb, m.maxWorkers)
}
