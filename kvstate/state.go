// Package kvstate - Sitzungszustand: Aktivierungs-Scratch und KV-Cache
//
// Pro Sitzung gehalten, vom Forward-Pass mutiert, beim Sitzungsende
// verworfen. Gegenueber kvcache/constructors.go (Mehrfach-Sequenz,
// sliding window, per-Layer ml.Context/Tensor) ist dies die auf eine
// einzelne Sequenz vereinfachte Form: ein contiguous
// []float32 pro Cache-Array statt einer Zellenliste mit
// Sequenz-Zugehoerigkeit, weil Batching mehrerer unabhaengiger
// Sequenzen hier nicht unterstuetzt wird.
package kvstate

import (
	"fmt"

	"github.com/inferned/llamacore/modelerrors"
)

// State holds everything a single inference session needs across calls
// to the forward pass. It is not safe for concurrent forward passes:
// one outstanding call per State.
type State struct {
	Dim           int
	HiddenDim     int
	NumberOfLayers int
	KVDim         int
	ContextLength int

	X   []float32 // residual stream, length Dim
	Xb  []float32 // activation scratch, length Dim
	Xb2 []float32 // activation scratch, length Dim

	Hb  []float32 // FFN scratch, length HiddenDim
	Hb2 []float32 // FFN scratch, length HiddenDim

	Q []float32 // query projection, length Dim
	K []float32 // key projection, length KVDim
	V []float32 // value projection, length KVDim

	Att []float32 // attention scores scratch, length numberOfHeads*contextLength

	Logits []float32 // final output, length vocabularySize

	// KeyCache/ValueCache are [numberOfLayers][contextLength*KVDim],
	// grown write-only up to the current position.
	KeyCache   [][]float32
	ValueCache [][]float32

	// LatestToken is the last token id emitted; seeded with the
	// beginning-of-text id on creation.
	LatestToken int32

	// writtenUpTo[l] records the highest position written to layer l's
	// cache slots, enforcing write-once-before-read defensively.
	writtenUpTo []int32
}

// New allocates all scratch and cache arrays. bosToken seeds
// LatestToken.
func New(dim, hiddenDim, numberOfLayers, numberOfHeads, numberOfKeyValueHeads, headSize, vocabularySize, contextLength int, bosToken int32) *State {
	kvDim := headSize * numberOfKeyValueHeads

	s := &State{
		Dim:            dim,
		HiddenDim:      hiddenDim,
		NumberOfLayers: numberOfLayers,
		KVDim:          kvDim,
		ContextLength:  contextLength,

		X:   make([]float32, dim),
		Xb:  make([]float32, dim),
		Xb2: make([]float32, dim),

		Hb:  make([]float32, hiddenDim),
		Hb2: make([]float32, hiddenDim),

		Q: make([]float32, dim),
		K: make([]float32, kvDim),
		V: make([]float32, kvDim),

		Att: make([]float32, numberOfHeads*contextLength),

		Logits: make([]float32, vocabularySize),

		KeyCache:   make([][]float32, numberOfLayers),
		ValueCache: make([][]float32, numberOfLayers),

		LatestToken: bosToken,
		writtenUpTo: make([]int32, numberOfLayers),
	}

	for l := 0; l < numberOfLayers; l++ {
		s.KeyCache[l] = make([]float32, contextLength*kvDim)
		s.ValueCache[l] = make([]float32, contextLength*kvDim)
		s.writtenUpTo[l] = -1
	}

	return s
}

// CheckPosition reports ErrPositionOutOfRange once position is outside
// [0, contextLength): a session may process at most contextLength
// distinct positions.
func (s *State) CheckPosition(position int) error {
	if position < 0 || position >= s.ContextLength {
		return fmt.Errorf("%w: position %d, contextLength %d",
			modelerrors.ErrPositionOutOfRange, position, s.ContextLength)
	}
	return nil
}

// WriteCache writes this step's key/value projections into layer l's
// cache slot at position, enforcing that each slot is written exactly
// once and with strictly increasing positions, defensively rather than
// silently allowing a re-write that would desynchronize earlier
// attention reads.
func (s *State) WriteCache(l, position int) {
	if int32(position) <= s.writtenUpTo[l] {
		panic(fmt.Sprintf("kvstate: layer %d position %d already written", l, position))
	}

	off := position * s.KVDim
	copy(s.KeyCache[l][off:off+s.KVDim], s.K)
	copy(s.ValueCache[l][off:off+s.KVDim], s.V)
	s.writtenUpTo[l] = int32(position)
}
