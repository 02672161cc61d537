// config.go - Unveraenderliche Modellkonfiguration
//
// Configuration wird beim Laden erzeugt und lebt fuer die gesamte
// Prozesslaufzeit (bzw. bis zu einem Modellwechsel). Validate prueft
// die Shape-Invarianten; eine Verletzung ist fatal bei der
// Modell-Erzeugung (modelerrors.ErrConfigurationInvalid), analog zu den
// Panics, mit denen kvcache/constructors.go ungueltige
// Cache-Konfigurationen ablehnt - hier als Fehler statt Panic, weil
// ein Ladefehler fuer den Aufrufer recovierbar sein muss.
package model

import (
	"fmt"

	"github.com/inferned/llamacore/kernel"
	"github.com/inferned/llamacore/modelerrors"
)

// Config holds the immutable, model-file-derived configuration needed
// to construct a Model and its session State.
type Config struct {
	Dim                   int
	HiddenDim             int
	NumberOfLayers        int
	NumberOfHeads         int
	NumberOfKeyValueHeads int
	HeadSize              int
	VocabularySize        int
	ContextLength         int
	RMSNormEps            float32

	// RopeFreqBase is the rotary base frequency. A loaded model's own
	// rope.freq_base metadata (typically 10000) takes precedence when
	// known; defaults to kernel.DefaultRopeBase when zero.
	RopeFreqBase float32

	// FlashAttention selects the tiled online-softmax attention kernel
	// over the reference per-head kernel. Both are equivalent up to
	// floating-point error; this only affects memory traffic.
	FlashAttention bool
}

// KVMul is the grouped-query-attention sharing factor: the number of
// query heads that share one key/value head.
func (c Config) KVMul() int {
	return c.NumberOfHeads / c.NumberOfKeyValueHeads
}

// KVDim is headSize * numberOfKeyValueHeads, the width of the projected
// key/value vectors.
func (c Config) KVDim() int {
	return c.HeadSize * c.NumberOfKeyValueHeads
}

// Validate checks the shape invariants a Config must satisfy before it
// can back a Model or State.
func (c Config) Validate() error {
	if c.Dim <= 0 || c.HiddenDim <= 0 || c.NumberOfLayers <= 0 ||
		c.NumberOfHeads <= 0 || c.NumberOfKeyValueHeads <= 0 ||
		c.HeadSize <= 0 || c.VocabularySize <= 0 || c.ContextLength <= 0 {
		return fmt.Errorf("%w: all dimensions must be positive", modelerrors.ErrConfigurationInvalid)
	}

	if c.NumberOfKeyValueHeads > c.NumberOfHeads {
		return fmt.Errorf("%w: numberOfKeyValueHeads (%d) exceeds numberOfHeads (%d)",
			modelerrors.ErrConfigurationInvalid, c.NumberOfKeyValueHeads, c.NumberOfHeads)
	}

	if c.NumberOfHeads%c.NumberOfKeyValueHeads != 0 {
		return fmt.Errorf("%w: numberOfHeads (%d) not a multiple of numberOfKeyValueHeads (%d)",
			modelerrors.ErrConfigurationInvalid, c.NumberOfHeads, c.NumberOfKeyValueHeads)
	}

	if c.Dim != c.NumberOfHeads*c.HeadSize {
		return fmt.Errorf("%w: dim (%d) != numberOfHeads*headSize (%d*%d)",
			modelerrors.ErrConfigurationInvalid, c.Dim, c.NumberOfHeads, c.HeadSize)
	}

	if c.HeadSize%2 != 0 {
		return fmt.Errorf("%w: headSize (%d) must be even for RoPE pairing",
			modelerrors.ErrConfigurationInvalid, c.HeadSize)
	}

	if c.RMSNormEps < 0 {
		return fmt.Errorf("%w: rmsNormEps must be non-negative", modelerrors.ErrConfigurationInvalid)
	}

	return nil
}

// ropeFreqBase returns RopeFreqBase, defaulting to kernel.DefaultRopeBase
// when the loader did not provide one.
func (c Config) ropeFreqBase() float32 {
	if c.RopeFreqBase != 0 {
		return c.RopeFreqBase
	}
	return kernel.DefaultRopeBase
}
