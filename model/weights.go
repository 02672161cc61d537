// weights.go - Unveraenderliche Gewichte
//
// Struct-of-slices ueber Layer statt einer Kollektion paralleler
// Caches: ein Layer besitzt seine eigenen Tensoren vollstaendig, keine
// geteilte Mutable-Referenz ist noetig, weil Layer streng sequentiell
// ausgefuehrt werden. Gegenueber model/models/deepseek2/{model,attention}.go
// (gguf-taggte Structs, vom Reflection-Loader befuellt) ist dies
// dieselbe Form ohne die CGo/ggml-Tensor-Indirektion: jede Matrix ist
// ein kernel.Matrix.
package model

import (
	"fmt"

	"github.com/inferned/llamacore/kernel"
	"github.com/inferned/llamacore/modelerrors"
)

// Layer holds one transformer block's weights.
type Layer struct {
	RMSAttWeight []float32
	WQ           *kernel.Matrix
	WK           *kernel.Matrix
	WV           *kernel.Matrix
	WO           *kernel.Matrix

	RMSFfnWeight []float32
	W1           *kernel.Matrix
	W3           *kernel.Matrix
	W2           *kernel.Matrix
}

// Weights holds every tensor needed for a forward pass.
type Weights struct {
	TokenEmbedding *kernel.Matrix
	Layers         []Layer
	RMSFinalWeight []float32

	// WCLS is the classifier matrix; it may alias TokenEmbedding when
	// the model ties input/output embeddings.
	WCLS *kernel.Matrix
}

// Validate checks every matrix's shape against cfg, returning
// modelerrors.ErrWeightShapeMismatch on the first disagreement.
func (w *Weights) Validate(cfg Config) error {
	if err := checkShape("tokenEmbedding", w.TokenEmbedding, cfg.VocabularySize, cfg.Dim); err != nil {
		return err
	}
	if err := checkShape("wcls", w.WCLS, cfg.VocabularySize, cfg.Dim); err != nil {
		return err
	}
	if len(w.RMSFinalWeight) != cfg.Dim {
		return fmt.Errorf("%w: rmsFinalWeight length %d, expected %d",
			modelerrors.ErrWeightShapeMismatch, len(w.RMSFinalWeight), cfg.Dim)
	}

	if len(w.Layers) != cfg.NumberOfLayers {
		return fmt.Errorf("%w: %d layers, expected %d",
			modelerrors.ErrWeightShapeMismatch, len(w.Layers), cfg.NumberOfLayers)
	}

	kvDim := cfg.KVDim()
	for i, l := range w.Layers {
		if len(l.RMSAttWeight) != cfg.Dim {
			return fmt.Errorf("%w: layer %d rmsAttWeight length %d, expected %d",
				modelerrors.ErrWeightShapeMismatch, i, len(l.RMSAttWeight), cfg.Dim)
		}
		if len(l.RMSFfnWeight) != cfg.Dim {
			return fmt.Errorf("%w: layer %d rmsFfnWeight length %d, expected %d",
				modelerrors.ErrWeightShapeMismatch, i, len(l.RMSFfnWeight), cfg.Dim)
		}
		if err := checkShape(fmt.Sprintf("layer %d wq", i), l.WQ, cfg.Dim, cfg.Dim); err != nil {
			return err
		}
		if err := checkShape(fmt.Sprintf("layer %d wk", i), l.WK, kvDim, cfg.Dim); err != nil {
			return err
		}
		if err := checkShape(fmt.Sprintf("layer %d wv", i), l.WV, kvDim, cfg.Dim); err != nil {
			return err
		}
		if err := checkShape(fmt.Sprintf("layer %d wo", i), l.WO, cfg.Dim, cfg.Dim); err != nil {
			return err
		}
		if err := checkShape(fmt.Sprintf("layer %d w1", i), l.W1, cfg.HiddenDim, cfg.Dim); err != nil {
			return err
		}
		if err := checkShape(fmt.Sprintf("layer %d w3", i), l.W3, cfg.HiddenDim, cfg.Dim); err != nil {
			return err
		}
		if err := checkShape(fmt.Sprintf("layer %d w2", i), l.W2, cfg.Dim, cfg.HiddenDim); err != nil {
			return err
		}
	}

	return nil
}

func checkShape(name string, m *kernel.Matrix, rows, cols int) error {
	if m == nil {
		return fmt.Errorf("%w: %s is nil", modelerrors.ErrWeightShapeMismatch, name)
	}
	if m.Rows != rows || m.Cols != cols {
		return fmt.Errorf("%w: %s is [%d,%d], expected [%d,%d]",
			modelerrors.ErrWeightShapeMismatch, name, m.Rows, m.Cols, rows, cols)
	}
	return nil
}
