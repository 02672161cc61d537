// Package loader - GGUF-Datei zu Config/Weights
//
// gguf_parser.ParseGGUFFile liest Header und Tensor-Metadaten (Namen,
// Shapes, Typen, Offsets) eines GGUF-Files und schaetzt daraus die
// Architektur-Metadaten (Architecture()); Rohbytes der Tensoren liest
// dieses Paket nicht - dafuer fehlt dort eine API. Dieses Modul haengt
// also einen eigenen Tensor-Byte-Reader an, modelliert nach
// fs/ggml/ggml_tensor.go (Tensor/Tensors/Layer/GroupLayers), aber mit
// os.File-Reads statt der CGo-Tensor-Indirektion: jeder Tensor landet
// direkt als kernel.Matrix im passenden model.Layer-Feld.
package loader

import (
	"fmt"
	"math"
	"os"

	gguf_parser "github.com/gpustack/gguf-parser-go"

	"github.com/inferned/llamacore/kernel"
	"github.com/inferned/llamacore/model"
	"github.com/inferned/llamacore/modelerrors"
	"github.com/inferned/llamacore/quant"
)

// Load reads a GGUF file at path, validates its architecture metadata
// against this core's supported shapes, and returns a ready-to-use
// Config and Weights pair.
func Load(path string) (model.Config, *model.Weights, error) {
	gf, err := gguf_parser.ParseGGUFFile(path)
	if err != nil {
		return model.Config{}, nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}

	cfg, err := configFromArchitecture(gf.Architecture())
	if err != nil {
		return model.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return model.Config{}, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()

	r := &tensorReader{file: f, dataStart: gf.TensorDataStartOffset}

	byName := make(map[string]gguf_parser.GGUFTensorInfo, len(gf.TensorInfos))
	for _, t := range gf.TensorInfos {
		byName[t.Name] = t
	}

	w, err := buildWeights(r, byName, cfg)
	if err != nil {
		return model.Config{}, nil, err
	}
	if err := w.Validate(cfg); err != nil {
		return model.Config{}, nil, err
	}

	return cfg, w, nil
}

func configFromArchitecture(ga gguf_parser.GGUFArchitectureMetadata) (model.Config, error) {
	headSize := int(ga.AttentionKeyLength)
	if headSize == 0 && ga.AttentionHeadCount > 0 {
		headSize = int(ga.EmbeddingLength / ga.AttentionHeadCount)
	}

	cfg := model.Config{
		Dim:                   int(ga.EmbeddingLength),
		HiddenDim:             int(ga.FeedForwardLength),
		NumberOfLayers:        int(ga.BlockCount),
		NumberOfHeads:         int(ga.AttentionHeadCount),
		NumberOfKeyValueHeads: int(ga.AttentionHeadCountKV),
		HeadSize:              headSize,
		VocabularySize:        int(ga.VocabularyLength),
		ContextLength:         int(ga.MaximumContextLength),
		RMSNormEps:            ga.AttentionLayerNormRMSEpsilon,
		RopeFreqBase:          ga.RoPEFrequencyBase,
	}

	if cfg.RMSNormEps == 0 {
		cfg.RMSNormEps = 1e-5
	}

	if ga.Architecture != "" && ga.Architecture != "llama" {
		return model.Config{}, fmt.Errorf("%w: architecture %q is not a llama-family decoder this core supports",
			modelerrors.ErrConfigurationInvalid, ga.Architecture)
	}

	return cfg, nil
}

func buildWeights(r *tensorReader, byName map[string]gguf_parser.GGUFTensorInfo, cfg model.Config) (*model.Weights, error) {
	tokenEmbedding, err := r.matrix(byName, "token_embd.weight", cfg.VocabularySize, cfg.Dim)
	if err != nil {
		return nil, err
	}

	rmsFinalWeight, err := r.vector(byName, "output_norm.weight", cfg.Dim)
	if err != nil {
		return nil, err
	}

	wcls := tokenEmbedding
	if _, ok := byName["output.weight"]; ok {
		wcls, err = r.matrix(byName, "output.weight", cfg.VocabularySize, cfg.Dim)
		if err != nil {
			return nil, err
		}
	}

	kvDim := cfg.KVDim()
	layers := make([]model.Layer, cfg.NumberOfLayers)
	for i := range layers {
		prefix := fmt.Sprintf("blk.%d.", i)

		var l model.Layer
		var err error
		if l.RMSAttWeight, err = r.vector(byName, prefix+"attn_norm.weight", cfg.Dim); err != nil {
			return nil, err
		}
		if l.WQ, err = r.matrix(byName, prefix+"attn_q.weight", cfg.Dim, cfg.Dim); err != nil {
			return nil, err
		}
		if l.WK, err = r.matrix(byName, prefix+"attn_k.weight", kvDim, cfg.Dim); err != nil {
			return nil, err
		}
		if l.WV, err = r.matrix(byName, prefix+"attn_v.weight", kvDim, cfg.Dim); err != nil {
			return nil, err
		}
		if l.WO, err = r.matrix(byName, prefix+"attn_output.weight", cfg.Dim, cfg.Dim); err != nil {
			return nil, err
		}
		if l.RMSFfnWeight, err = r.vector(byName, prefix+"ffn_norm.weight", cfg.Dim); err != nil {
			return nil, err
		}
		if l.W1, err = r.matrix(byName, prefix+"ffn_gate.weight", cfg.HiddenDim, cfg.Dim); err != nil {
			return nil, err
		}
		if l.W3, err = r.matrix(byName, prefix+"ffn_up.weight", cfg.HiddenDim, cfg.Dim); err != nil {
			return nil, err
		}
		if l.W2, err = r.matrix(byName, prefix+"ffn_down.weight", cfg.Dim, cfg.HiddenDim); err != nil {
			return nil, err
		}
		layers[i] = l
	}

	return &model.Weights{
		TokenEmbedding: tokenEmbedding,
		Layers:         layers,
		RMSFinalWeight: rmsFinalWeight,
		WCLS:           wcls,
	}, nil
}

// tensorReader reads raw tensor bytes directly from the GGUF file,
// since gguf_parser.GGUFFile only exposes tensor metadata.
type tensorReader struct {
	file      *os.File
	dataStart int64
}

func (r *tensorReader) bytes(t gguf_parser.GGUFTensorInfo) ([]byte, error) {
	n, err := rowSizeBytes(t)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := r.file.ReadAt(buf, r.dataStart+int64(t.Offset)); err != nil {
		return nil, fmt.Errorf("loader: read tensor %q: %w", t.Name, err)
	}
	return buf, nil
}

func (r *tensorReader) matrix(byName map[string]gguf_parser.GGUFTensorInfo, name string, rows, cols int) (*kernel.Matrix, error) {
	t, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing tensor %q", modelerrors.ErrWeightShapeMismatch, name)
	}

	encoding, err := encodingOf(t.Type)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	data, err := r.bytes(t)
	if err != nil {
		return nil, err
	}

	if encoding == quant.F32 {
		return kernel.NewF32Matrix(rows, cols, bytesToFloat32(data)), nil
	}
	m, err := kernel.NewQuantMatrix(rows, cols, encoding, data)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return m, nil
}

func (r *tensorReader) vector(byName map[string]gguf_parser.GGUFTensorInfo, name string, length int) ([]float32, error) {
	t, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing tensor %q", modelerrors.ErrWeightShapeMismatch, name)
	}
	if t.Type != gguf_parser.GGMLTypeF32 {
		return nil, fmt.Errorf("%w: tensor %q must be F32, got type %d",
			modelerrors.ErrUnsupportedQuantization, name, t.Type)
	}
	data, err := r.bytes(t)
	if err != nil {
		return nil, err
	}
	v := bytesToFloat32(data)
	if len(v) != length {
		return nil, fmt.Errorf("%w: tensor %q length %d, expected %d",
			modelerrors.ErrWeightShapeMismatch, name, len(v), length)
	}
	return v, nil
}

func encodingOf(t gguf_parser.GGMLType) (quant.Encoding, error) {
	switch t {
	case gguf_parser.GGMLTypeF32:
		return quant.F32, nil
	case gguf_parser.GGMLTypeQ8_0:
		return quant.Q8_0, nil
	case gguf_parser.GGMLTypeQ4_0:
		return quant.Q4_0, nil
	default:
		return 0, fmt.Errorf("%w: ggml type %d", modelerrors.ErrUnsupportedQuantization, t)
	}
}

func rowSizeBytes(t gguf_parser.GGUFTensorInfo) (int64, error) {
	encoding, err := encodingOf(t.Type)
	if err != nil {
		return 0, err
	}

	elements := uint64(1)
	for _, d := range t.Dimensions {
		elements *= d
	}

	if encoding == quant.F32 {
		return int64(elements) * 4, nil
	}

	if elements%uint64(quant.BlockSize) != 0 {
		return 0, fmt.Errorf("%w: tensor %q has %d elements, not a multiple of block size %d",
			modelerrors.ErrUnsupportedQuantization, t.Name, elements, quant.BlockSize)
	}
	blocks := elements / uint64(quant.BlockSize)
	return int64(blocks) * int64(encoding.BytesPerBlock()), nil
}

func bytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
