// main.go - Beispiel-Binary: loader -> model -> kvstate -> generate
//
// Bewusst minimal gehalten: Kommandozeilen-Parsing ist nicht der Zweck
// dieses Binaries, sondern ein Aufrufort fuer den ambienten
// Logging/Config-Stack. Nimmt Token-IDs statt Text entgegen -
// Tokenisierung ist nicht Teil dieses Kerns - im selben Geist, wie
// Flags gegen eine Options-Struktur gelesen werden.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inferned/llamacore/envconfig"
	"github.com/inferned/llamacore/generate"
	"github.com/inferned/llamacore/kvstate"
	"github.com/inferned/llamacore/loader"
	"github.com/inferned/llamacore/model"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("llamacore: run failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		modelPath    string
		promptTokens string
		maxNewTokens int
		temperature  float32
		topP         float32
		seed         uint64
		flashAttn    bool
		echo         bool
	)

	cmd := &cobra.Command{
		Use:           "llamacore",
		Short:         "run one generation pass over a gguf model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath == "" {
				modelPath = envconfig.String("LLAMACORE_MODEL_PATH")()
			}
			if modelPath == "" {
				return fmt.Errorf("model path required: pass --model or set LLAMACORE_MODEL_PATH")
			}

			tokens, err := parseTokens(promptTokens)
			if err != nil {
				return err
			}

			cfg, w, err := loader.Load(modelPath)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			cfg.FlashAttention = flashAttn
			if v := envconfig.CoreRopeFreqBase(); v != 0 {
				cfg.RopeFreqBase = float32(v)
			}

			maxWorkers := int(envconfig.CoreMaxWorkers())
			if maxWorkers == 0 {
				maxWorkers = 1
			}

			m, err := model.New(cfg, w, model.DeviceCPU, maxWorkers)
			if err != nil {
				return fmt.Errorf("construct model: %w", err)
			}

			s := kvstate.New(cfg.Dim, cfg.HiddenDim, cfg.NumberOfLayers, cfg.NumberOfHeads,
				cfg.NumberOfKeyValueHeads, cfg.HeadSize, cfg.VocabularySize, cfg.ContextLength, tokens[0])

			var sampler generate.Sampler = generate.GreedySampler{}
			if temperature > 0 {
				sampler = generate.NewTemperatureSampler(temperature, topP, seed)
			}

			opts := generate.Options{MaxNewTokens: maxNewTokens, Truncate: true, NumKeep: -1}
			result, generated, err := generate.Run(m, s, 0, tokens, opts, sampler, echo, func(tok int32) bool {
				fmt.Fprintf(cmd.OutOrStdout(), "%d ", tok)
				return true
			})
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			slog.Info("generation finished",
				"stop_reason", result.StopReason,
				"prompt_tokens", result.PromptTokens,
				"generated_tokens", result.GeneratedTokens,
				"prompt_tokens_per_second", result.PromptTokensPerSecond(),
				"tokens_per_second", result.TokensPerSecond(),
				"generated", generated,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "path to a .gguf model file (default: $LLAMACORE_MODEL_PATH)")
	cmd.Flags().StringVar(&promptTokens, "tokens", "", "comma-separated prompt token ids")
	cmd.Flags().IntVar(&maxNewTokens, "max-new-tokens", 64, "maximum tokens to sample after the prompt")
	cmd.Flags().Float32Var(&temperature, "temperature", 0, "sampling temperature; 0 selects greedy decoding")
	cmd.Flags().Float32Var(&topP, "top-p", 0.9, "nucleus sampling threshold, used when temperature > 0")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed for the temperature sampler's deterministic generator")
	cmd.Flags().BoolVar(&flashAttn, "flash-attention", envconfig.Bool("LLAMACORE_FLASH_ATTENTION")(),
		"use the tiled online-softmax attention kernel")
	cmd.Flags().BoolVar(&echo, "echo", false, "replay prompt tokens through the output callback before generation")
	cmd.MarkFlagRequired("tokens")

	return cmd
}

func parseTokens(s string) ([]int32, error) {
	parts := strings.Split(s, ",")
	tokens := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", p, err)
		}
		tokens = append(tokens, int32(n))
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no prompt tokens provided")
	}
	return tokens, nil
}
