// generate.go - Generation-Loop: Prompt-Verarbeitung und Sampling
//
// Prompt-Ingestion vs. gesampelte Inferenz, Stop-Token-Behandlung und
// Durchsatz-Messung folgen runner/llamarunner/sequence.go und types.go
// (numKeep/discard-Arithmetik fuer Truncation,
// processingDuration/generationDuration/numDecoded/numPromptInputs fuer
// die Metriken) - hier auf eine einzelne Sequenz ohne Batch-Scheduling
// reduziert.
package generate

import (
	"errors"
	"time"

	"github.com/inferned/llamacore/kvstate"
	"github.com/inferned/llamacore/model"
	"github.com/inferned/llamacore/modelerrors"
)

// Options controls one call to Run.
type Options struct {
	// MaxNewTokens bounds how many tokens Run samples after the prompt
	// has been ingested.
	MaxNewTokens int

	// StopTokens ends generation as soon as a sampled token matches one
	// of these ids.
	StopTokens []int32

	// NumKeep is how many leading prompt tokens survive truncation when
	// the prompt is longer than the model's context length. Negative
	// means "keep as many leading tokens as fit": the first
	// contextLength-1 tokens survive, followed by the prompt's last
	// token (only meaningful together with Truncate; an over-long
	// untruncated prompt with NumKeep < 0 still fails with
	// ErrPromptTooLong).
	NumKeep int

	// Truncate allows Run to drop the middle of an over-long prompt
	// instead of returning ErrPromptTooLong.
	Truncate bool
}

// Result reports what a Run call did: prompt/generation token counts
// and wall-clock durations for each phase, plus the reason generation
// stopped.
type Result struct {
	PromptTokens       int
	GeneratedTokens    int
	PromptDuration     time.Duration
	GenerationDuration time.Duration

	// StopReason is one of "max_tokens", "stop_token", "callback", or
	// "context_full".
	StopReason string
}

// PromptTokensPerSecond is PromptTokens normalized by PromptDuration,
// or 0 if no time elapsed.
func (r Result) PromptTokensPerSecond() float64 {
	return tokensPerSecond(r.PromptTokens, r.PromptDuration)
}

// TokensPerSecond is GeneratedTokens normalized by GenerationDuration,
// or 0 if no time elapsed.
func (r Result) TokensPerSecond() float64 {
	return tokensPerSecond(r.GeneratedTokens, r.GenerationDuration)
}

func tokensPerSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// PrepareInputs validates and, if needed, truncates tokens to fit
// within contextLength, keeping the first numKeep tokens and dropping
// the middle. numKeep < 0 means "keep everything that fits".
func PrepareInputs(tokens []int32, contextLength, numKeep int, truncate bool) ([]int32, error) {
	if len(tokens) == 0 {
		return nil, errors.New("generate: no input provided")
	}

	if numKeep < 0 {
		numKeep = len(tokens)
	}
	if numKeep > contextLength-1 {
		numKeep = contextLength - 1
	}

	if len(tokens) <= contextLength {
		return tokens, nil
	}

	if !truncate {
		return nil, modelerrors.ErrPromptTooLong
	}

	discard := len(tokens) - contextLength
	kept := append([]int32{}, tokens[:numKeep]...)
	kept = append(kept, tokens[numKeep+discard:]...)
	return kept, nil
}

// Run ingests promptTokens into s starting at startPosition, then
// samples up to opts.MaxNewTokens further tokens with sampler, calling
// onToken after each sampled token (including the last one before a
// stop condition fires). When echo is true, onToken is also called
// with every prompt token as it is ingested (these do not count
// towards opts.MaxNewTokens and are not included in the returned
// generated-token list). onToken returning false ends generation early
// with StopReason "callback". Run returns the tokens it sampled, in
// order, alongside Result.
func Run(m *model.Model, s *kvstate.State, startPosition int, promptTokens []int32, opts Options, sampler Sampler, echo bool, onToken func(token int32) bool) (Result, []int32, error) {
	var result Result

	tokens, err := PrepareInputs(promptTokens, m.ContextLength-startPosition, opts.NumKeep, opts.Truncate)
	if err != nil {
		return result, nil, err
	}
	result.PromptTokens = len(tokens)

	position := startPosition
	var logits []float32

	promptStart := time.Now()
	for _, tok := range tokens {
		logits, err = m.Forward(s, tok, position)
		if err != nil {
			return result, nil, err
		}
		position++
		if echo {
			onToken(tok)
		}
	}
	result.PromptDuration = time.Since(promptStart)

	var generated []int32

	genStart := time.Now()
	for n := 0; opts.MaxNewTokens <= 0 || n < opts.MaxNewTokens; n++ {
		if position >= m.ContextLength {
			result.StopReason = "context_full"
			break
		}

		next := sampler.Sample(logits)
		generated = append(generated, next)
		result.GeneratedTokens++

		if !onToken(next) {
			result.StopReason = "callback"
			break
		}
		if isStopToken(next, opts.StopTokens) {
			result.StopReason = "stop_token"
			break
		}

		logits, err = m.Forward(s, next, position)
		if err != nil {
			return result, generated, err
		}
		position++
	}
	result.GenerationDuration = time.Since(genStart)

	if result.StopReason == "" {
		result.StopReason = "max_tokens"
	}
	return result, generated, nil
}

func isStopToken(tok int32, stopTokens []int32) bool {
	for _, s := range stopTokens {
		if tok == s {
			return true
		}
	}
	return false
}
