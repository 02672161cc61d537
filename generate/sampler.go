// sampler.go - Token-Sampling aus Logits
//
// Grounded auf die Rolle von sample.Sampler in
// runner/ollamarunner/runner_types.go (ein austauschbares Sampling-
// Objekt pro Sequenz) - das konkrete Paket ist nicht im Retrieval-Pack
// enthalten, daher ist die Implementierung hier neu geschrieben:
// Greedy-Argmax und ein temperature/top-p-Sampler mit
// einem deterministischen Generator statt math/rand, im selben Stil
// wie der LCG-Testhelfer in kernel/kernel_test.go.
package generate

import "math"

// Sampler turns one step's logits into a chosen token id.
type Sampler interface {
	Sample(logits []float32) int32
}

// GreedySampler always picks the highest-logit token, breaking ties by
// the lowest token id.
type GreedySampler struct{}

func (GreedySampler) Sample(logits []float32) int32 {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return int32(best)
}

// TemperatureSampler scales logits by 1/Temperature, restricts to the
// smallest nucleus of tokens whose cumulative probability reaches TopP,
// and samples from the renormalized nucleus.
type TemperatureSampler struct {
	Temperature float32
	TopP        float32

	rng lcg
}

// NewTemperatureSampler builds a TemperatureSampler seeded
// deterministically from seed; the same seed always produces the same
// sequence of samples for the same logits sequence.
func NewTemperatureSampler(temperature, topP float32, seed uint64) *TemperatureSampler {
	if temperature <= 0 {
		temperature = 1
	}
	if topP <= 0 || topP > 1 {
		topP = 1
	}
	return &TemperatureSampler{Temperature: temperature, TopP: topP, rng: lcg{state: seed}}
}

func (s *TemperatureSampler) Sample(logits []float32) int32 {
	probs := softmaxWithTemperature(logits, s.Temperature)
	order := argsortDescending(probs)
	order = nucleus(probs, order, s.TopP)

	var total float32
	for _, idx := range order {
		total += probs[idx]
	}

	r := s.rng.uniform() * total
	var cum float32
	for _, idx := range order {
		cum += probs[idx]
		if r <= cum {
			return int32(idx)
		}
	}
	return int32(order[len(order)-1])
}

func softmaxWithTemperature(logits []float32, temperature float32) []float32 {
	scaled := make([]float32, len(logits))
	maxLogit := float32(math.Inf(-1))
	for i, v := range logits {
		scaled[i] = v / temperature
		if scaled[i] > maxLogit {
			maxLogit = scaled[i]
		}
	}

	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range scaled {
		e := float32(math.Exp(float64(v - maxLogit)))
		probs[i] = e
		sum += e
	}
	if sum == 0 {
		uniform := 1 / float32(len(probs))
		for i := range probs {
			probs[i] = uniform
		}
		return probs
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func argsortDescending(probs []float32) []int {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && probs[order[j]] > probs[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

// nucleus returns the prefix of order (already sorted by descending
// probability) whose cumulative probability first reaches topP.
func nucleus(probs []float32, order []int, topP float32) []int {
	var cum float32
	for i, idx := range order {
		cum += probs[idx]
		if cum >= topP {
			return order[:i+1]
		}
	}
	return order
}

// lcg is a tiny linear congruential generator, deterministic across Go
// versions unlike math/rand's seeding guarantees.
type lcg struct{ state uint64 }

func (g *lcg) uniform() float32 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return float32(g.state>>40) / float32(1<<24)
}
