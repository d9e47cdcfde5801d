package learning

import (
	"math/rand/v2"
	"sync"

	"github.com/vatsight/pipeline/internal/core/domain"
)

const (
	minWeight       = 0.05
	maxWeight       = 4.0
	reinforceFactor = 1.05
	partialFactor   = 0.9
	demoteFactor    = 0.75
	promoteBonus    = 1.5
)

type templateState struct {
	template  domain.PromptTemplate
	weight    float64
	correct   int
	partial   int
	incorrect int
	// recordIDs accumulates the feedback that will count as evidence in the
	// next evaluation round.
	recordIDs []string
}

// weightTable holds selection weights per prompt template. All mutation goes
// through the table's lock; the extraction path only ever calls Select.
type weightTable struct {
	mu        sync.Mutex
	templates map[string]*templateState
	order     []string
	rng       *rand.Rand
}

func newWeightTable(templates []domain.PromptTemplate, seed int64) *weightTable {
	t := &weightTable{
		templates: make(map[string]*templateState, len(templates)),
		rng:       rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>32)),
	}
	for _, tpl := range templates {
		t.templates[tpl.ID] = &templateState{template: tpl, weight: 1.0}
		t.order = append(t.order, tpl.ID)
	}
	return t
}

// Select draws a template with probability proportional to its weight.
func (t *weightTable) Select() domain.PromptTemplate {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, id := range t.order {
		total += t.templates[id].weight
	}
	if total <= 0 || len(t.order) == 0 {
		if len(t.order) == 0 {
			return domain.PromptTemplate{}
		}
		return t.templates[t.order[0]].template
	}

	target := t.rng.Float64() * total
	for _, id := range t.order {
		target -= t.templates[id].weight
		if target <= 0 {
			return t.templates[id].template
		}
	}
	return t.templates[t.order[len(t.order)-1]].template
}

func (t *weightTable) apply(templateID string, kind domain.FeedbackKind, recordID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.templates[templateID]
	if !ok {
		return
	}
	switch kind {
	case domain.FeedbackCorrect:
		state.correct++
		state.weight *= reinforceFactor
	case domain.FeedbackPartiallyCorrect:
		state.partial++
		state.weight *= partialFactor
	case domain.FeedbackIncorrect:
		state.incorrect++
		state.weight *= demoteFactor
	}
	state.weight = clampWeight(state.weight)
	if recordID != "" {
		state.recordIDs = append(state.recordIDs, recordID)
	}
}

func (t *weightTable) weight(templateID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.templates[templateID]; ok {
		return state.weight
	}
	return 0
}

type evaluation struct {
	templateID string
	accuracy   float64
	samples    int
	recordIDs  []string
}

// evaluate compares accumulated outcomes per template and, when one variant
// is measurably ahead, promotes it and returns the evidence that backed the
// decision. Counters reset after each round.
func (t *weightTable) evaluate(minSamples int, margin float64) (evaluation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best, runnerUp *evaluation
	for _, id := range t.order {
		state := t.templates[id]
		samples := state.correct + state.partial + state.incorrect
		if samples < minSamples {
			continue
		}
		accuracy := (float64(state.correct) + 0.5*float64(state.partial)) / float64(samples)
		candidate := &evaluation{
			templateID: id,
			accuracy:   accuracy,
			samples:    samples,
			recordIDs:  append([]string(nil), state.recordIDs...),
		}
		switch {
		case best == nil || candidate.accuracy > best.accuracy:
			runnerUp = best
			best = candidate
		case runnerUp == nil || candidate.accuracy > runnerUp.accuracy:
			runnerUp = candidate
		}
	}

	if best == nil || runnerUp == nil {
		return evaluation{}, false
	}
	if best.accuracy-runnerUp.accuracy < margin {
		return evaluation{}, false
	}

	winner := t.templates[best.templateID]
	winner.weight = clampWeight(winner.weight * promoteBonus)
	for _, id := range t.order {
		state := t.templates[id]
		state.correct, state.partial, state.incorrect = 0, 0, 0
		state.recordIDs = nil
	}
	return *best, true
}

func clampWeight(w float64) float64 {
	if w < minWeight {
		return minWeight
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}
