package strategy

import (
	"math"
	"time"
)

// EnsembleMethod selects how surviving strategy signals are combined.
type EnsembleMethod string

const (
	WeightedAverage    EnsembleMethod = "weighted_average"
	Voting             EnsembleMethod = "voting"
	ConfidenceWeighted EnsembleMethod = "confidence_weighted"
)

// ValidMethod reports whether m names one of the combiners.
func ValidMethod(m EnsembleMethod) bool {
	switch m {
	case WeightedAverage, Voting, ConfidenceWeighted:
		return true
	}
	return false
}

const ensembleName = "EnsembleStrategy"

type weightedSignal struct {
	signal *Signal
	weight float64
}

// combineSignals merges surviving signals with the selected method. All
// combiners are commutative over their inputs, so completion order of the
// strategies never changes the result.
func combineSignals(method EnsembleMethod, signals []weightedSignal) *Signal {
	if len(signals) == 0 {
		return neutralSignal()
	}
	if len(signals) == 1 {
		return signals[0].signal
	}
	switch method {
	case Voting:
		return votingEnsemble(signals)
	case ConfidenceWeighted:
		return confidenceWeightedEnsemble(signals)
	default:
		return weightedAverageEnsemble(signals)
	}
}

func neutralSignal() *Signal {
	return &Signal{
		StrategyName: ensembleName,
		Strength:     Neutral,
		Confidence:   0,
		Reasons:      []string{"no valid signals from strategies"},
		Timestamp:    time.Now().UTC(),
	}
}

func weightedAverageEnsemble(signals []weightedSignal) *Signal {
	var totalWeight, strengthSum, confidenceSum float64
	var reasons []string
	individual := map[string]any{}

	for _, ws := range signals {
		totalWeight += ws.weight
		strengthSum += float64(ws.signal.Strength) * ws.weight
		confidenceSum += ws.signal.Confidence * ws.weight
		reasons = append(reasons, prefixReasons(ws.signal)...)
		individual[ws.signal.StrategyName] = map[string]any{
			"strength":   ws.signal.Strength.String(),
			"confidence": ws.signal.Confidence,
			"weight":     ws.weight,
		}
	}

	strength := Neutral
	confidence := 0.0
	if totalWeight > 0 {
		strength = roundStrength(strengthSum / totalWeight)
		confidence = confidenceSum / totalWeight
	}

	return &Signal{
		StrategyName: ensembleName,
		Strength:     strength,
		Confidence:   confidence,
		Reasons:      reasons,
		Metadata:     map[string]any{"individual_signals": individual},
		Timestamp:    time.Now().UTC(),
	}
}

func votingEnsemble(signals []weightedSignal) *Signal {
	votes := map[Strength]float64{}
	var confidenceSum float64
	var reasons []string

	for _, ws := range signals {
		votes[ws.signal.Strength] += ws.weight
		confidenceSum += ws.signal.Confidence
		reasons = append(reasons, prefixReasons(ws.signal)...)
	}

	// scan from STRONG_SELL up so ties resolve to the more conservative
	// (lower) strength
	winner := StrongSell
	best := math.Inf(-1)
	for s := StrongSell; s <= StrongBuy; s++ {
		if v := votes[s]; v > best {
			best = v
			winner = s
		}
	}

	tally := map[string]any{}
	for s, v := range votes {
		tally[s.String()] = v
	}

	return &Signal{
		StrategyName: ensembleName,
		Strength:     winner,
		Confidence:   confidenceSum / float64(len(signals)),
		Reasons:      reasons,
		Metadata:     map[string]any{"votes": tally},
		Timestamp:    time.Now().UTC(),
	}
}

func confidenceWeightedEnsemble(signals []weightedSignal) *Signal {
	var baseWeightSum, confWeightSum, strengthSum float64
	var reasons []string

	for _, ws := range signals {
		confWeight := ws.weight * ws.signal.Confidence
		baseWeightSum += ws.weight
		confWeightSum += confWeight
		strengthSum += float64(ws.signal.Strength) * confWeight
		reasons = append(reasons, prefixReasons(ws.signal)...)
	}

	strength := Neutral
	confidence := 0.0
	if confWeightSum > 0 {
		strength = roundStrength(strengthSum / confWeightSum)
		confidence = confWeightSum / baseWeightSum
	}

	return &Signal{
		StrategyName: ensembleName,
		Strength:     strength,
		Confidence:   confidence,
		Reasons:      reasons,
		Metadata:     map[string]any{"method": string(ConfidenceWeighted)},
		Timestamp:    time.Now().UTC(),
	}
}

func prefixReasons(sig *Signal) []string {
	out := make([]string, 0, len(sig.Reasons))
	for _, r := range sig.Reasons {
		out = append(out, sig.StrategyName+": "+r)
	}
	return out
}

func roundStrength(v float64) Strength {
	s := Strength(math.Round(v))
	if s < StrongSell {
		s = StrongSell
	}
	if s > StrongBuy {
		s = StrongBuy
	}
	return s
}
