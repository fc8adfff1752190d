package analytics

// Band is a coarse quality rating of a single metric value.
type Band string

const (
	BandGood   Band = "good"
	BandNormal Band = "normal"
	BandBad    Band = "bad"
)

type bandRule struct {
	good, bad     float64
	lowerIsBetter bool
	badInclusive  bool
}

var bandRules = map[string]bandRule{
	"success_rate":            {good: 0.85, bad: 0.80},
	"difficulty_index":        {good: 0.70, bad: 0.30},
	"discrimination_index":    {good: 0.35, bad: 0.15},
	"completion_index":        {good: 0.05, bad: 0.15, lowerIsBetter: true},
	"avg_attempts_per_passed": {good: 1.5, bad: 3.5, lowerIsBetter: true},
	"comment_rate":            {good: 0.10, bad: 0.02},
	"usefulness_index":        {good: 3.0, bad: 1.0, badInclusive: true},
}

// Classify rates value for the named metric. ok is false for metrics without a rule.
func Classify(metric string, value float64) (Band, bool) {
	rule, ok := bandRules[metric]
	if !ok {
		return "", false
	}

	if rule.lowerIsBetter {
		switch {
		case value <= rule.good:
			return BandGood, true
		case value > rule.bad:
			return BandBad, true
		}
		return BandNormal, true
	}

	switch {
	case value >= rule.good:
		return BandGood, true
	case value < rule.bad, rule.badInclusive && value == rule.bad:
		return BandBad, true
	}
	return BandNormal, true
}

// Assess rates every metric of the record that carries a meaningful value.
func Assess(m StepMetrics) map[string]Band {
	values := map[string]*float64{
		"discrimination_index":    m.DiscriminationIndex,
		"avg_attempts_per_passed": m.AvgAttemptsPerPassed,
		"usefulness_index":        m.UsefulnessIndex,
	}
	if m.SubmissionCount > 0 {
		values["success_rate"] = floatPtr(m.SuccessRate)
		values["difficulty_index"] = floatPtr(m.DifficultyIndex)
	}
	if m.AttemptedUsers > 0 {
		values["completion_index"] = floatPtr(m.CompletionIndex)
	}
	if m.UniqueViews != nil && *m.UniqueViews > 0 {
		values["comment_rate"] = floatPtr(m.CommentRate)
	}

	bands := make(map[string]Band, len(values))
	for metric, value := range values {
		if value == nil {
			continue
		}
		if band, ok := Classify(metric, *value); ok {
			bands[metric] = band
		}
	}
	return bands
}
