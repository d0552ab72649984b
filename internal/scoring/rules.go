package scoring

// band is one interval of a feature ladder. Bounds are exclusive: the band
// matches when the value is strictly above `above` and strictly below
// `below`, with nil bounds left open. Only bands that add points carry
// reason text; the neutral and score-lowering bands explain nothing.
type band struct {
	above  *float64
	below  *float64
	points int
	reason string
}

func (b band) matches(value float64) bool {
	if b.above != nil && !(value > *b.above) {
		return false
	}
	if b.below != nil && !(value < *b.below) {
		return false
	}
	return true
}

// featureRule is the ordered ladder for a single feature. Bands are checked
// top to bottom and the first match wins; the last band of every ladder is a
// catch-all, so exactly one band matches any value.
type featureRule struct {
	value func(FeatureRecord) float64
	bands []band
}

func threshold(v float64) *float64 { return &v }

// defaultRules returns the fixed rule table. Ladder order (stock, sales,
// age, rating, return rate) also fixes the order of emitted explanations.
func defaultRules() []featureRule {
	return []featureRule{
		{
			value: func(r FeatureRecord) float64 { return r.StockAmount },
			bands: []band{
				{above: threshold(600), points: 2, reason: "Very high stock level"},
				{above: threshold(300), points: 1, reason: "High stock level"},
				{},
			},
		},
		{
			value: func(r FeatureRecord) float64 { return r.WeeklySales },
			bands: []band{
				{below: threshold(3), points: 2, reason: "Very low weekly sales"},
				{below: threshold(10), points: 1, reason: "Slowing demand / low weekly sales"},
				{points: -1},
			},
		},
		{
			value: func(r FeatureRecord) float64 { return r.ProductAgeDays },
			bands: []band{
				{above: threshold(250), points: 2, reason: "Product has been in inventory for a long time"},
				{above: threshold(120), points: 1, reason: "Product age is increasing (mid-term shelf time)"},
				{},
			},
		},
		{
			value: func(r FeatureRecord) float64 { return r.Rating },
			bands: []band{
				{below: threshold(2.5), points: 2, reason: "Low customer rating (reduces purchase probability)"},
				{below: threshold(3.5), points: 1, reason: "Average customer rating"},
				{points: -1},
			},
		},
		{
			value: func(r FeatureRecord) float64 { return r.ReturnRate },
			bands: []band{
				{above: threshold(0.20), points: 2, reason: "High return rate (indicates product quality issues)"},
				{above: threshold(0.10), points: 1, reason: "Moderately high return rate"},
				{},
			},
		},
	}
}

// RuleModel is the deterministic rule-table classifier. It holds no mutable
// state and is safe for concurrent use.
type RuleModel struct {
	rules []featureRule
}

// NewRuleModel constructs a classifier backed by the built-in rule table.
func NewRuleModel() RuleModel {
	return RuleModel{rules: defaultRules()}
}

// Score sums the point deltas of the matched band of every feature.
func (m RuleModel) Score(record FeatureRecord) int {
	total := 0
	for _, rule := range m.rules {
		value := rule.value(record)
		for _, b := range rule.bands {
			if b.matches(value) {
				total += b.points
				break
			}
		}
	}
	return total
}

// Explain walks the same table as Score and collects the reason of every
// matched band that carries one, in ladder order. The result is never nil
// but may be empty.
func (m RuleModel) Explain(record FeatureRecord) []string {
	reasons := make([]string, 0, len(m.rules))
	for _, rule := range m.rules {
		value := rule.value(record)
		for _, b := range rule.bands {
			if b.matches(value) {
				if b.reason != "" {
					reasons = append(reasons, b.reason)
				}
				break
			}
		}
	}
	return reasons
}

// Assess classifies the record and bundles the level with its explanations.
func (m RuleModel) Assess(record FeatureRecord) Assessment {
	return Assessment{Level: Classify(m.Score(record)), Explanations: m.Explain(record)}
}

// Predict classifies a batch, one label per record in input order. Empty
// input yields empty output. There is no failure mode: the rule table is
// total over real-valued inputs.
func (m RuleModel) Predict(records []FeatureRecord) []Level {
	labels := make([]Level, 0, len(records))
	for _, record := range records {
		labels = append(labels, Classify(m.Score(record)))
	}
	return labels
}
