package scoring

import (
	"reflect"
	"testing"
)

// baseRecord scores -2: neutral stock, age and return rate, with the
// healthy-sales and good-rating bands each subtracting a point.
func baseRecord() FeatureRecord {
	return FeatureRecord{
		StockAmount:    100,
		WeeklySales:    20,
		ProductAgeDays: 50,
		Rating:         4.5,
		ReturnRate:     0.05,
	}
}

func TestRuleTableBoundaries(t *testing.T) {
	model := NewRuleModel()

	base := baseRecord()
	if got := model.Score(base); got != -2 {
		t.Fatalf("Score(base) = %d, want -2", got)
	}

	cases := []struct {
		name   string
		mutate func(*FeatureRecord)
		want   int
	}{
		{"stock at 300 stays neutral", func(r *FeatureRecord) { r.StockAmount = 300 }, -2},
		{"stock just above 300 adds one", func(r *FeatureRecord) { r.StockAmount = 300.5 }, -1},
		{"stock at 600 stays in lower band", func(r *FeatureRecord) { r.StockAmount = 600 }, -1},
		{"stock just above 600 adds two", func(r *FeatureRecord) { r.StockAmount = 600.0001 }, 0},

		{"sales at 10 keeps healthy credit", func(r *FeatureRecord) { r.WeeklySales = 10 }, -2},
		{"sales just below 10 adds one", func(r *FeatureRecord) { r.WeeklySales = 9.9 }, 0},
		{"sales at 3 stays in lower band", func(r *FeatureRecord) { r.WeeklySales = 3 }, 0},
		{"sales just below 3 adds two", func(r *FeatureRecord) { r.WeeklySales = 2.9 }, 1},

		{"age at 120 stays neutral", func(r *FeatureRecord) { r.ProductAgeDays = 120 }, -2},
		{"age just above 120 adds one", func(r *FeatureRecord) { r.ProductAgeDays = 120.5 }, -1},
		{"age at 250 stays in lower band", func(r *FeatureRecord) { r.ProductAgeDays = 250 }, -1},
		{"age just above 250 adds two", func(r *FeatureRecord) { r.ProductAgeDays = 250.1 }, 0},

		{"rating at 3.5 keeps good credit", func(r *FeatureRecord) { r.Rating = 3.5 }, -2},
		{"rating just below 3.5 adds one", func(r *FeatureRecord) { r.Rating = 3.4 }, 0},
		{"rating at 2.5 stays in lower band", func(r *FeatureRecord) { r.Rating = 2.5 }, 0},
		{"rating just below 2.5 adds two", func(r *FeatureRecord) { r.Rating = 2.4 }, 1},

		{"return rate at 0.10 stays neutral", func(r *FeatureRecord) { r.ReturnRate = 0.10 }, -2},
		{"return rate just above 0.10 adds one", func(r *FeatureRecord) { r.ReturnRate = 0.101 }, -1},
		{"return rate at 0.20 stays in lower band", func(r *FeatureRecord) { r.ReturnRate = 0.20 }, -1},
		{"return rate just above 0.20 adds two", func(r *FeatureRecord) { r.ReturnRate = 0.201 }, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := baseRecord()
			tc.mutate(&record)
			if got := model.Score(record); got != tc.want {
				t.Fatalf("Score(%+v) = %d, want %d", record, got, tc.want)
			}
		})
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Level
	}{
		{-5, LevelLow},
		{-2, LevelLow},
		{0, LevelLow},
		{2, LevelLow},
		{3, LevelMedium},
		{5, LevelMedium},
		{6, LevelHigh},
		{10, LevelHigh},
	}
	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Fatalf("Classify(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestAssessScenarios(t *testing.T) {
	model := NewRuleModel()

	cases := []struct {
		name        string
		record      FeatureRecord
		wantLevel   Level
		wantReasons []string
	}{
		{
			name:      "every signal at its worst",
			record:    FeatureRecord{StockAmount: 700, WeeklySales: 1, ProductAgeDays: 300, Rating: 1.5, ReturnRate: 0.30},
			wantLevel: LevelHigh,
			wantReasons: []string{
				"Very high stock level",
				"Very low weekly sales",
				"Product has been in inventory for a long time",
				"Low customer rating (reduces purchase probability)",
				"High return rate (indicates product quality issues)",
			},
		},
		{
			name:        "healthy item explains nothing",
			record:      FeatureRecord{StockAmount: 100, WeeklySales: 15, ProductAgeDays: 50, Rating: 4.5, ReturnRate: 0.02},
			wantLevel:   LevelLow,
			wantReasons: []string{},
		},
		{
			name:      "mild signals stay low but still explain",
			record:    FeatureRecord{StockAmount: 500, WeeklySales: 8, ProductAgeDays: 120, Rating: 3.7, ReturnRate: 0.12},
			wantLevel: LevelLow,
			wantReasons: []string{
				"High stock level",
				"Slowing demand / low weekly sales",
				"Moderately high return rate",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := model.Assess(tc.record)
			if got.Level != tc.wantLevel {
				t.Fatalf("Assess level = %q, want %q", got.Level, tc.wantLevel)
			}
			if got.Explanations == nil {
				t.Fatalf("Assess explanations are nil, want empty slice at minimum")
			}
			if !reflect.DeepEqual(got.Explanations, tc.wantReasons) {
				t.Fatalf("Assess explanations = %#v, want %#v", got.Explanations, tc.wantReasons)
			}

			again := model.Assess(tc.record)
			if !reflect.DeepEqual(got, again) {
				t.Fatalf("Assess is not deterministic: %#v then %#v", got, again)
			}
		})
	}
}

func TestPredictBatch(t *testing.T) {
	model := NewRuleModel()

	if got := model.Predict(nil); len(got) != 0 {
		t.Fatalf("Predict(nil) = %v, want empty", got)
	}

	records := []FeatureRecord{
		{StockAmount: 700, WeeklySales: 1, ProductAgeDays: 300, Rating: 1.5, ReturnRate: 0.30},
		{StockAmount: 100, WeeklySales: 15, ProductAgeDays: 50, Rating: 4.5, ReturnRate: 0.02},
		{StockAmount: 500, WeeklySales: 8, ProductAgeDays: 200, Rating: 3.0, ReturnRate: 0.05},
	}
	want := []Level{LevelHigh, LevelLow, LevelMedium}
	if got := model.Predict(records); !reflect.DeepEqual(got, want) {
		t.Fatalf("Predict(batch) = %v, want %v", got, want)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	model := NewRuleModel()
	base := baseRecord()
	baseScore := model.Score(base)

	worsen := []struct {
		name   string
		mutate func(*FeatureRecord)
	}{
		{"overstocking", func(r *FeatureRecord) { r.StockAmount = 700 }},
		{"collapsing sales", func(r *FeatureRecord) { r.WeeklySales = 1 }},
		{"aging inventory", func(r *FeatureRecord) { r.ProductAgeDays = 300 }},
		{"poor rating", func(r *FeatureRecord) { r.Rating = 1.5 }},
		{"rising returns", func(r *FeatureRecord) { r.ReturnRate = 0.30 }},
	}

	for _, tc := range worsen {
		t.Run(tc.name, func(t *testing.T) {
			record := base
			tc.mutate(&record)
			if got := model.Score(record); got < baseScore {
				t.Fatalf("worsening %s lowered score from %d to %d", tc.name, baseScore, got)
			}
		})
	}
}

func TestExplainMatchesScoredBands(t *testing.T) {
	model := NewRuleModel()

	base := baseRecord()
	if got := model.Explain(base); len(got) != 0 {
		t.Fatalf("Explain(base) = %v, want no reasons", got)
	}

	cases := []struct {
		name   string
		mutate func(*FeatureRecord)
		want   string
	}{
		{"elevated stock", func(r *FeatureRecord) { r.StockAmount = 400 }, "High stock level"},
		{"excessive stock", func(r *FeatureRecord) { r.StockAmount = 700 }, "Very high stock level"},
		{"slowing sales", func(r *FeatureRecord) { r.WeeklySales = 8 }, "Slowing demand / low weekly sales"},
		{"stalled sales", func(r *FeatureRecord) { r.WeeklySales = 1 }, "Very low weekly sales"},
		{"aging stock", func(r *FeatureRecord) { r.ProductAgeDays = 200 }, "Product age is increasing (mid-term shelf time)"},
		{"stale stock", func(r *FeatureRecord) { r.ProductAgeDays = 300 }, "Product has been in inventory for a long time"},
		{"middling rating", func(r *FeatureRecord) { r.Rating = 3.0 }, "Average customer rating"},
		{"poor rating", func(r *FeatureRecord) { r.Rating = 2.0 }, "Low customer rating (reduces purchase probability)"},
		{"noticeable returns", func(r *FeatureRecord) { r.ReturnRate = 0.15 }, "Moderately high return rate"},
		{"heavy returns", func(r *FeatureRecord) { r.ReturnRate = 0.30 }, "High return rate (indicates product quality issues)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := baseRecord()
			tc.mutate(&record)
			got := model.Explain(record)
			if len(got) != 1 || got[0] != tc.want {
				t.Fatalf("Explain = %v, want exactly [%q]", got, tc.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"low", LevelLow, true},
		{"Medium", LevelMedium, true},
		{" HIGH ", LevelHigh, true},
		{"critical", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %q, %v, want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestVectorOrder(t *testing.T) {
	record := FeatureRecord{StockAmount: 1, WeeklySales: 2, ProductAgeDays: 3, Rating: 4, ReturnRate: 5}
	want := []float64{1, 2, 3, 4, 5}
	if got := record.Vector(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Vector() = %v, want %v", got, want)
	}
}
