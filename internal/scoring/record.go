package scoring

// FeatureRecord holds the five numeric signals that describe one inventory
// item. Values outside the nominal ranges are accepted and scored with the
// same thresholds; presence and type validation is the caller's concern.
type FeatureRecord struct {
	StockAmount    float64 `json:"stock_amount"`
	WeeklySales    float64 `json:"weekly_sales"`
	ProductAgeDays float64 `json:"product_age_days"`
	Rating         float64 `json:"rating"`
	ReturnRate     float64 `json:"return_rate"`
}

// Vector returns the features in canonical order (stock, sales, age, rating,
// return rate), the layout batch predictors consume.
func (r FeatureRecord) Vector() []float64 {
	return []float64{r.StockAmount, r.WeeklySales, r.ProductAgeDays, r.Rating, r.ReturnRate}
}

// Assessment pairs a risk level with the reasons behind it.
type Assessment struct {
	Level        Level    `json:"risk"`
	Explanations []string `json:"explanations"`
}
