package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"inventory-risk-radar/backend/internal/scoring"
)

// requiredFeatureFields fixes the order missing fields are reported in.
var requiredFeatureFields = []string{
	"stock_amount",
	"weekly_sales",
	"product_age_days",
	"rating",
	"return_rate",
}

// handlePredict scores one ad-hoc feature payload. The risk label comes from
// the configured predictor (remote model when reachable, rule engine
// otherwise); the explanations always come from the rule table.
func (s *Server) handlePredict(c *gin.Context) {
	payload := map[string]any{}
	// A missing or malformed body counts as an empty payload so the error
	// lists every missing field.
	_ = c.ShouldBindJSON(&payload)

	record, err := parseFeatures(payload)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	level := scoring.Classify(s.rules.Score(record))
	if labels, err := s.predictor.Predict(c.Request.Context(), []scoring.FeatureRecord{record}); err == nil && len(labels) == 1 {
		level = labels[0]
	}

	c.JSON(http.StatusOK, PredictResponse{
		Risk:         level,
		Explanations: s.rules.Explain(record),
	})
}

// parseFeatures validates presence and numeric type of the five feature
// fields. Numeric strings are coerced; anything else is rejected. The error
// strings are part of the response contract.
func parseFeatures(payload map[string]any) (scoring.FeatureRecord, error) {
	missing := make([]string, 0, len(requiredFeatureFields))
	for _, field := range requiredFeatureFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return scoring.FeatureRecord{}, fmt.Errorf("Missing fields: %s", strings.Join(missing, ", "))
	}

	values := make([]float64, 0, len(requiredFeatureFields))
	for _, field := range requiredFeatureFields {
		value, err := coerceFloat(payload[field])
		if err != nil {
			return scoring.FeatureRecord{}, errors.New("Invalid input types; all fields must be numeric")
		}
		values = append(values, value)
	}

	return scoring.FeatureRecord{
		StockAmount:    values[0],
		WeeklySales:    values[1],
		ProductAgeDays: values[2],
		Rating:         values[3],
		ReturnRate:     values[4],
	}, nil
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", value)
	}
}
