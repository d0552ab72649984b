package api

import (
	"time"

	"inventory-risk-radar/backend/internal/scoring"
	"inventory-risk-radar/backend/internal/store"
)

// PredictResponse is the ad-hoc prediction payload: a risk label plus the
// rule-based explanations for it.
type PredictResponse struct {
	Risk         scoring.Level `json:"risk"`
	Explanations []string      `json:"explanations"`
}

// ProductDTO is the API representation of a catalog entry. The id field
// carries the SKU.
type ProductDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Image          string  `json:"image"`
	Description    string  `json:"description"`
	StockAmount    float64 `json:"stock_amount"`
	WeeklySales    float64 `json:"weekly_sales"`
	ProductAgeDays float64 `json:"product_age_days"`
	Rating         float64 `json:"rating"`
	ReturnRate     float64 `json:"return_rate"`
}

// ProductsResponse lists catalog entries.
type ProductsResponse struct {
	Products []ProductDTO `json:"products"`
	Total    int64        `json:"total"`
}

// ProductFromModel converts a store.Product into the DTO representation.
func ProductFromModel(p store.Product) ProductDTO {
	return ProductDTO{
		ID:             p.SKU,
		Name:           p.Name,
		Category:       p.Category,
		Image:          p.Image,
		Description:    p.Description,
		StockAmount:    p.StockAmount,
		WeeklySales:    p.WeeklySales,
		ProductAgeDays: p.ProductAgeDays,
		Rating:         p.Rating,
		ReturnRate:     p.ReturnRate,
	}
}

// ImportResponse reports catalog statistics after processing an upload.
type ImportResponse struct {
	Filename string `json:"filename"`
	Products int    `json:"products"`
}

// ScoreRequest controls how a scoring run treats existing assessments.
type ScoreRequest struct {
	Resume bool `json:"resume"`
	Force  bool `json:"force"`
}

// StartRunResponse describes the asynchronous scoring kickoff payload.
type StartRunResponse struct {
	JobID     string    `json:"job_id"`
	RequestID uint      `json:"request_id"`
	Total     int64     `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// AssessmentDTO is the API representation for a persisted assessment.
type AssessmentDTO struct {
	ID               uint      `json:"id"`
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	StockAmount      float64   `json:"stock_amount"`
	WeeklySales      float64   `json:"weekly_sales"`
	ProductAgeDays   float64   `json:"product_age_days"`
	Rating           float64   `json:"rating"`
	ReturnRate       float64   `json:"return_rate"`
	RuleScore        int       `json:"rule_score"`
	Risk             string    `json:"risk"`
	Explanations     []string  `json:"explanations"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// AssessmentsResponse holds assessment items and totals.
type AssessmentsResponse struct {
	Items []AssessmentDTO `json:"items"`
	Total int64           `json:"total"`
}

// FromModel converts a store.Assessment into the DTO representation.
func FromModel(a store.Assessment) AssessmentDTO {
	explanations := a.Explanations()
	if explanations == nil {
		explanations = []string{}
	}
	return AssessmentDTO{
		ID:               a.ID,
		SKU:              a.SKU,
		Name:             a.Name,
		Category:         a.Category,
		StockAmount:      a.StockAmount,
		WeeklySales:      a.WeeklySales,
		ProductAgeDays:   a.ProductAgeDays,
		Rating:           a.Rating,
		ReturnRate:       a.ReturnRate,
		RuleScore:        a.RuleScore,
		Risk:             a.RiskLevel,
		Explanations:     explanations,
		ProcessingTimeMs: a.ProcessingTimeMs,
		CreatedAt:        a.CreatedAt,
	}
}

// RunStatusResponse describes the state of the active scoring run. When no
// run is active it reflects the most recently persisted one.
type RunStatusResponse struct {
	Running        bool           `json:"running"`
	JobID          string         `json:"job_id"`
	RequestID      uint           `json:"request_id"`
	State          string         `json:"state"`
	Message        string         `json:"message"`
	Processed      int            `json:"processed"`
	Total          int64          `json:"total"`
	LastAssessment *AssessmentDTO `json:"last_assessment,omitempty"`
}

// SummaryResponse aggregates the stored assessments by risk level.
type SummaryResponse struct {
	Products int64            `json:"products"`
	Assessed int64            `json:"assessed"`
	Levels   map[string]int64 `json:"levels"`
}
