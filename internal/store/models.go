package store

import (
	"encoding/json"
	"strings"
	"time"

	"inventory-risk-radar/backend/internal/scoring"
)

// Product is a catalog item together with the inventory signals that feed
// the risk rules.
type Product struct {
	ID             uint   `gorm:"primaryKey"`
	SKU            string `gorm:"size:64;uniqueIndex"`
	Name           string `gorm:"size:256;index"`
	Category       string `gorm:"size:128;index"`
	Image          string `gorm:"size:512"`
	Description    string `gorm:"type:text"`
	StockAmount    float64
	WeeklySales    float64
	ProductAgeDays float64
	Rating         float64
	ReturnRate     float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Features maps the persisted signals onto a rule-engine record.
func (p *Product) Features() scoring.FeatureRecord {
	return scoring.FeatureRecord{
		StockAmount:    p.StockAmount,
		WeeklySales:    p.WeeklySales,
		ProductAgeDays: p.ProductAgeDays,
		Rating:         p.Rating,
		ReturnRate:     p.ReturnRate,
	}
}

// Assessment is the per-product scoring output persisted for querying and
// exporting. One row per SKU; re-scoring a product upserts in place. The
// feature values are snapshotted so an exported row stays interpretable
// after the catalog changes.
type Assessment struct {
	ID               uint   `gorm:"primaryKey"`
	SKU              string `gorm:"size:64;uniqueIndex"`
	Name             string `gorm:"size:256;index"`
	Category         string `gorm:"size:128;index"`
	StockAmount      float64
	WeeklySales      float64
	ProductAgeDays   float64
	Rating           float64
	ReturnRate       float64
	RuleScore        int    `gorm:"index"`
	RiskLevel        string `gorm:"size:16;index"`
	ExplanationsJSON string `gorm:"type:text"`
	ProcessingTimeMs int64
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time
}

// SetExplanations persists the reason list as JSON.
func (a *Assessment) SetExplanations(reasons []string) {
	if reasons == nil {
		a.ExplanationsJSON = "[]"
		return
	}
	payload, _ := json.Marshal(reasons)
	a.ExplanationsJSON = string(payload)
}

// Explanations returns the decoded reason list.
func (a *Assessment) Explanations() []string {
	if strings.TrimSpace(a.ExplanationsJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(a.ExplanationsJSON), &out); err != nil {
		return nil
	}
	return out
}

// RunRequest tracks one scoring job over the catalog (initial run, resume or
// forced re-run) so progress survives restarts.
type RunRequest struct {
	ID         uint   `gorm:"primaryKey"`
	Type       string `gorm:"size:32"`
	Status     string `gorm:"size:32;index"`
	JobID      string `gorm:"size:64;index"`
	Message    string `gorm:"size:255"`
	Processed  int
	Total      int
	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}
