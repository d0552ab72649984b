package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "risk.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testProduct(sku, name string) Product {
	return Product{
		SKU:            sku,
		Name:           name,
		Category:       "Electronics",
		StockAmount:    100,
		WeeklySales:    15,
		ProductAgeDays: 50,
		Rating:         4.5,
		ReturnRate:     0.02,
	}
}

func TestOpenAppliesWALMode(t *testing.T) {
	db := openTestDB(t)

	var mode string
	require.NoError(t, db.GORM().Raw("PRAGMA journal_mode").Scan(&mode).Error)
	require.Equal(t, "wal", strings.ToLower(mode))
}

func TestReplaceProductsSwapsCatalog(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.ReplaceProducts([]Product{
		testProduct("P-1001", "Desk Lamp"),
		testProduct("P-1002", "Monitor Stand"),
	}))

	count, err := db.CountProducts()
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	updated := testProduct("P-1001", "Desk Lamp v2")
	updated.StockAmount = 700
	require.NoError(t, db.ReplaceProducts([]Product{updated}))

	count, err = db.CountProducts()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	product, err := db.GetProductBySKU("P-1001")
	require.NoError(t, err)
	require.Equal(t, "Desk Lamp v2", product.Name)
	require.Equal(t, 700.0, product.StockAmount)

	_, err = db.GetProductBySKU("P-1002")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReplaceProductsTrimsSKU(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.ReplaceProducts([]Product{testProduct("  P-2001  ", "Cable Tidy")}))

	product, err := db.GetProductBySKU(" P-2001 ")
	require.NoError(t, err)
	require.Equal(t, "P-2001", product.SKU)
}

func TestGetProductBySKUMissing(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetProductBySKU("P-9999")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListProductsPaging(t *testing.T) {
	db := openTestDB(t)

	products := []Product{
		testProduct("P-1", "A"),
		testProduct("P-2", "B"),
		testProduct("P-3", "C"),
		testProduct("P-4", "D"),
		testProduct("P-5", "E"),
	}
	require.NoError(t, db.ReplaceProducts(products))

	page, total, err := db.ListProducts(0, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	require.Equal(t, "P-1", page[0].SKU)

	page, _, err = db.ListProducts(4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "P-5", page[0].SKU)
}

func seedAssessment(t *testing.T, db *Database, sku, name, category, level string, score int, reasons []string) {
	t.Helper()
	a := Assessment{
		SKU:       sku,
		Name:      name,
		Category:  category,
		RuleScore: score,
		RiskLevel: level,
	}
	a.SetExplanations(reasons)
	require.NoError(t, db.SaveAssessment(&a))
}

func TestSaveAssessmentUpsertsBySKU(t *testing.T) {
	db := openTestDB(t)

	seedAssessment(t, db, "P-1001", "Desk Lamp", "Home", "High", 7, []string{"Very high stock level"})
	seedAssessment(t, db, "P-1001", "Desk Lamp", "Home", "Low", -2, nil)

	count, err := db.CountAssessments()
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	rows, _, err := db.ListAssessments(AssessmentQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Low", rows[0].RiskLevel)
	require.Equal(t, -2, rows[0].RuleScore)
	require.Empty(t, rows[0].Explanations())
}

func TestAssessmentExplanationsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	reasons := []string{"Very high stock level", "Very low weekly sales"}
	seedAssessment(t, db, "P-1001", "Desk Lamp", "Home", "High", 7, reasons)

	rows, _, err := db.ListAssessments(AssessmentQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, reasons, rows[0].Explanations())
}

func TestListAssessmentsFilters(t *testing.T) {
	db := openTestDB(t)

	seedAssessment(t, db, "P-1001", "Desk Lamp", "Home", "High", 7, []string{"Very high stock level"})
	seedAssessment(t, db, "P-1002", "Monitor Stand", "Office", "Medium", 4, []string{"High stock level"})
	seedAssessment(t, db, "P-1003", "Cable Tidy", "Office", "Low", -2, nil)

	rows, total, err := db.ListAssessments(AssessmentQuery{Level: "high"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "P-1001", rows[0].SKU)

	_, total, err = db.ListAssessments(AssessmentQuery{Category: "Office"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	_, total, err = db.ListAssessments(AssessmentQuery{MinScore: 4})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	rows, total, err = db.ListAssessments(AssessmentQuery{Query: "Monitor"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "P-1002", rows[0].SKU)

	rows, _, err = db.ListAssessments(AssessmentQuery{Sort: "score_desc"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "P-1001", rows[0].SKU)
	require.Equal(t, "P-1003", rows[2].SKU)

	rows, _, err = db.ListAssessments(AssessmentQuery{Sort: "score_desc", Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "P-1002", rows[0].SKU)
}

func TestAssessmentLevelCounts(t *testing.T) {
	db := openTestDB(t)

	seedAssessment(t, db, "P-1", "A", "Home", "High", 7, nil)
	seedAssessment(t, db, "P-2", "B", "Home", "High", 6, nil)
	seedAssessment(t, db, "P-3", "C", "Home", "Low", 0, nil)

	counts, err := db.AssessmentLevelCounts()
	require.NoError(t, err)
	require.EqualValues(t, 2, counts["High"])
	require.EqualValues(t, 1, counts["Low"])
	require.Zero(t, counts["Medium"])
}

func TestAssessedSKUs(t *testing.T) {
	db := openTestDB(t)

	seedAssessment(t, db, "P-1", "A", "Home", "Low", 0, nil)
	seedAssessment(t, db, "P-2", "B", "Home", "Low", 0, nil)

	skus, err := db.AssessedSKUs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"P-1", "P-2"}, skus)
}

func TestClearAssessments(t *testing.T) {
	db := openTestDB(t)

	seedAssessment(t, db, "P-1", "A", "Home", "Low", 0, nil)
	require.NoError(t, db.ClearAssessments())

	count, err := db.CountAssessments()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRunRequestLifecycle(t *testing.T) {
	db := openTestDB(t)

	latest, err := db.LatestRunRequest()
	require.NoError(t, err)
	require.Nil(t, latest)

	request, err := db.CreateRunRequest("initial", "running", "job-123", 10)
	require.NoError(t, err)
	require.NotZero(t, request.ID)

	require.NoError(t, db.UpdateRunProgress(request.ID, 5, "5/10 products scored"))
	require.NoError(t, db.UpdateRunRequest(request.ID, "completed"))

	stored, err := db.GetRunRequest(request.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", stored.Status)
	require.Equal(t, 5, stored.Processed)
	require.Equal(t, 10, stored.Total)
	require.NotNil(t, stored.FinishedAt)

	latest, err = db.LatestRunRequest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, request.ID, latest.ID)
}

func TestProductFeaturesMapping(t *testing.T) {
	product := testProduct("P-1", "A")
	features := product.Features()
	require.Equal(t, product.StockAmount, features.StockAmount)
	require.Equal(t, product.WeeklySales, features.WeeklySales)
	require.Equal(t, product.ProductAgeDays, features.ProductAgeDays)
	require.Equal(t, product.Rating, features.Rating)
	require.Equal(t, product.ReturnRate, features.ReturnRate)
}
