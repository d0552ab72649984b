package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Product{}, &Assessment{}, &RunRequest{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(sku)",
		"CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_sku ON assessments(sku)",
		"CREATE INDEX IF NOT EXISTS idx_assessments_rule_score ON assessments(rule_score)",
		"CREATE INDEX IF NOT EXISTS idx_assessments_risk_level ON assessments(risk_level)",
		"CREATE INDEX IF NOT EXISTS idx_assessments_category ON assessments(category)",
		"CREATE INDEX IF NOT EXISTS idx_run_requests_status_created ON run_requests(status, created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReplaceProducts swaps the stored catalog with the provided slice.
func (d *Database) ReplaceProducts(products []Product) error {
	for i := range products {
		products[i].SKU = strings.TrimSpace(products[i].SKU)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Product{}).Error; err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		// Batch insert to avoid SQLite variable limit (999)
		const batchSize = 250
		for start := 0; start < len(products); start += batchSize {
			end := start + batchSize
			if end > len(products) {
				end = len(products)
			}
			batch := products[start:end]
			if err := tx.CreateInBatches(batch, batchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CountProducts returns the catalog size.
func (d *Database) CountProducts() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Product{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListProducts returns a paged slice of the catalog ordered by ID.
func (d *Database) ListProducts(offset, limit int) ([]Product, int64, error) {
	var products []Product
	var total int64
	if err := d.gorm.Model(&Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := d.gorm.Model(&Product{}).Order("id ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetProductBySKU fetches a single catalog entry.
func (d *Database) GetProductBySKU(sku string) (*Product, error) {
	var product Product
	if err := d.gorm.Where("sku = ?", strings.TrimSpace(sku)).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// SaveAssessment inserts or replaces the scoring result for a SKU.
func (d *Database) SaveAssessment(a *Assessment) error {
	if a == nil {
		return errors.New("assessment is nil")
	}
	a.SKU = strings.TrimSpace(a.SKU)
	d.mu.Lock()
	defer d.mu.Unlock()
	columns := []string{
		"name",
		"category",
		"stock_amount",
		"weekly_sales",
		"product_age_days",
		"rating",
		"return_rate",
		"rule_score",
		"risk_level",
		"explanations_json",
		"processing_time_ms",
		"updated_at",
	}
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(a).Error
}

// AssessedSKUs returns the SKUs that already have an assessment row.
func (d *Database) AssessedSKUs() ([]string, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	var skus []string
	if err := d.gorm.Model(&Assessment{}).Pluck("sku", &skus).Error; err != nil {
		return nil, err
	}
	return skus, nil
}

// CountAssessments returns the number of stored assessment rows.
func (d *Database) CountAssessments() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Assessment{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ClearAssessments removes previously calculated assessments (used before a
// forced re-run).
func (d *Database) ClearAssessments() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Assessment{}).Error
}

// AssessmentQuery encapsulates filters and pagination for listing assessment
// rows.
type AssessmentQuery struct {
	Query    string
	Level    string
	Category string
	MinScore int
	Sort     string
	Offset   int
	Limit    int
}

// ListAssessments returns paginated assessment records applying optional
// filters.
func (d *Database) ListAssessments(opts AssessmentQuery) ([]Assessment, int64, error) {
	var total int64
	base := d.gorm.Model(&Assessment{})
	if opts.Query != "" {
		like := fmt.Sprintf("%%%s%%", opts.Query)
		base = base.Where("sku LIKE ? OR name LIKE ?", like, like)
	}
	if level := strings.TrimSpace(opts.Level); level != "" {
		base = base.Where("LOWER(risk_level) = ?", strings.ToLower(level))
	}
	if category := strings.TrimSpace(opts.Category); category != "" {
		base = base.Where("category = ?", category)
	}
	if opts.MinScore != 0 {
		base = base.Where("rule_score >= ?", opts.MinScore)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := orderForSort(opts.Sort)
	queryBuilder := base.Order(order).Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Assessment
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "sku_asc":
		return "assessments.sku ASC"
	case "sku_desc":
		return "assessments.sku DESC"
	case "name_asc":
		return "assessments.name ASC"
	case "name_desc":
		return "assessments.name DESC"
	case "score_desc":
		return "assessments.rule_score DESC, assessments.id DESC"
	case "score_asc":
		return "assessments.rule_score ASC, assessments.id DESC"
	case "created_asc":
		return "assessments.created_at ASC"
	case "created_desc":
		return "assessments.created_at DESC"
	default:
		return "assessments.id DESC"
	}
}

// AssessmentLevelCounts returns how many assessments landed in each risk
// level.
func (d *Database) AssessmentLevelCounts() (map[string]int64, error) {
	type row struct {
		RiskLevel string
		Total     int64
	}
	var rows []row
	if err := d.gorm.Model(&Assessment{}).
		Select("risk_level, COUNT(*) AS total").
		Group("risk_level").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.RiskLevel] = r.Total
	}
	return counts, nil
}

// CreateRunRequest records a new scoring run.
func (d *Database) CreateRunRequest(requestType, status, jobID string, total int) (*RunRequest, error) {
	request := &RunRequest{
		Type:      requestType,
		Status:    status,
		JobID:     jobID,
		Total:     total,
		StartedAt: time.Now(),
	}
	if err := d.gorm.Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

// UpdateRunRequest updates the status of a run, stamping the finish time on
// terminal states.
func (d *Database) UpdateRunRequest(requestID uint, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case "completed", "failed", "cancelled":
		now := time.Now()
		updates["finished_at"] = &now
	}
	return d.gorm.Model(&RunRequest{}).Where("id = ?", requestID).Updates(updates).Error
}

// UpdateRunProgress refreshes the processed counter and status message of a
// run.
func (d *Database) UpdateRunProgress(requestID uint, processed int, message string) error {
	return d.gorm.Model(&RunRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]any{
			"processed": processed,
			"message":   message,
		}).Error
}

// GetRunRequest fetches a run record by ID.
func (d *Database) GetRunRequest(requestID uint) (*RunRequest, error) {
	var request RunRequest
	if err := d.gorm.First(&request, requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// LatestRunRequest returns the most recent run, or nil when none has been
// recorded yet.
func (d *Database) LatestRunRequest() (*RunRequest, error) {
	var request RunRequest
	err := d.gorm.Order("id DESC").First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}
