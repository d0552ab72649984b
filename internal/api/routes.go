package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"inventory-risk-radar/backend/internal/catalog"
	"inventory-risk-radar/backend/internal/ml"
	"inventory-risk-radar/backend/internal/scoring"
	"inventory-risk-radar/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	CatalogPath    string
	AllowedOrigins []string
	SilentDB       bool
	ModelConfig    ml.Config
	DisableModel   bool
}

// Server wires HTTP handlers with persistence and scoring.
type Server struct {
	db             *store.Database
	catalogPath    string
	catalog        *catalog.Service
	rules          scoring.RuleModel
	remote         ml.Predictor
	predictor      ml.Predictor
	allowedOrigins []string
	runNotifier    *RunNotifier
	jobMu          sync.Mutex
	activeJob      *scoringJob
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	rules := scoring.NewRuleModel()

	var remote ml.Predictor
	if cfg.DisableModel {
		logrus.Info("remote model disabled via configuration")
	} else {
		client, err := ml.NewClient(cfg.ModelConfig)
		switch {
		case err == nil:
			remote = client
			logrus.WithFields(logrus.Fields{
				"url":     cfg.ModelConfig.BaseURL,
				"timeout": cfg.ModelConfig.Timeout,
			}).Info("remote model enabled")
		case errors.Is(err, ml.ErrDisabled):
			logrus.Info("remote model not configured; scoring with rule engine only")
		default:
			return nil, fmt.Errorf("model client: %w", err)
		}
	}

	catalogPath := strings.TrimSpace(cfg.CatalogPath)
	if catalogPath == "" {
		catalogPath = filepath.Join("internal", "catalog", "products.json")
	}

	server := &Server{
		db:             db,
		catalogPath:    catalogPath,
		catalog:        catalog.NewService(db),
		rules:          rules,
		remote:         remote,
		predictor:      ml.WithFallback(remote, ml.Rules(rules)),
		allowedOrigins: cfg.AllowedOrigins,
		runNotifier:    NewRunNotifier(),
	}

	if count := server.catalog.Count(); count == 0 {
		if imported, err := server.catalog.ImportFile(catalogPath); err != nil {
			logrus.WithError(err).WithField("path", catalogPath).Warn("seed catalog")
		} else {
			logrus.WithFields(logrus.Fields{
				"path":     catalogPath,
				"products": imported,
			}).Info("seeded product catalog")
		}
	}

	return server, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logrus.WithField("panic", recovered).Error("handler panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
	}))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/predict", s.handlePredict)
		api.GET("/products", s.handleListProducts)
		api.GET("/products/:sku", s.handleGetProduct)
		api.POST("/catalog/import", s.handleImportCatalog)
		api.POST("/score", s.handleScore)
		api.GET("/score/status", s.handleScoreStatus)
		api.DELETE("/score/:jobID", s.handleCancelScore)
		api.GET("/score/stream", s.handleScoreStream)
		api.GET("/assessments", s.handleListAssessments)
		api.GET("/assessments/summary", s.handleSummary)
		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	products, err := s.db.CountProducts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	categories, err := s.listCategories()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"catalog_path":  s.catalogPath,
		"products":      products,
		"categories":    categories,
		"model_enabled": s.remote != nil && s.remote.Enabled(),
	})
}

func (s *Server) handleListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize < 0 {
		pageSize = 0
	}
	offset := page * pageSize

	rows, total, err := s.db.ListProducts(offset, pageSize)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ProductFromModel(row))
	}
	c.JSON(http.StatusOK, ProductsResponse{Products: dtos, Total: total})
}

func (s *Server) handleGetProduct(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("sku is required"))
		return
	}

	product, err := s.db.GetProductBySKU(sku)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("product %s not found", sku))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, ProductFromModel(*product))
}

func (s *Server) handleImportCatalog(c *gin.Context) {
	fileHeader, err := c.FormFile("catalog")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.renderError(c, http.StatusBadRequest, errors.New("catalog json file is required"))
		} else {
			s.renderError(c, http.StatusBadRequest, err)
		}
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	defer src.Close()

	payload, err := io.ReadAll(src)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	products, err := catalog.Parse(payload, fileHeader.Filename)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if len(products) == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("no products detected in catalog"))
		return
	}

	stored, err := s.catalog.Replace(products)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"filename": fileHeader.Filename,
		"products": stored,
	}).Info("catalog imported")
	c.JSON(http.StatusOK, ImportResponse{Filename: fileHeader.Filename, Products: stored})
}

func (s *Server) handleScore(c *gin.Context) {
	var req ScoreRequest
	if c.Request.Body != nil {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
	}

	total, err := s.db.CountProducts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if total == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("no products to score"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob != nil {
		s.renderError(c, http.StatusConflict, errors.New("scoring already running"))
		return
	}

	job, err := s.startRun(req, total)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	response := StartRunResponse{
		JobID:     job.id,
		RequestID: job.requestID,
		Total:     job.total,
		StartedAt: job.startedAt,
	}
	c.JSON(http.StatusAccepted, response)
}

func (s *Server) handleCancelScore(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobID"))
	if jobID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("job id required"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob == nil {
		s.renderError(c, http.StatusNotFound, errors.New("no scoring run active"))
		return
	}
	if s.activeJob.id != jobID {
		s.renderError(c, http.StatusNotFound, errors.New("job not found"))
		return
	}

	s.activeJob.cancel()
	logrus.WithField("job", jobID).Info("scoring cancellation requested")
	s.runNotifier.Broadcast(RunEvent{
		Type:      "progress",
		JobID:     s.activeJob.id,
		Total:     s.activeJob.total,
		Processed: 0,
		Message:   "cancellation requested",
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) handleScoreStatus(c *gin.Context) {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	status := s.runNotifier.LastStatus()

	resp := RunStatusResponse{
		Running: job != nil,
	}

	if job != nil {
		resp.JobID = job.id
		resp.RequestID = job.requestID
		resp.Total = job.total
	}

	if status != nil {
		resp.State = status.Type
		resp.Message = status.Message
		if status.Processed != 0 {
			resp.Processed = status.Processed
		}
		if status.Total != 0 {
			resp.Total = status.Total
		}
		if status.Assessment != nil {
			copyAssessment := *status.Assessment
			resp.LastAssessment = &copyAssessment
		}
	}

	if job == nil && status == nil {
		latest, err := s.db.LatestRunRequest()
		if err != nil {
			s.renderError(c, http.StatusInternalServerError, err)
			return
		}
		if latest != nil {
			resp.JobID = latest.JobID
			resp.RequestID = latest.ID
			resp.State = latest.Status
			resp.Message = latest.Message
			resp.Processed = latest.Processed
			resp.Total = int64(latest.Total)
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScoreStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.runNotifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("scoring websocket connected")
	defer s.runNotifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("scoring websocket closed")
			} else {
				logrus.WithError(err).Warn("scoring websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleListAssessments(c *gin.Context) {
	query := strings.TrimSpace(firstNonEmpty(c.Query("q"), c.Query("query")))
	level := strings.TrimSpace(c.Query("level"))
	category := strings.TrimSpace(c.Query("category"))
	minScore, _ := strconv.Atoi(firstNonEmpty(c.Query("minScore"), c.Query("min_score")))
	sortKey := strings.TrimSpace(c.Query("sort"))

	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := page * pageSize

	rows, total, err := s.db.ListAssessments(store.AssessmentQuery{
		Query:    query,
		Level:    level,
		Category: category,
		MinScore: minScore,
		Sort:     sortKey,
		Offset:   offset,
		Limit:    pageSize,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]AssessmentDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, AssessmentsResponse{Items: dtos, Total: total})
}

func (s *Server) handleSummary(c *gin.Context) {
	products, err := s.db.CountProducts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	assessed, err := s.db.CountAssessments()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	counts, err := s.db.AssessmentLevelCounts()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	levels := map[string]int64{
		string(scoring.LevelLow):    0,
		string(scoring.LevelMedium): 0,
		string(scoring.LevelHigh):   0,
	}
	for level, count := range counts {
		levels[level] = count
	}

	c.JSON(http.StatusOK, SummaryResponse{
		Products: products,
		Assessed: assessed,
		Levels:   levels,
	})
}

func (s *Server) handleExportCSV(c *gin.Context) {
	rows, _, err := s.db.ListAssessments(store.AssessmentQuery{Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=inventory-risk-export.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"sku", "name", "category", "stock_amount", "weekly_sales", "product_age_days", "rating", "return_rate", "rule_score", "risk", "explanations", "processing_time_ms"}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range rows {
		dto := FromModel(row)
		line := []string{
			dto.SKU,
			dto.Name,
			dto.Category,
			formatFloat(dto.StockAmount),
			formatFloat(dto.WeeklySales),
			formatFloat(dto.ProductAgeDays),
			formatFloat(dto.Rating),
			formatFloat(dto.ReturnRate),
			strconv.Itoa(dto.RuleScore),
			dto.Risk,
			strings.Join(dto.Explanations, "|"),
			strconv.FormatInt(dto.ProcessingTimeMs, 10),
		}
		if err := writer.Write(line); err != nil {
			return
		}
	}
	writer.Flush()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	rows, _, err := s.db.ListAssessments(store.AssessmentQuery{Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]AssessmentDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=inventory-risk-export.json")
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) listCategories() ([]string, error) {
	rows, _, err := s.db.ListProducts(0, 0)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		category := strings.TrimSpace(row.Category)
		if category == "" {
			continue
		}
		set[category] = struct{}{}
	}
	categories := make([]string, 0, len(set))
	for category := range set {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
