package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"inventory-risk-radar/backend/internal/api"
	"inventory-risk-radar/backend/internal/ml"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	modelCfg := ml.Config{
		BaseURL: os.Getenv("MODEL_URL"),
	}
	if timeout := os.Getenv("MODEL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			modelCfg.Timeout = d
		}
	}

	var allowedOrigins []string
	if origins := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	cfg := api.Config{
		DBPath:         filepath.Join(dataDir, "inventory-risk.db"),
		CatalogPath:    filepath.Join(baseDir, "internal", "catalog", "products.json"),
		AllowedOrigins: allowedOrigins,
		SilentDB:       strings.EqualFold(strings.TrimSpace(os.Getenv("SILENT_DB")), "true"),
		ModelConfig:    modelCfg,
		DisableModel:   strings.EqualFold(strings.TrimSpace(os.Getenv("DISABLE_MODEL")), "true"),
	}

	if override := strings.TrimSpace(os.Getenv("RISK_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	if override := strings.TrimSpace(os.Getenv("CATALOG_PATH")); override != "" {
		cfg.CatalogPath = override
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5005"
	}

	logrus.Infof("starting inventory-risk-radar backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
