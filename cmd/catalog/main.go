package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"inventory-risk-radar/backend/internal/catalog"
	"inventory-risk-radar/backend/internal/scoring"
	"inventory-risk-radar/backend/internal/store"
)

func main() {
	var (
		dbPath     = flag.String("db", filepath.FromSlash("backend/data/inventory-risk.db"), "Path to SQLite database")
		filePaths  multiFlag
		urls       multiFlag
		runScore   = flag.Bool("score", false, "Score the stored catalog with the rule engine and print level totals")
		outputPath = flag.String("output", "", "Optional path to write scored assessments as JSON")
		silent     = flag.Bool("silent", true, "Silence database logging")
	)
	flag.Var(&filePaths, "file", "Catalog JSON file (repeatable)")
	flag.Var(&urls, "url", "Catalog JSON URL to download before import (repeatable)")
	flag.Parse()

	db, err := store.Open(*dbPath, *silent)
	if err != nil {
		logrus.Fatalf("open database: %v", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}()

	paths := make([]string, 0, len(filePaths)+len(urls))
	seen := make(map[string]struct{})
	addFile := func(path string) {
		cleaned := filepath.Clean(path)
		if cleaned == "" || cleaned == "." {
			return
		}
		if _, ok := seen[cleaned]; ok {
			return
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}

	for _, p := range filePaths {
		addFile(p)
	}
	for _, u := range urls {
		dest, err := downloadCatalogFile(u)
		if err != nil {
			logrus.Fatalf("download %s: %v", u, err)
		}
		defer os.Remove(dest)
		addFile(dest)
	}

	svc := catalog.NewService(db)

	if len(paths) > 0 {
		start := time.Now()
		imported, err := svc.ImportFiles(paths)
		if err != nil {
			logrus.Fatalf("import catalog: %v", err)
		}
		logrus.WithFields(logrus.Fields{
			"files":    len(paths),
			"products": imported,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("catalog import complete")
	}

	if !*runScore {
		if len(paths) == 0 {
			logrus.Warn("nothing to do: provide -file, -url, or -score")
		}
		if *outputPath != "" {
			logrus.Warn("-output requires -score")
		}
		return
	}

	rules := scoring.NewRuleModel()

	const chunkSize = 500
	counts := make(map[string]int64)
	rows := make([]exportRow, 0)
	scored := 0
	offset := 0
	start := time.Now()
	for {
		products, _, err := db.ListProducts(offset, chunkSize)
		if err != nil {
			logrus.Fatalf("list products: %v", err)
		}
		if len(products) == 0 {
			break
		}
		for _, product := range products {
			features := product.Features()
			score := rules.Score(features)
			level := scoring.Classify(score)
			reasons := rules.Explain(features)

			assessment := store.Assessment{
				SKU:            product.SKU,
				Name:           product.Name,
				Category:       product.Category,
				StockAmount:    product.StockAmount,
				WeeklySales:    product.WeeklySales,
				ProductAgeDays: product.ProductAgeDays,
				Rating:         product.Rating,
				ReturnRate:     product.ReturnRate,
				RuleScore:      score,
				RiskLevel:      string(level),
			}
			assessment.SetExplanations(reasons)
			if err := db.SaveAssessment(&assessment); err != nil {
				logrus.Fatalf("save assessment %s: %v", product.SKU, err)
			}

			counts[string(level)]++
			scored++
			if *outputPath != "" {
				rows = append(rows, exportRow{
					SKU:          product.SKU,
					Name:         product.Name,
					Category:     product.Category,
					RuleScore:    score,
					Risk:         string(level),
					Explanations: reasons,
				})
			}
		}
		offset += len(products)
		if len(products) < chunkSize {
			break
		}
	}

	logrus.WithFields(logrus.Fields{
		"products": scored,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("rule scoring pass complete")

	for _, level := range []scoring.Level{scoring.LevelLow, scoring.LevelMedium, scoring.LevelHigh} {
		fmt.Printf("%-8s %d\n", level, counts[string(level)])
	}
	fmt.Printf("%-8s %d\n", "total", scored)

	if *outputPath != "" {
		if err := writeAssessments(*outputPath, rows); err != nil {
			logrus.Fatalf("write assessments: %v", err)
		}
		logrus.WithField("path", *outputPath).Info("assessments written to file")
	}
}

type exportRow struct {
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	RuleScore    int      `json:"rule_score"`
	Risk         string   `json:"risk"`
	Explanations []string `json:"explanations"`
}

func downloadCatalogFile(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("empty catalog url")
	}

	client := &http.Client{Timeout: 60 * time.Second}
	logrus.WithField("url", trimmed).Info("downloading catalog file")
	resp, err := client.Get(trimmed)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("download failed: %s", strings.TrimSpace(string(body)))
	}

	tmp, err := os.CreateTemp("", "catalog-*.json")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	fileInfo, statErr := tmp.Stat()
	size := int64(0)
	if statErr == nil {
		size = fileInfo.Size()
	}
	logrus.WithFields(logrus.Fields{
		"file": tmp.Name(),
		"size": size,
	}).Info("catalog file downloaded")
	return tmp.Name(), nil
}

func writeAssessments(path string, rows []exportRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		if !os.IsExist(err) {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
