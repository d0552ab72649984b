package api

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inventory-risk-radar/backend/internal/scoring"
	"inventory-risk-radar/backend/internal/store"
	"inventory-risk-radar/backend/internal/util"
)

const runThrottle = 500 * time.Millisecond

// scoringJob tracks the state of a running catalog scoring pass.
type scoringJob struct {
	id        string
	cancel    context.CancelFunc
	startedAt time.Time
	total     int64
	requestID uint
}

type productResult struct {
	Assessment    store.Assessment
	ModelDuration time.Duration
	TotalDuration time.Duration
	Err           error
}

// startRun launches a new asynchronous scoring run. The caller must hold
// s.jobMu prior to invoking this function.
func (s *Server) startRun(req ScoreRequest, total int64) (*scoringJob, error) {
	if s.activeJob != nil {
		return nil, errors.New("scoring run already active")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &scoringJob{
		id:        uuid.NewString(),
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		total:     total,
	}

	request, err := s.db.CreateRunRequest(runType(req), "running", job.id, int(total))
	if err != nil {
		job.cancel()
		return nil, fmt.Errorf("create run request: %w", err)
	}
	job.requestID = request.ID

	s.activeJob = job
	go s.runScoring(ctx, job, req)
	return job, nil
}

func runType(req ScoreRequest) string {
	switch {
	case req.Force:
		return "rescore"
	case req.Resume:
		return "resume"
	default:
		return "score"
	}
}

func (s *Server) runScoring(ctx context.Context, job *scoringJob, req ScoreRequest) {
	finishStatus := "completed"
	var finishErr error
	totalProcessed := 0

	defer func() {
		if job.requestID != 0 {
			status := finishStatus
			if finishErr != nil && status == "completed" {
				status = "failed"
			}
			if err := s.db.UpdateRunRequest(job.requestID, status); err != nil {
				logrus.WithError(err).WithField("job", job.id).Warn("update run request")
			}
			message := fmt.Sprintf("%d/%d products scored", totalProcessed, job.total)
			if err := s.db.UpdateRunProgress(job.requestID, totalProcessed, message); err != nil {
				logrus.WithError(err).WithField("job", job.id).Warn("persist run progress")
			}
		}
		s.jobMu.Lock()
		s.activeJob = nil
		s.jobMu.Unlock()
	}()

	if req.Force {
		if err := s.db.ClearAssessments(); err != nil {
			finishStatus = "failed"
			finishErr = err
			s.runNotifier.Broadcast(RunEvent{
				Type:    "error",
				JobID:   job.id,
				Message: fmt.Sprintf("clear assessments: %v", err),
			})
			logrus.WithError(err).Error("clear assessments")
			return
		}
	}

	// existing is populated once here and never written afterwards; the
	// producer goroutine reads it without locking.
	skipExisting := req.Resume && !req.Force
	existing := make(map[string]struct{})
	if skipExisting {
		skus, err := s.db.AssessedSKUs()
		if err != nil {
			finishStatus = "failed"
			finishErr = err
			s.runNotifier.Broadcast(RunEvent{
				Type:    "error",
				JobID:   job.id,
				Message: fmt.Sprintf("load existing assessments: %v", err),
			})
			logrus.WithError(err).Error("load existing assessments")
			return
		}
		for _, sku := range skus {
			if key := strings.TrimSpace(sku); key != "" {
				existing[key] = struct{}{}
			}
		}
		totalProcessed = len(existing)
	}

	logrus.WithFields(logrus.Fields{
		"job":       job.id,
		"total":     job.total,
		"processed": totalProcessed,
		"resume":    req.Resume,
		"force":     req.Force,
	}).Info("scoring run started")

	s.runNotifier.Broadcast(RunEvent{
		Type:      "started",
		JobID:     job.id,
		Total:     job.total,
		Processed: totalProcessed,
		Message:   "scoring started",
	})

	workerCount := determineWorkerCount()
	logrus.WithFields(logrus.Fields{
		"job":     job.id,
		"workers": workerCount,
	}).Info("scoring worker pool configured")

	const chunkSize = 500

	taskCh := make(chan store.Product, workerCount*4)
	resultCh := make(chan productResult, workerCount*4)
	errCh := make(chan error, 1)

	var (
		lastEmit     time.Time
		hasPending   bool
		pendingEvent RunEvent
	)

	flush := func(force bool) {
		if !hasPending {
			return
		}
		if !force && !lastEmit.IsZero() && time.Since(lastEmit) < runThrottle {
			return
		}
		ev := pendingEvent
		s.runNotifier.Broadcast(ev)
		lastEmit = time.Now()
		message := fmt.Sprintf("%d/%d products scored", ev.Processed, job.total)
		if err := s.db.UpdateRunProgress(job.requestID, ev.Processed, message); err != nil {
			logrus.WithError(err).WithField("job", job.id).Warn("persist run progress")
		}
		hasPending = false
	}

	var workerWG sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for task := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				res := s.assessProduct(ctx, task)
				select {
				case resultCh <- res:
				case <-ctx.Done():
					return
				}
				if res.Err != nil {
					return
				}
			}
		}()
	}

	go func() {
		workerWG.Wait()
		close(resultCh)
	}()

	go func() {
		defer close(taskCh)
		defer close(errCh)
		offset := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			rows, _, err := s.db.ListProducts(offset, chunkSize)
			if err != nil {
				errCh <- fmt.Errorf("list products: %w", err)
				return
			}
			if len(rows) == 0 {
				return
			}
			for _, row := range rows {
				if skipExisting {
					if _, ok := existing[row.SKU]; ok {
						continue
					}
				}
				select {
				case taskCh <- row:
				case <-ctx.Done():
					return
				}
			}
			offset += len(rows)
			if len(rows) < chunkSize {
				return
			}
		}
	}()

	activeResultCh := resultCh
	activeErrCh := errCh

	for activeResultCh != nil || activeErrCh != nil {
		select {
		case <-ctx.Done():
			flush(true)
			finishStatus = "cancelled"
			s.runNotifier.Broadcast(RunEvent{
				Type:      "cancelled",
				JobID:     job.id,
				Total:     job.total,
				Processed: totalProcessed,
				Message:   "scoring cancelled",
			})
			logrus.WithField("job", job.id).Warn("scoring run cancelled")
			return
		case err, ok := <-activeErrCh:
			if !ok {
				activeErrCh = nil
				continue
			}
			if err != nil {
				flush(true)
				finishStatus = "failed"
				finishErr = err
				s.runNotifier.Broadcast(RunEvent{
					Type:    "error",
					JobID:   job.id,
					Message: err.Error(),
				})
				logrus.WithError(err).Error("list products")
				job.cancel()
				return
			}
		case res, ok := <-activeResultCh:
			if !ok {
				activeResultCh = nil
				continue
			}
			if res.Err != nil {
				if errors.Is(res.Err, context.Canceled) {
					// A worker ran into the cancelled context; keep
					// draining so the final status reflects the cancel.
					continue
				}
				flush(true)
				finishStatus = "failed"
				finishErr = res.Err
				s.runNotifier.Broadcast(RunEvent{
					Type:    "error",
					JobID:   job.id,
					Message: fmt.Sprintf("assess product: %v", res.Err),
				})
				logrus.WithError(res.Err).Error("assess product")
				job.cancel()
				return
			}

			saveStart := time.Now()
			assessment := res.Assessment
			if err := s.db.SaveAssessment(&assessment); err != nil {
				flush(true)
				finishStatus = "failed"
				finishErr = err
				s.runNotifier.Broadcast(RunEvent{
					Type:    "error",
					JobID:   job.id,
					Message: fmt.Sprintf("save assessment: %v", err),
				})
				logrus.WithError(err).Error("save assessment")
				job.cancel()
				return
			}
			saveDuration := time.Since(saveStart)

			dto := FromModel(assessment)
			totalProcessed++

			pendingEvent = RunEvent{
				Type:       "assessment",
				JobID:      job.id,
				Total:      job.total,
				Processed:  totalProcessed,
				Assessment: &dto,
			}
			hasPending = true
			logrus.WithFields(logrus.Fields{
				"job":      job.id,
				"sku":      assessment.SKU,
				"risk":     assessment.RiskLevel,
				"model_ms": res.ModelDuration.Milliseconds(),
				"save_ms":  saveDuration.Milliseconds(),
				"total_ms": (res.TotalDuration + saveDuration).Milliseconds(),
			}).Debug("assessment timings")
			flush(false)
		}
	}

	flush(true)

	// A cancel can land after both channels have drained; the run still
	// counts as cancelled, not completed.
	if ctx.Err() != nil {
		finishStatus = "cancelled"
		s.runNotifier.Broadcast(RunEvent{
			Type:      "cancelled",
			JobID:     job.id,
			Total:     job.total,
			Processed: totalProcessed,
			Message:   "scoring cancelled",
		})
		logrus.WithField("job", job.id).Warn("scoring run cancelled")
		return
	}
	job.cancel()

	duration := time.Since(job.startedAt).Round(time.Millisecond)
	s.runNotifier.Broadcast(RunEvent{
		Type:      "complete",
		JobID:     job.id,
		Total:     job.total,
		Processed: totalProcessed,
		Message:   fmt.Sprintf("scoring finished in %s", duration),
	})
	logrus.WithFields(logrus.Fields{
		"job":       job.id,
		"processed": totalProcessed,
		"duration":  duration,
	}).Info("scoring run completed")
}

func determineWorkerCount() int {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 12 {
		workers = 12
	}
	return workers
}

// assessProduct scores one product. The rule score and explanations always
// come from the rule table; the stored level prefers the remote model when
// the predictor reaches it.
func (s *Server) assessProduct(ctx context.Context, product store.Product) productResult {
	result := productResult{}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	timer := util.StartTimer()
	features := product.Features()
	score := s.rules.Score(features)
	level := scoring.Classify(score)

	modelStart := time.Now()
	labels, err := s.predictor.Predict(ctx, []scoring.FeatureRecord{features})
	modelDuration := time.Since(modelStart)
	if err == nil && len(labels) == 1 {
		level = labels[0]
	}

	assessment := store.Assessment{
		SKU:              product.SKU,
		Name:             product.Name,
		Category:         product.Category,
		StockAmount:      product.StockAmount,
		WeeklySales:      product.WeeklySales,
		ProductAgeDays:   product.ProductAgeDays,
		Rating:           product.Rating,
		ReturnRate:       product.ReturnRate,
		RuleScore:        score,
		RiskLevel:        string(level),
		ProcessingTimeMs: timer.ElapsedMs(),
	}
	assessment.SetExplanations(s.rules.Explain(features))

	result.Assessment = assessment
	result.ModelDuration = modelDuration
	result.TotalDuration = timer.Elapsed()
	return result
}
