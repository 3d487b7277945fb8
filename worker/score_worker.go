package worker

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
)

// ScoreWorker recomputes lead scores in the background. Terminal attempt
// transitions enqueue the lead; enqueueing never blocks the webhook path, a
// saturated buffer drops the job instead.
type ScoreWorker struct {
	db     *gorm.DB
	logger *logrus.Logger
	jobs   chan uint
}

func NewScoreWorker(db *gorm.DB, logger *logrus.Logger) *ScoreWorker {
	return &ScoreWorker{
		db:     db,
		logger: logger,
		jobs:   make(chan uint, 256),
	}
}

// Enqueue schedules a recompute for the lead. Fire-and-forget: a full buffer
// drops the job with a log line rather than stalling the caller.
func (w *ScoreWorker) Enqueue(leadID uint) {
	select {
	case w.jobs <- leadID:
	default:
		w.logger.WithField("lead_id", leadID).Warn("score queue full, dropping recompute")
	}
}

func (w *ScoreWorker) Start(ctx context.Context) {
	w.logger.Info("Starting score worker...")
	for {
		select {
		case leadID := <-w.jobs:
			if err := w.recompute(leadID); err != nil {
				w.logger.WithError(err).WithField("lead_id", leadID).Error("score recompute failed")
			}
		case <-ctx.Done():
			w.logger.Info("Stopping score worker...")
			return
		}
	}
}

// recompute derives the score from the lead's attempt history. Suppressed
// leads always score zero.
func (w *ScoreWorker) recompute(leadID uint) error {
	var lead models.Lead
	if err := w.db.First(&lead, leadID).Error; err != nil {
		return err
	}

	if lead.Status == models.LeadStatusDoNotContact {
		return w.db.Model(&lead).Update("score", 0).Error
	}

	type statusCount struct {
		Status models.AttemptStatus
		Count  int
	}
	var counts []statusCount
	err := w.db.Model(&models.ContactAttempt{}).
		Select("status, count(*) as count").
		Where("lead_id = ?", leadID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return err
	}

	score := 0
	for _, c := range counts {
		switch c.Status {
		case models.AttemptStatusSuccess:
			score += 10 * c.Count
		case models.AttemptStatusFailed:
			score -= 5 * c.Count
		case models.AttemptStatusNoAnswer:
			score -= 2 * c.Count
		}
	}
	if score < 0 {
		score = 0
	}

	return w.db.Model(&lead).Update("score", score).Error
}
