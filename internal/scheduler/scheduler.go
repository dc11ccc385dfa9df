package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tenantwise/dbgovernor/internal/calibration"
	"github.com/tenantwise/dbgovernor/internal/repository"
)

// Runs the governor's periodic maintenance: a monthly audit of
// billing periods still waiting for an invoice, and daily pruning of
// aged transition audit records.
type Scheduler struct {
	cron          *cron.Cron
	calibrator    *calibration.Calibrator
	transitions   *repository.TransitionRepository
	retentionDays int
}

func New(calibrator *calibration.Calibrator, transitions *repository.TransitionRepository, retentionDays int) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		calibrator:    calibrator,
		transitions:   transitions,
		retentionDays: retentionDays,
	}
}

func (s *Scheduler) Start() error {
	// Second day of the month, after the provider posts the invoice
	if _, err := s.cron.AddFunc("0 6 2 * *", s.auditCalibration); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc("0 3 * * *", s.pruneTransitions); err != nil {
		return err
	}

	s.cron.Start()
	log.Println("Scheduler started: calibration audit (monthly), transition pruning (daily)")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Calibration itself needs the external invoice total, which arrives
// through the operator API. The job only surfaces periods an operator
// still has to close.
func (s *Scheduler) auditCalibration() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	missing, err := s.calibrator.UncalibratedPeriods(ctx, time.Now())
	if err != nil {
		log.Printf("Calibration audit failed: %v", err)
		return
	}

	if len(missing) == 0 {
		log.Println("Calibration audit: all closed periods calibrated")
		return
	}

	log.Printf("Calibration audit: %d period(s) awaiting an invoice total: %v", len(missing), missing)
}

func (s *Scheduler) pruneTransitions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	pruned, err := s.transitions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Transition record pruning failed: %v", err)
		return
	}

	if pruned > 0 {
		log.Printf("Pruned %d transition records older than %s", pruned, cutoff.Format("2006-01-02"))
	}
}
