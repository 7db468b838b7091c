package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avigest/granja/internal/domain/articles"
	"github.com/avigest/granja/internal/domain/flocks"
	"github.com/avigest/granja/internal/infra/notify"
)

// Scheduler runs the daily alert sweep: flocks with a vaccination coming up
// and stock-controlled articles at or under their minimum.
type Scheduler struct {
	cron     *cron.Cron
	articles *articles.Repo
	flocks   *flocks.Repo
	notifier notify.Notifier
	log      *slog.Logger

	vaccinationWindow time.Duration
}

func New(arts *articles.Repo, fl *flocks.Repo, notifier notify.Notifier, log *slog.Logger, vaccinationWindowDays int) *Scheduler {
	return &Scheduler{
		cron:              cron.New(),
		articles:          arts,
		flocks:            fl,
		notifier:          notifier,
		log:               log,
		vaccinationWindow: time.Duration(vaccinationWindowDays) * 24 * time.Hour,
	}
}

func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() { s.cron.Stop() }

// Sweep is exported so an operator can trigger it out of schedule.
func (s *Scheduler) Sweep(ctx context.Context) {
	var lines []string

	due, err := s.flocks.ListVaccinationsDue(ctx, s.vaccinationWindow)
	if err != nil {
		s.log.Error("vaccination sweep failed", "err", err)
	}
	for _, f := range due {
		lines = append(lines, fmt.Sprintf("💉 Lote %d (%s): vacuna antes del %s",
			f.ID, f.Breed, f.NextVaccinationDate.Format("2006-01-02")))
	}

	low, err := s.articles.ListBelowThreshold(ctx)
	if err != nil {
		s.log.Error("low stock sweep failed", "err", err)
	}
	for _, a := range low {
		lines = append(lines, fmt.Sprintf("📉 %s: %s %s (mínimo %s)",
			a.Name, a.Balance.StringFixed(2), a.Unit, a.MinThreshold.StringFixed(2)))
	}

	if len(lines) == 0 {
		s.log.Debug("alert sweep clean")
		return
	}
	s.log.Info("alert sweep", "alerts", len(lines))
	if s.notifier != nil {
		s.notifier.Alert(strings.Join(lines, "\n"))
	}
}
