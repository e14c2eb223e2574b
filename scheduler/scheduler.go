// Package scheduler drives the two scrape tiers: a frequent shallow quick
// check and an infrequent deep full scrape. Mutual exclusion lives in the
// orchestrator's busy flag; a quick check that collides with a running full
// scrape is skipped outright, never queued.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"immojagd/config"
	"immojagd/models"
	"immojagd/scraper"
	"immojagd/storage"
)

// startupRetries bounds the immediate full scrape on process start: a
// restarted daemon should do useful work right away instead of waiting a
// full interval, but a dead network should not crash-loop it.
const startupRetries = 3

var startupBackoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        *storage.SQLiteStore

	cron        *cron.Cron
	cronEntry   cron.EntryID
	fullTicker  *time.Ticker
	quickTicker *time.Ticker
	stopCh      chan struct{}

	// nextFull is rearmed by fullLoop while Status serves it from the HTTP
	// handler goroutine. On the cron schedule the entry itself is consulted
	// instead, so the value stays current after every firing.
	mu       sync.Mutex
	nextFull time.Time
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// Start runs one immediate full scrape (with bounded retry and growing
// backoff), then arms both timers and the command poller.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runStartupScrape(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Full scrape on cron: %s", s.cfg.Scheduler.Cron)
		entryID, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runFull(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cronEntry = entryID
		s.cron.Start()
	} else {
		log.Printf("Full scrape every %s", s.cfg.Scheduler.FullScrapeInterval)
		s.fullTicker = time.NewTicker(s.cfg.Scheduler.FullScrapeInterval)
		s.setNextFull(time.Now().Add(s.cfg.Scheduler.FullScrapeInterval))
		go s.fullLoop(ctx)
	}

	log.Printf("Quick check every %s", s.cfg.Scheduler.QuickCheckInterval)
	s.quickTicker = time.NewTicker(s.cfg.Scheduler.QuickCheckInterval)
	go s.quickLoop(ctx)

	go s.pollCommands(ctx)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.fullTicker != nil {
		s.fullTicker.Stop()
	}
	if s.quickTicker != nil {
		s.quickTicker.Stop()
	}
	close(s.stopCh)
	s.orchestrator.Stop()
}

func (s *Scheduler) runStartupScrape(ctx context.Context) {
	for attempt := 1; attempt <= startupRetries; attempt++ {
		err := s.orchestrator.RunCycle(ctx, models.CycleFullScrape, s.defaultOptions())
		if err == nil {
			return
		}
		log.Printf("Startup scrape failed (attempt %d/%d): %v", attempt, startupRetries, err)
		if attempt == startupRetries {
			return
		}
		backoff := startupBackoff[attempt-1]
		log.Printf("Retrying startup scrape in %s", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) fullLoop(ctx context.Context) {
	for {
		select {
		case <-s.fullTicker.C:
			s.setNextFull(time.Now().Add(s.cfg.Scheduler.FullScrapeInterval))
			s.runFull(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) quickLoop(ctx context.Context) {
	for {
		select {
		case <-s.quickTicker.C:
			err := s.orchestrator.RunCycle(ctx, models.CycleQuickCheck, s.defaultOptions())
			if err == scraper.ErrBusy {
				log.Println("Quick check skipped: full scrape in progress")
			} else if err != nil {
				log.Printf("Quick check error: %v", err)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runFull(ctx context.Context) {
	err := s.orchestrator.RunCycle(ctx, models.CycleFullScrape, s.defaultOptions())
	if err == scraper.ErrBusy {
		log.Println("Full scrape skipped: another cycle in progress")
	} else if err != nil {
		log.Printf("Full scrape error: %v", err)
	}
}

func (s *Scheduler) setNextFull(t time.Time) {
	s.mu.Lock()
	s.nextFull = t
	s.mu.Unlock()
}

// nextFullAt reports when the next full scrape fires. Cron entries are read
// through cron's own snapshot, which is safe while the cron is running.
func (s *Scheduler) nextFullAt() time.Time {
	if s.cronEntry != 0 {
		return s.cron.Entry(s.cronEntry).Next
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFull
}

func (s *Scheduler) defaultOptions() scraper.RunOptions {
	return scraper.RunOptions{Keyword: s.cfg.Scraper.Keyword}
}

// TriggerNow runs a full scrape out of schedule (control surface).
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.orchestrator.RunCycle(ctx, models.CycleFullScrape, s.defaultOptions())
}

// Status is the externally visible scheduler state.
type Status struct {
	Running        bool              `json:"running"`
	Paused         bool              `json:"paused"`
	CycleNumber    int               `json:"cycle_number"`
	NextFullScrape time.Time         `json:"next_full_scrape"`
	Platforms      []string          `json:"platforms"`
	Cursors        map[string]string `json:"cursors"`
}

func (s *Scheduler) Status() Status {
	return Status{
		Running:        s.orchestrator.IsBusy(),
		Paused:         s.orchestrator.IsPaused(),
		CycleNumber:    s.orchestrator.LastCycleNumber(),
		NextFullScrape: s.nextFullAt(),
		Platforms:      s.orchestrator.PlatformIDs(),
		Cursors:        s.orchestrator.Cursors(),
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	var params models.CommandParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return fmt.Errorf("parse command params: %w", err)
		}
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		return s.TriggerNow(ctx)
	case models.CmdScrapePlatform:
		opts := s.defaultOptions()
		if params.Platform != "" {
			opts.Platforms = []string{params.Platform}
		}
		if params.Category != "" {
			opts.Categories = []string{params.Category}
		}
		if params.MaxPages > 0 {
			opts.MaxPages = params.MaxPages
		}
		if params.Keyword != "" {
			opts.Keyword = params.Keyword
		}
		return s.orchestrator.RunCycle(ctx, models.CycleFullScrape, opts)
	case models.CmdPause:
		s.orchestrator.Pause()
		log.Println("Scraper paused")
	case models.CmdResume:
		s.orchestrator.Resume()
		log.Println("Scraper resumed")
	}

	return nil
}
