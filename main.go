package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"immojagd/api"
	"immojagd/config"
	"immojagd/geo"
	"immojagd/httputil"
	"immojagd/logging"
	"immojagd/models"
	"immojagd/pagination"
	"immojagd/scheduler"
	"immojagd/scraper"
	"immojagd/services"
	"immojagd/storage"
	"immojagd/transport"
	"immojagd/workers"
)

var (
	scrapeNow  = flag.Bool("scrape", false, "Run one full scrape and exit")
	quickCheck = flag.Bool("quick", false, "Run one quick check and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("immojagd.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting immojagd...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s): %d categories", site.Name, id, len(site.Categories))
	}

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Println("Connected to Postgres")

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	clients := httputil.NewClients(cfg.Proxy.URL)
	fetcher := transport.NewFetcher(clients.Scraping,
		time.Duration(cfg.Scraper.DelayMS)*time.Millisecond,
		time.Duration(cfg.Scraper.JitterMS)*time.Millisecond)

	baselines := services.NewBaselineService(pgStore)
	baselines.Warm(ctx)

	scorer := services.NewScorer(baselines, nil)
	listingService := services.NewListingService(pgStore, scorer)
	tracker := pagination.NewTracker(sqliteStore, cfg.Scraper.BaselinePages, cfg.Scraper.MaxPages)
	geoFilter := geo.NewFilter(cfg.Regions)

	events := scraper.Events{
		OnListingFound: func(l *models.Listing, result *services.ProcessResult) {
			if result.IsNew {
				log.Printf("LEAD %s: %s, €%d (%s, score %d)", l.Platform, l.Title, l.Price, l.Region, l.Score)
			} else {
				log.Printf("CHANGE %s: %s (%s)", l.Platform, l.Title, result.ChangeKind)
				if result.PriceDropPercent > 0 {
					log.Printf("PRICE DROP %.1f%%: %s", result.PriceDropPercent, l.SourceURL)
				}
			}
			if cfg.S3.Enabled() && len(l.ImageURLs) > 0 {
				if err := pgStore.EnqueueListingPhotos(ctx, l.ID.String(), l.ImageURLs); err != nil {
					log.Printf("Warning: enqueue photos for %s: %v", l.SourceURL, err)
				}
			}
		},
		OnPhoneFound: func(url, phone string) {
			log.Printf("PHONE %s: %s", phone, url)
		},
	}

	orchestrator, err := scraper.NewOrchestrator(cfg, fetcher, tracker, listingService, baselines, geoFilter, sqliteStore, events)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	// One-shot modes
	if *scrapeNow || *quickCheck {
		kind := models.CycleFullScrape
		if *quickCheck {
			kind = models.CycleQuickCheck
		}
		if err := orchestrator.RunCycle(ctx, kind, scraper.RunOptions{Keyword: cfg.Scraper.Keyword}); err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Println("Scrape complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, orchestrator, sqliteStore)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	if cfg.S3.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Printf("Warning: S3 disabled: %v", err)
		} else {
			imageWorker := workers.NewImageWorker(pgStore, uploader, clients.Media)
			go imageWorker.Run(ctx, 20, 2*time.Minute)
			log.Println("Image worker started")
		}
	}

	if cfg.API.ListenAddr != "" {
		server := api.NewServer(cfg.API.ListenAddr, sched, sqliteStore)
		server.Start()
		defer server.Close()
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}
