package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"immojagd/geo"
	"immojagd/models"
)

type Config struct {
	DatabaseURL string // Postgres, domain data
	DBPath      string // SQLite, operational data
	LogLevel    string
	Proxy       ProxyConfig
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	API         APIConfig
	S3          S3Config
	Sites       map[string]*SiteConfig
	Regions     map[models.Region]geo.RegionRules
}

type ProxyConfig struct {
	URL string
}

type SchedulerConfig struct {
	QuickCheckInterval time.Duration
	FullScrapeInterval time.Duration
	Cron               string // overrides FullScrapeInterval when set
}

type ScraperConfig struct {
	DelayMS       int // base delay after each request
	JitterMS      int // bounded random component, re-drawn per request
	BaselinePages int // pages walked on the first cycle of a category
	MaxPages      int // hard safety cap per category walk
	Keyword       string
}

type APIConfig struct {
	ListenAddr string // empty disables the control API
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether photo archival is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != ""
}

// SiteConfig describes one platform: its root, its category catalog and its
// pacing. Adding a category is a data change in config/sites/, not code.
type SiteConfig struct {
	ID         string              `yaml:"id"`
	Name       string              `yaml:"name"`
	RootURL    string              `yaml:"root_url"`
	Categories map[string]Category `yaml:"categories"`
}

type Category struct {
	URL      string `yaml:"url"`
	Region   string `yaml:"region"`
	Kind     string `yaml:"kind"` // apartment, house, plot
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "immojagd.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Scheduler: SchedulerConfig{
			QuickCheckInterval: getEnvDuration("QUICK_CHECK_INTERVAL", 15*time.Minute),
			FullScrapeInterval: getEnvDuration("FULL_SCRAPE_INTERVAL", 4*time.Hour),
			Cron:               os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			DelayMS:       getEnvInt("SCRAPE_DELAY_MS", 1500),
			JitterMS:      getEnvInt("SCRAPE_JITTER_MS", 2500),
			BaselinePages: getEnvInt("BASELINE_PAGES", 5),
			MaxPages:      getEnvInt("MAX_PAGES", 20),
			Keyword:       os.Getenv("SCRAPE_KEYWORD"),
		},
		API: APIConfig{
			ListenAddr: os.Getenv("API_LISTEN_ADDR"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "eu-central-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Sites: make(map[string]*SiteConfig),
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}
	if err := cfg.loadRegionRules(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSiteConfigs() error {
	configDir := "config/sites"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		// Unknown category metadata is a programmer error; fail at
		// startup, not mid-cycle.
		for key, cat := range site.Categories {
			if err := validateCategory(key, cat); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

func validateCategory(key string, cat Category) error {
	switch models.Category(cat.Kind) {
	case models.CategoryApartment, models.CategoryHouse, models.CategoryPlot:
	default:
		return fmt.Errorf("category %s: unknown kind %q", key, cat.Kind)
	}
	switch models.Region(cat.Region) {
	case models.RegionWien, models.RegionNiederoesterreich:
	default:
		return fmt.Errorf("category %s: unknown region %q", key, cat.Region)
	}
	if cat.URL == "" {
		return fmt.Errorf("category %s: missing url", key)
	}
	return nil
}

func (c *Config) loadRegionRules() error {
	data, err := os.ReadFile("config/regions.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			c.Regions = geo.DefaultRules()
			return nil
		}
		return err
	}

	var raw map[string]geo.RegionRules
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config/regions.yaml: %w", err)
	}

	c.Regions = make(map[models.Region]geo.RegionRules, len(raw))
	for name, rules := range raw {
		c.Regions[models.Region(name)] = rules
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
