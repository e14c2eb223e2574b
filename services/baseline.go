package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"immojagd/models"
)

// minBaselineSamples is the smallest sample set worth publishing a median
// for; below that, price-value scoring stays neutral.
const minBaselineSamples = 10

// BaselineService maintains the median €/m² per (region, category) from
// stored listings and serves it to the scorer from an in-memory cache.
type BaselineService struct {
	store BaselineStore

	mu    sync.RWMutex
	cache map[string]*models.PriceBaseline
}

func NewBaselineService(store BaselineStore) *BaselineService {
	return &BaselineService{
		store: store,
		cache: make(map[string]*models.PriceBaseline),
	}
}

func baselineKey(region models.Region, category models.Category) string {
	return string(region) + "/" + string(category)
}

// Baseline implements BaselineProvider from the cache; a miss is answered
// with nil (scorer stays neutral) and warmed on the next Refresh.
func (s *BaselineService) Baseline(region models.Region, category models.Category) *models.PriceBaseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[baselineKey(region, category)]
}

// Warm loads all persisted baselines into the cache at startup.
func (s *BaselineService) Warm(ctx context.Context) {
	for _, region := range []models.Region{models.RegionWien, models.RegionNiederoesterreich} {
		for _, category := range []models.Category{models.CategoryApartment, models.CategoryHouse, models.CategoryPlot} {
			b, err := s.store.GetPriceBaseline(ctx, region, category)
			if err != nil || b == nil {
				continue
			}
			s.mu.Lock()
			s.cache[baselineKey(region, category)] = b
			s.mu.Unlock()
		}
	}
}

// Refresh recomputes every baseline from the stored €/m² samples and
// persists the result. Run after each full-scrape cycle.
func (s *BaselineService) Refresh(ctx context.Context) error {
	var firstErr error

	for _, region := range []models.Region{models.RegionWien, models.RegionNiederoesterreich} {
		for _, category := range []models.Category{models.CategoryApartment, models.CategoryHouse, models.CategoryPlot} {
			if err := s.refreshOne(ctx, region, category); err != nil {
				log.Printf("baseline refresh %s/%s: %v", region, category, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	return firstErr
}

func (s *BaselineService) refreshOne(ctx context.Context, region models.Region, category models.Category) error {
	samples, err := s.store.ListPricePerArea(ctx, region, category)
	if err != nil {
		return fmt.Errorf("list samples: %w", err)
	}
	if len(samples) < minBaselineSamples {
		return nil
	}

	sort.Float64s(samples)
	median := samples[len(samples)/2]
	if len(samples)%2 == 0 {
		median = (samples[len(samples)/2-1] + samples[len(samples)/2]) / 2
	}

	baseline := &models.PriceBaseline{
		Region:      region,
		Category:    category,
		MedianPerM2: median,
		SampleCount: len(samples),
	}
	if err := s.store.UpsertPriceBaseline(ctx, baseline); err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}

	s.mu.Lock()
	s.cache[baselineKey(region, category)] = baseline
	s.mu.Unlock()
	return nil
}
