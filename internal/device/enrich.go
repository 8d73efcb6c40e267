package device

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// System properties read for every connected observation.
const (
	PropSerial         = "ro.serialno"
	PropModel          = "ro.product.model"
	PropBrand          = "ro.product.brand"
	PropManufacturer   = "ro.product.manufacturer"
	PropAndroidVersion = "ro.build.version.release"
	PropSDKVersion     = "ro.build.version.sdk"
)

// EnrichmentProperties is the fixed fan-out of one enrichment.
var EnrichmentProperties = []string{
	PropSerial,
	PropModel,
	PropBrand,
	PropManufacturer,
	PropAndroidVersion,
	PropSDKVersion,
}

// DefaultMaxConcurrent caps adb invocations across one enrichment pass.
const DefaultMaxConcurrent = 16

// PropertyReader reads a single system property from a device.
type PropertyReader interface {
	GetProperty(ctx context.Context, deviceID, property string) (string, error)
}

// Enricher fills in identity and build information for connected
// observations. Individual lookup failures are logged and leave the field
// empty; enrichment itself never fails.
type Enricher struct {
	reader PropertyReader
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewEnricher creates an enricher allowing at most maxConcurrent property
// lookups in flight at once.
func NewEnricher(reader PropertyReader, maxConcurrent int, logger *slog.Logger) *Enricher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		reader: reader,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger.With("component", "enricher"),
	}
}

// EnrichAll enriches every observation concurrently. The result keeps the
// input order: each result is written back into its original slot.
func (e *Enricher) EnrichAll(ctx context.Context, observations []Observation) []Observation {
	results := make([]Observation, len(observations))
	copy(results, observations)

	var g errgroup.Group
	for i := range observations {
		if !observations[i].State.IsConnected() {
			continue
		}
		g.Go(func() error {
			results[i] = e.Enrich(ctx, observations[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Enrich reads the enrichment properties of a single observation.
func (e *Enricher) Enrich(ctx context.Context, obs Observation) Observation {
	if !obs.State.IsConnected() {
		return obs
	}

	props := e.fetch(ctx, obs.RawID)

	if v := props[PropSerial]; v != "" {
		obs.PersistentSerial = v
	}
	if v := props[PropModel]; v != "" {
		obs.Model = v
	}
	if v := props[PropBrand]; v != "" {
		obs.Brand = titleCase(v)
	} else if v := props[PropManufacturer]; v != "" {
		obs.Brand = titleCase(v)
	}
	if v := props[PropAndroidVersion]; v != "" {
		obs.AndroidVersion = v
	}
	if v := props[PropSDKVersion]; v != "" {
		obs.SDKVersion = v
	}

	return obs
}

// fetch runs one lookup per property. Values are collected by index so no
// lock is needed.
func (e *Enricher) fetch(ctx context.Context, rawID string) map[string]string {
	values := make([]string, len(EnrichmentProperties))

	var g errgroup.Group
	for i, prop := range EnrichmentProperties {
		g.Go(func() error {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer e.sem.Release(1)

			value, err := e.reader.GetProperty(ctx, rawID, prop)
			if err != nil {
				e.logger.Debug("Property lookup failed", "device", rawID, "property", prop, "error", err)
				return nil
			}
			values[i] = strings.TrimSpace(value)
			return nil
		})
	}
	_ = g.Wait()

	props := make(map[string]string, len(values))
	for i, prop := range EnrichmentProperties {
		props[prop] = values[i]
	}
	return props
}

// titleCase capitalises each word. A Caser is not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
