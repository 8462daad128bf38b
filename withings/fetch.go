package withings

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/healthsync/internal/catalog"
	"github.com/alexjbarnes/healthsync/internal/logging"
	"github.com/alexjbarnes/healthsync/internal/models"
)

// tokenSource yields a valid bearer token, or empty when the account
// is not connected. Satisfied by *TokenManager.
type tokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// Fetcher pulls raw samples from the provider's category endpoints and
// normalizes them into canonical metric payloads.
type Fetcher struct {
	client  *Client
	tokens  tokenSource
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewFetcher creates a metric fetcher.
func NewFetcher(client *Client, tokens tokenSource, cat *catalog.Catalog, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Fetcher{
		client:  client,
		tokens:  tokens,
		catalog: cat,
		logger:  logger,
	}
}

// Fetch returns normalized payloads for the requested canonical keys
// over [start, end]. A missing connection yields an empty result, not
// an error. Each category is fetched independently and best-effort: an
// endpoint failing for one account never aborts the others. Only keys
// that were requested and produced at least one sample appear in the
// result.
func (f *Fetcher) Fetch(ctx context.Context, metricKeys []string, start, end time.Time) ([]models.MetricPayload, error) {
	token, err := f.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if token == "" {
		f.logger.Debug("fetch skipped, not connected")
		return nil, nil
	}

	var (
		mu           sync.Mutex
		samplesByKey = make(map[string][]models.Sample)
	)

	add := func(key string, s models.Sample) {
		mu.Lock()
		samplesByKey[key] = append(samplesByKey[key], s)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, category := range f.catalog.CategoriesFor(metricKeys) {
		category := category
		g.Go(func() error {
			var err error

			switch category {
			case "body":
				err = f.fetchBody(gctx, token, metricKeys, start, end, add)
			case "cardiac":
				err = f.fetchCardiac(gctx, token, metricKeys, start, end, add)
			case "sleep":
				err = f.fetchSleep(gctx, token, metricKeys, start, end, add)
			case "activity":
				err = f.fetchActivity(gctx, token, metricKeys, start, end, add)
			}

			// Best-effort per category: log and keep going.
			if err != nil {
				f.logger.Warn("category fetch failed",
					slog.String("category", category),
					slog.String("error", err.Error()),
				)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return f.assemble(metricKeys, samplesByKey), nil
}

// assemble wraps sample groups into payloads in catalog key order,
// with samples ordered by start date, so repeated normalization of the
// same raw input is byte-identical.
func (f *Fetcher) assemble(metricKeys []string, samplesByKey map[string][]models.Sample) []models.MetricPayload {
	requested := make(map[string]struct{}, len(metricKeys))
	for _, k := range metricKeys {
		requested[k] = struct{}{}
	}

	var payloads []models.MetricPayload

	for _, key := range f.catalog.Keys() {
		if _, ok := requested[key]; !ok {
			continue
		}

		samples := samplesByKey[key]
		if len(samples) == 0 {
			continue
		}

		sort.SliceStable(samples, func(i, j int) bool {
			return samples[i].StartDate.Before(samples[j].StartDate)
		})

		entry, _ := f.catalog.ByKey(key)
		payloads = append(payloads, models.MetricPayload{
			Provider:    f.catalog.Provider(),
			MetricKey:   key,
			DisplayName: entry.DisplayName,
			Unit:        entry.Unit,
			Samples:     samples,
		})
	}

	return payloads
}

// fetchBody pulls body measurements. The wire encodes each value as
// value x 10^unit; the catalog factor then converts into the canonical
// unit (height arrives in metres but is stored in centimetres).
func (f *Fetcher) fetchBody(ctx context.Context, token string, metricKeys []string, start, end time.Time, add func(string, models.Sample)) error {
	types := f.catalog.MeasureTypesFor(metricKeys, "body")
	if len(types) == 0 {
		return nil
	}

	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = strconv.Itoa(t)
	}

	form := url.Values{}
	form.Set("action", "getmeas")
	form.Set("meastypes", strings.Join(typeStrs, ","))
	form.Set("category", "1")
	form.Set("startdate", strconv.FormatInt(start.Unix(), 10))
	form.Set("enddate", strconv.FormatInt(end.Unix(), 10))

	raw, err := f.client.getRaw(ctx, endpointMeasure, token, form)
	if err != nil {
		return err
	}

	for _, grp := range gjson.GetBytes(raw, "measuregrps").Array() {
		date := time.Unix(grp.Get("date").Int(), 0).UTC()
		source := sourceName(grp)

		for _, m := range grp.Get("measures").Array() {
			entry, ok := f.catalog.ByMeasureType(int(m.Get("type").Int()))
			if !ok {
				// Unknown provider codes are skipped so new
				// measurement types never break existing fetches.
				continue
			}

			value := float64(m.Get("value").Int()) * math.Pow(10, float64(m.Get("unit").Int()))

			add(entry.Key, models.Sample{
				Value:     value * entry.Factor,
				Unit:      entry.Unit,
				StartDate: date,
				Source:    source,
			})
		}
	}

	return nil
}

// fetchCardiac pulls heart readings, addressed by named field rather
// than measure type code.
func (f *Fetcher) fetchCardiac(ctx context.Context, token string, metricKeys []string, start, end time.Time, add func(string, models.Sample)) error {
	entries := f.requestedEntries(metricKeys, "cardiac")
	if len(entries) == 0 {
		return nil
	}

	form := url.Values{}
	form.Set("action", "list")
	form.Set("startdate", strconv.FormatInt(start.Unix(), 10))
	form.Set("enddate", strconv.FormatInt(end.Unix(), 10))

	raw, err := f.client.getRaw(ctx, endpointHeart, token, form)
	if err != nil {
		return err
	}

	for _, item := range gjson.GetBytes(raw, "series").Array() {
		date := time.Unix(item.Get("timestamp").Int(), 0).UTC()
		source := sourceName(item)

		for _, entry := range entries {
			v := item.Get(entry.Field)
			if !v.Exists() {
				continue
			}

			add(entry.Key, models.Sample{
				Value:     v.Float() * entry.Factor,
				Unit:      entry.Unit,
				StartDate: date,
				Source:    source,
			})
		}
	}

	return nil
}

// fetchSleep pulls nightly summaries. The provider reports per-stage
// durations in seconds; the canonical value is the summed asleep time.
func (f *Fetcher) fetchSleep(ctx context.Context, token string, metricKeys []string, start, end time.Time, add func(string, models.Sample)) error {
	entries := f.requestedEntries(metricKeys, "sleep")
	if len(entries) == 0 {
		return nil
	}

	form := url.Values{}
	form.Set("action", "getsummary")
	form.Set("startdateymd", start.UTC().Format("2006-01-02"))
	form.Set("enddateymd", end.UTC().Format("2006-01-02"))

	raw, err := f.client.getRaw(ctx, endpointSleep, token, form)
	if err != nil {
		return err
	}

	for _, item := range gjson.GetBytes(raw, "series").Array() {
		data := item.Get("data")
		if !data.Exists() {
			continue
		}

		seconds := data.Get("deepsleepduration").Float() +
			data.Get("lightsleepduration").Float() +
			data.Get("remsleepduration").Float()
		if seconds == 0 {
			continue
		}

		startDate := time.Unix(item.Get("startdate").Int(), 0).UTC()
		endDate := time.Unix(item.Get("enddate").Int(), 0).UTC()
		source := sourceName(item)

		for _, entry := range entries {
			add(entry.Key, models.Sample{
				Value:     seconds * entry.Factor,
				Unit:      entry.Unit,
				StartDate: startDate,
				EndDate:   &endDate,
				Source:    source,
			})
		}
	}

	return nil
}

// fetchActivity pulls daily aggregates, one record per day.
func (f *Fetcher) fetchActivity(ctx context.Context, token string, metricKeys []string, start, end time.Time, add func(string, models.Sample)) error {
	entries := f.requestedEntries(metricKeys, "activity")
	if len(entries) == 0 {
		return nil
	}

	form := url.Values{}
	form.Set("action", "getactivity")
	form.Set("startdateymd", start.UTC().Format("2006-01-02"))
	form.Set("enddateymd", end.UTC().Format("2006-01-02"))

	raw, err := f.client.getRaw(ctx, endpointActivity, token, form)
	if err != nil {
		return err
	}

	for _, item := range gjson.GetBytes(raw, "activities").Array() {
		day, err := time.Parse("2006-01-02", item.Get("date").Str)
		if err != nil {
			continue
		}

		source := sourceName(item)

		for _, entry := range entries {
			v := item.Get(entry.Field)
			if !v.Exists() {
				continue
			}

			add(entry.Key, models.Sample{
				Value:     v.Float() * entry.Factor,
				Unit:      entry.Unit,
				StartDate: day.UTC(),
				Source:    source,
			})
		}
	}

	return nil
}

// requestedEntries returns the catalog entries in the given category
// that were actually requested and are addressed by a named field.
func (f *Fetcher) requestedEntries(metricKeys []string, category string) []*catalog.Entry {
	var entries []*catalog.Entry

	for _, key := range metricKeys {
		entry, ok := f.catalog.ByKey(key)
		if !ok || entry.Category != category || entry.Field == "" {
			continue
		}

		entries = append(entries, entry)
	}

	return entries
}

// sourceName resolves the originating device for a raw record,
// defaulting to the provider name when the record carries none.
func sourceName(item gjson.Result) string {
	if model := item.Get("model").Str; model != "" {
		return model
	}

	return "withings"
}
