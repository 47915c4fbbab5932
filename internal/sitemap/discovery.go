package sitemap

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	observability "github.com/lueurxax/legaldocml-crawler/internal/health"
)

// earliestKnownDate bounds the backward end of a binary search for the
// earliest date carrying content.
var earliestKnownDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// DiscoveryConfig bounds the concurrency and scope of discovery
// operations; pacing between requests is governed by the underlying
// Client's own rate limiter. DisableFullScanFallback defaults to false,
// meaning DiscoverRecent falls back to a full range scan when sampling
// finds nothing, matching the spec's default behavior; set it to opt out
// of that fallback.
type DiscoveryConfig struct {
	MaxConcurrentChecks     int
	DiscoveryTimeoutHours   int
	DisableFullScanFallback bool
}

func (c DiscoveryConfig) maxConcurrentChecks() int {
	if c.MaxConcurrentChecks <= 0 {
		return 5
	}

	return c.MaxConcurrentChecks
}

func (c DiscoveryConfig) discoveryTimeout() time.Duration {
	if c.DiscoveryTimeoutHours <= 0 {
		return time.Hour
	}

	return time.Duration(c.DiscoveryTimeoutHours) * time.Hour
}

// Discovery answers which dates in a range carry real sitemap content.
type Discovery struct {
	client *Client
	cfg    DiscoveryConfig
}

// NewDiscovery builds a Discovery over an existing sitemap Client.
func NewDiscovery(client *Client, cfg DiscoveryConfig) *Discovery {
	return &Discovery{client: client, cfg: cfg}
}

// Exists reports whether a daily sitemap index is present via HEAD.
func (d *Discovery) Exists(ctx context.Context, date time.Time) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.client.IndexURL(date), nil)
	if err != nil {
		observability.SitemapDiscoveryProbes.WithLabelValues("error").Inc()
		return false
	}

	req.Header.Set(headerUserAgent, d.client.userAgent)

	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		observability.SitemapDiscoveryProbes.WithLabelValues("error").Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.SitemapDiscoveryProbes.WithLabelValues("absent").Inc()
		return false
	}

	observability.SitemapDiscoveryProbes.WithLabelValues("present").Inc()

	return true
}

// ExistsWithContent performs a GET and confirms the daily index is
// non-empty, i.e. it actually contains at least one <sitemap>/<loc> pair.
func (d *Discovery) ExistsWithContent(ctx context.Context, date time.Time) bool {
	body, err := d.client.get(ctx, d.client.IndexURL(date))
	if err != nil {
		observability.SitemapDiscoveryProbes.WithLabelValues("error").Inc()
		return false
	}

	s := string(body)

	if strings.Contains(s, "<sitemap") && strings.Contains(s, "<loc") {
		observability.SitemapDiscoveryProbes.WithLabelValues("present").Inc()
		return true
	}

	observability.SitemapDiscoveryProbes.WithLabelValues("empty").Inc()

	return false
}

// RangeResult is the outcome of a range discovery run.
type RangeResult struct {
	Available []time.Time
	Failed    []time.Time
}

// DiscoverRange checks every date in [start, end] (inclusive) for
// presence, batching checks by MaxConcurrentChecks and throttling each
// worker's probes through the Client's rate limiter, bounded overall by
// DiscoveryTimeoutHours.
func (d *Discovery) DiscoverRange(ctx context.Context, start, end time.Time) RangeResult {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.discoveryTimeout())
	defer cancel()

	dates := datesInRange(start, end)

	var (
		mu     sync.Mutex
		result RangeResult
	)

	batchSize := d.cfg.maxConcurrentChecks()

	for i := 0; i < len(dates); i += batchSize {
		batchEnd := i + batchSize
		if batchEnd > len(dates) {
			batchEnd = len(dates)
		}

		batch := dates[i:batchEnd]

		var wg sync.WaitGroup

		for _, date := range batch {
			wg.Add(1)

			go func(date time.Time) {
				defer wg.Done()

				if err := d.client.Throttle(ctx); err != nil {
					return
				}

				ok := d.Exists(ctx, date)

				mu.Lock()
				defer mu.Unlock()

				if ok {
					result.Available = append(result.Available, date)
				} else {
					result.Failed = append(result.Failed, date)
				}
			}(date)
		}

		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	sortDates(result.Available)
	sortDates(result.Failed)

	return result
}

// DiscoverRecent samples up to 10 dates biased toward the most recent N
// days and checks ExistsWithContent; if nothing hits it falls back to a
// full range discovery over the last N days unless
// DisableFullScanFallback is set.
func (d *Discovery) DiscoverRecent(ctx context.Context, n int) []time.Time {
	if n <= 0 {
		return nil
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -n+1)

	samples := sampleRecentDates(start, today, 10)

	var hits []time.Time

	for _, date := range samples {
		if d.ExistsWithContent(ctx, date) {
			hits = append(hits, date)
		}
	}

	if len(hits) > 0 {
		sortDates(hits)
		return hits
	}

	if d.cfg.DisableFullScanFallback {
		return nil
	}

	full := d.DiscoverRange(ctx, start, today)

	return full.Available
}

// sampleRecentDates biases toward the most recent days: the distance of
// the i-th sample from end grows quadratically, so recent days are
// sampled densely and older ones sparsely. Offsets round toward the more
// recent date, both end and start are always included, and samples that
// round to the same date are collapsed.
func sampleRecentDates(start, end time.Time, max int) []time.Time {
	total := int(end.Sub(start).Hours()/24) + 1
	if total <= max {
		return datesInRange(start, end)
	}

	dates := make([]time.Time, 0, max)

	for i := 0; i < max; i++ {
		frac := float64(i) / float64(max-1)
		offset := total - 1 - int(frac*frac*float64(total-1))
		dates = append(dates, start.AddDate(0, 0, offset))
	}

	sortDates(dates)

	return dedupeDates(dates)
}

// DiscoverFull finds the earliest date carrying content via binary
// search from earliestKnownDate forward, the latest by scanning back
// from yesterday up to 30 days, and delegates to DiscoverRange between
// the two bounds.
func (d *Discovery) DiscoverFull(ctx context.Context) RangeResult {
	latest, ok := d.findLatest(ctx)
	if !ok {
		return RangeResult{}
	}

	earliest := d.findEarliest(ctx, latest)

	return d.DiscoverRange(ctx, earliest, latest)
}

func (d *Discovery) findLatest(ctx context.Context) (time.Time, bool) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	for i := 0; i < 30; i++ {
		candidate := yesterday.AddDate(0, 0, -i)
		if d.ExistsWithContent(ctx, candidate) {
			return candidate, true
		}
	}

	return time.Time{}, false
}

// findEarliest binary searches [earliestKnownDate, upperBound] for the
// first date with content, assuming presence is monotonic from some
// point onward.
func (d *Discovery) findEarliest(ctx context.Context, upperBound time.Time) time.Time {
	lo, hi := earliestKnownDate, upperBound
	result := upperBound

	for !lo.After(hi) {
		mid := midDate(lo, hi)

		if d.ExistsWithContent(ctx, mid) {
			result = mid
			hi = mid.AddDate(0, 0, -1)
		} else {
			lo = mid.AddDate(0, 0, 1)
		}
	}

	return result
}

func midDate(lo, hi time.Time) time.Time {
	days := int(hi.Sub(lo).Hours() / 24)
	return lo.AddDate(0, 0, days/2)
}

func datesInRange(start, end time.Time) []time.Time {
	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)

	var dates []time.Time

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}

	return dates
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}

func dedupeDates(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))

	var last time.Time

	for i, d := range dates {
		if i == 0 || !d.Equal(last) {
			out = append(out, d)
			last = d
		}
	}

	return out
}
