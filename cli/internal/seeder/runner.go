package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// Debouncer limits motion events to one per zone per interval.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
}

// NewDebouncer creates a debouncer. A zero interval allows everything.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval, last: make(map[string]time.Time)}
}

// Allow reports whether zone may emit at now, and records the emission if so.
func (d *Debouncer) Allow(zone string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.last[zone]; ok && now.Sub(last) < d.interval {
		return false
	}
	d.last[zone] = now
	return true
}

// Stats summarizes a seeding run.
type Stats struct {
	Published int `json:"published"`
	Filtered  int `json:"filtered"`
	Debounced int `json:"debounced"`
	Failed    int `json:"failed"`
}

// Runner publishes generated events at a bounded rate.
type Runner struct {
	pub      messaging.Publisher
	gen      *Generator
	limiter  *rate.Limiter
	debounce *Debouncer
	count    int
	logger   *slog.Logger
}

// NewRunner creates a runner publishing gen's events through pub.
func NewRunner(pub messaging.Publisher, gen *Generator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pub:      pub,
		gen:      gen,
		limiter:  rate.NewLimiter(rate.Limit(gen.cfg.Rate), gen.cfg.Burst),
		debounce: NewDebouncer(gen.cfg.PublishInterval),
		count:    gen.cfg.Count,
		logger:   logger,
	}
}

// Run generates Count events (forever when Count is 0) and publishes those
// that pass the motion gate and debounce. Cancellation ends the run without
// error.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for i := 0; r.count == 0 || i < r.count; i++ {
		if err := r.limiter.Wait(ctx); err != nil {
			break
		}
		ev := r.gen.Next()
		if !r.gen.Publishable(ev) {
			stats.Filtered++
			continue
		}
		if zone, ok := ev.ZoneID(); ok && ev.Type == models.EventMotionInZone {
			if !r.debounce.Allow(zone, ev.Timestamp) {
				stats.Debounced++
				continue
			}
		}
		if err := r.Publish(ctx, ev); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			stats.Failed++
			r.logger.Warn("Failed to publish event", logging.EventID(ev.EventID), logging.Error(err))
			continue
		}
		stats.Published++
	}

	r.logger.Info("Seeding complete",
		slog.Int("published", stats.Published),
		slog.Int("filtered", stats.Filtered),
		slog.Int("debounced", stats.Debounced),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

// Publish sends one event to its type subject.
func (r *Runner) Publish(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.EventID, err)
	}
	subject := messaging.EventSubject(string(ev.Type))
	if err := r.pub.Publish(ctx, subject, data); err != nil {
		return err
	}
	r.logger.Debug("Event published", logging.EventID(ev.EventID), logging.Subject(subject))
	return nil
}

// PublishAll sends events in order, stopping at the first failure.
func (r *Runner) PublishAll(ctx context.Context, events []*models.Event) error {
	for _, ev := range events {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
