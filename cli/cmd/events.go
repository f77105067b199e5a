package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joshuaworth/hoistwaywatch/cli/internal/seeder"
	"github.com/joshuaworth/hoistwaywatch/common/config"
	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
	natsclient "github.com/joshuaworth/hoistwaywatch/common/messaging/nats"
	"github.com/joshuaworth/hoistwaywatch/common/models"
)

const scenarioHazard = "hazard"

// busPublisher is the connection events seed publishes through.
type busPublisher interface {
	messaging.Publisher
	Drain() error
}

// dialBus connects to NATS. Tests replace it.
var dialBus = func(cfg natsclient.Config) (busPublisher, error) {
	return natsclient.NewClient(cfg)
}

func newEventsCmd() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Publish sensor events",
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Publish synthetic sensor events to NATS",
		Long: `Generate vision and health events and publish them to hw.events.<type>
at a bounded rate. Motion below the threshold and person detections below
the minimum confidence are dropped, and motion is debounced per zone by the
publish interval, the same way the vision service does it.

--scenario hazard publishes a person detection followed by high motion in
one zone, which trips the correlated hazard rule.`,
		Example: `  hwctl events seed --count 200 --rate 20 --zones car_path,pit
  hwctl events seed --scenario hazard --zone car_path
  HW_NATS_URL=nats://broker:4222 hwctl events seed --count 0`,
		Args: cobra.NoArgs,
		RunE: runEventsSeed,
	}
	defaults := seeder.DefaultConfig()
	f := seedCmd.Flags()
	f.String("nats-url", "", "NATS server URL (env HW_NATS_URL)")
	f.String("site-id", defaults.SiteID, "site id stamped on events (env HW_SITE_ID)")
	f.String("camera-id", defaults.CameraID, "camera id stamped on events (env HW_CAMERA_ID)")
	f.StringSlice("zones", defaults.Zones, "zone ids to generate events for")
	f.String("zones-file", "", "take zone ids from a zone configuration file (env HW_ZONES_PATH)")
	f.StringSlice("types", nil, "event types to generate (default all)")
	f.Int("count", defaults.Count, "events to generate, 0 runs until interrupted")
	f.Float64("rate", defaults.Rate, "events per second")
	f.Int("burst", defaults.Burst, "rate limiter burst")
	f.Duration("publish-interval", defaults.PublishInterval, "per-zone motion debounce interval")
	f.Float64("motion-threshold", defaults.MotionThreshold, "minimum motion score to publish")
	f.Float64("min-confidence", defaults.MinConfidence, "minimum person detection confidence to publish")
	f.Int64("seed", 0, "random seed for reproducible runs (0 picks one)")
	f.String("scenario", "", "publish a fixed scenario instead of random events: hazard")
	f.String("zone", "car_path", "zone used by --scenario")

	eventsCmd.AddCommand(seedCmd)
	return eventsCmd
}

var seedFlagKeys = map[string]string{
	"nats.url":              "nats-url",
	"seed.site_id":          "site-id",
	"seed.camera_id":        "camera-id",
	"seed.zones":            "zones",
	"seed.zones_file":       "zones-file",
	"seed.types":            "types",
	"seed.count":            "count",
	"seed.rate":             "rate",
	"seed.burst":            "burst",
	"seed.publish_interval": "publish-interval",
	"seed.motion_threshold": "motion-threshold",
	"seed.min_confidence":   "min-confidence",
	"seed.seed":             "seed",
}

// seedSettings is the part of the hwctl config file events seed reads.
type seedSettings struct {
	NATS config.NATSConfig `mapstructure:"nats"`
	Seed seeder.Config     `mapstructure:"seed"`
}

// seedConfig resolves the seeder settings: flag, HW_* env, --config file's
// seed section, defaults.
func seedConfig(v *viper.Viper) (*seedSettings, error) {
	defaults := seeder.DefaultConfig()
	v.SetDefault("seed.site_id", defaults.SiteID)
	v.SetDefault("seed.camera_id", defaults.CameraID)
	v.SetDefault("seed.zones", defaults.Zones)
	v.SetDefault("seed.zones_file", "")
	v.SetDefault("seed.count", defaults.Count)
	v.SetDefault("seed.rate", defaults.Rate)
	v.SetDefault("seed.burst", defaults.Burst)
	v.SetDefault("seed.publish_interval", defaults.PublishInterval)
	v.SetDefault("seed.motion_threshold", defaults.MotionThreshold)
	v.SetDefault("seed.min_confidence", defaults.MinConfidence)
	_ = v.BindEnv("seed.site_id", "HW_SITE_ID")
	_ = v.BindEnv("seed.camera_id", "HW_CAMERA_ID")
	_ = v.BindEnv("seed.zones_file", "HW_ZONES_PATH")

	var s seedSettings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if path := v.GetString("seed.zones_file"); path != "" {
		zones, err := models.LoadZones(path)
		if err != nil {
			return nil, err
		}
		s.Seed.Zones = zones.IDs()
	}
	if err := s.NATS.Validate(); err != nil {
		return nil, err
	}
	if err := s.Seed.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func runEventsSeed(cmd *cobra.Command, _ []string) error {
	v, err := loadConfig(cmd, seedFlagKeys)
	if err != nil {
		return err
	}
	settings, err := seedConfig(v)
	if err != nil {
		return err
	}
	cfg := settings.Seed
	scenario, _ := cmd.Flags().GetString("scenario")
	if scenario != "" && scenario != scenarioHazard {
		return fmt.Errorf("unknown scenario %q", scenario)
	}

	v.SetDefault("logging.level", "warn")
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(v.GetString("logging.level")), "text")
	gen, err := seeder.NewGenerator(cfg)
	if err != nil {
		return err
	}

	bus, err := dialBus(settings.NATS.ClientConfig("hwctl", logger.Logger))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", settings.NATS.URL, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := seeder.NewRunner(bus, gen, logger.With(slog.String("site_id", cfg.SiteID)).Logger)
	p := printer(cmd)

	if scenario == scenarioHazard {
		zone, _ := cmd.Flags().GetString("zone")
		events := gen.HazardScenario(zone)
		if err := runner.PublishAll(ctx, events); err != nil {
			_ = bus.Drain()
			return fmt.Errorf("publish hazard scenario: %w", err)
		}
		if err := bus.Drain(); err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		if jsonOutput(cmd) {
			return p.JSON(events)
		}
		for _, ev := range events {
			p.Success("published %s %s", ev.Type, ev.EventID)
		}
		return nil
	}

	stats, err := runner.Run(ctx)
	if drainErr := bus.Drain(); drainErr != nil && err == nil {
		err = fmt.Errorf("drain: %w", drainErr)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		p.Warn("interrupted")
	}

	if jsonOutput(cmd) {
		return p.JSON(stats)
	}
	p.Success("published %d events (%d below threshold, %d debounced, %d failed)",
		stats.Published, stats.Filtered, stats.Debounced, stats.Failed)
	return nil
}
