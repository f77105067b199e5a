package seeder

import (
	"errors"
	"fmt"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// Config controls synthetic event generation and publishing.
type Config struct {
	SiteID   string   `mapstructure:"site_id"`
	CameraID string   `mapstructure:"camera_id"`
	Zones    []string `mapstructure:"zones"`

	// Types restricts generated event types; empty means every known type.
	Types []string `mapstructure:"types"`

	// Count of events to generate; 0 runs until cancelled.
	Count int `mapstructure:"count"`

	// Rate is events per second; Burst bounds short spikes.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`

	// PublishInterval is the per-zone motion debounce window.
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	MotionThreshold float64       `mapstructure:"motion_threshold"`
	MinConfidence   float64       `mapstructure:"min_confidence"`

	// Seed makes generation reproducible; 0 picks a random seed.
	Seed int64 `mapstructure:"seed"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		SiteID:          "site_default",
		CameraID:        "cam1",
		Zones:           []string{"car_path", "landing", "pit"},
		Count:           100,
		Rate:            10,
		Burst:           1,
		PublishInterval: 250 * time.Millisecond,
		MotionThreshold: 0.15,
		MinConfidence:   0.5,
	}
}

// EventTypes resolves Types into event types.
func (c Config) EventTypes() ([]models.EventType, error) {
	if len(c.Types) == 0 {
		return models.EventTypes(), nil
	}
	out := make([]models.EventType, 0, len(c.Types))
	for _, t := range c.Types {
		et := models.EventType(t)
		if !et.IsValid() {
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		out = append(out, et)
	}
	return out, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if len(c.Zones) == 0 {
		errs = append(errs, errors.New("at least one zone is required"))
	}
	if c.Count < 0 {
		errs = append(errs, errors.New("count must not be negative"))
	}
	if c.Rate <= 0 {
		errs = append(errs, errors.New("rate must be positive"))
	}
	if c.Burst < 1 {
		errs = append(errs, errors.New("burst must be at least 1"))
	}
	if c.PublishInterval < 0 {
		errs = append(errs, errors.New("publish_interval must not be negative"))
	}
	if _, err := c.EventTypes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
