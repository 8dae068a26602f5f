// Package config provides configuration parsing and validation for quakewatch.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quakewatch/internal/geo"
	"quakewatch/internal/ratelimit"
	"quakewatch/internal/rules"
)

// Duration wraps time.Duration so it can be written as "5m" or "1h" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FeedConfig holds the upstream event feed settings.
type FeedConfig struct {
	BaseURL      string   `yaml:"base_url"`
	MinMagnitude float64  `yaml:"min_magnitude"`
	Lookback     Duration `yaml:"lookback"`
	Limit        int      `yaml:"limit"`
}

// Config holds all configuration for the quakewatch service. Geography,
// channels and limits come from the YAML file; connection strings and
// secrets come from the environment so the file can be committed.
type Config struct {
	Feed         FeedConfig            `yaml:"feed"`
	PollInterval Duration              `yaml:"poll_interval"`
	Regions      []geo.Region          `yaml:"regions"`
	POIs         []geo.PointOfInterest `yaml:"pois"`
	Channels     []rules.Channel       `yaml:"channels"`
	RateLimits   ratelimit.Config      `yaml:"rate_limits"`
}

// Load reads and parses the YAML config file at path. ${VAR} references in
// the file are expanded from the environment before parsing, so delivery
// targets can be kept out of the committed file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Feed.BaseURL == "" {
		cfg.Feed.BaseURL = defaultFeedBaseURL
	}
	if cfg.Feed.Lookback <= 0 {
		cfg.Feed.Lookback = Duration(time.Hour)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Duration(5 * time.Minute)
	}

	return &cfg, nil
}

const defaultFeedBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// RegionIndex returns regions keyed by name.
func (c *Config) RegionIndex() map[string]geo.Region {
	index := make(map[string]geo.Region, len(c.Regions))
	for _, r := range c.Regions {
		index[r.Name] = r
	}
	return index
}

// POIIndex returns points of interest keyed by name.
func (c *Config) POIIndex() map[string]geo.PointOfInterest {
	index := make(map[string]geo.PointOfInterest, len(c.POIs))
	for _, p := range c.POIs {
		index[p.Name] = p
	}
	return index
}

// Validate checks that the configuration is internally consistent. A config
// that fails validation is rejected before any events are processed.
func (c *Config) Validate() error {
	if c.Feed.MinMagnitude < -1 || c.Feed.MinMagnitude > 10 {
		return fmt.Errorf("feed min_magnitude %v out of range", c.Feed.MinMagnitude)
	}
	if c.Feed.Limit < 0 {
		return fmt.Errorf("feed limit cannot be negative")
	}
	if c.RateLimits.MaxPerRun < 0 || c.RateLimits.MaxPerChannel < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}

	regionNames := make(map[string]bool, len(c.Regions))
	for _, r := range c.Regions {
		if r.Name == "" {
			return fmt.Errorf("region name cannot be empty")
		}
		if regionNames[r.Name] {
			return fmt.Errorf("duplicate region name %q", r.Name)
		}
		regionNames[r.Name] = true
		if err := validateBounds(r.Name, r.Bounds); err != nil {
			return err
		}
	}

	poiNames := make(map[string]bool, len(c.POIs))
	for _, p := range c.POIs {
		if p.Name == "" {
			return fmt.Errorf("poi name cannot be empty")
		}
		if poiNames[p.Name] {
			return fmt.Errorf("duplicate poi name %q", p.Name)
		}
		poiNames[p.Name] = true
		if !geo.ValidCoordinates(p.Lat, p.Lon) {
			return fmt.Errorf("poi %q has invalid coordinates (%v, %v)", p.Name, p.Lat, p.Lon)
		}
		if p.RadiusKm <= 0 {
			return fmt.Errorf("poi %q radius must be positive, got %v", p.Name, p.RadiusKm)
		}
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel must be configured")
	}
	channelNames := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel name cannot be empty")
		}
		if channelNames[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		channelNames[ch.Name] = true
		if !ch.Type.Valid() {
			return fmt.Errorf("channel %q has unknown type %q", ch.Name, ch.Type)
		}
		if ch.DeliveryRef == "" {
			return fmt.Errorf("channel %q delivery_ref cannot be empty", ch.Name)
		}
		if err := validateRuleSpec(ch, regionNames, poiNames); err != nil {
			return err
		}
	}

	return nil
}

func validateBounds(region string, b geo.BoundingBox) error {
	if !geo.ValidCoordinates(b.MinLat, b.MinLon) || !geo.ValidCoordinates(b.MaxLat, b.MaxLon) {
		return fmt.Errorf("region %q has invalid bounds", region)
	}
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("region %q min_lat must be below max_lat", region)
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("region %q min_lon must be below max_lon", region)
	}
	return nil
}

func validateRuleSpec(ch rules.Channel, regionNames, poiNames map[string]bool) error {
	spec := ch.Rules
	if spec.MinMagnitude < 0 || spec.MinMagnitude > 10 {
		return fmt.Errorf("channel %q min_magnitude %v out of range", ch.Name, spec.MinMagnitude)
	}
	if spec.MaxMagnitude != nil && *spec.MaxMagnitude < spec.MinMagnitude {
		return fmt.Errorf("channel %q max_magnitude %v below min_magnitude %v",
			ch.Name, *spec.MaxMagnitude, spec.MinMagnitude)
	}
	if spec.FeltThreshold < 0 {
		return fmt.Errorf("channel %q felt_threshold cannot be negative", ch.Name)
	}
	if spec.Region != "" && !regionNames[spec.Region] {
		return fmt.Errorf("channel %q references unknown region %q", ch.Name, spec.Region)
	}
	for _, name := range spec.POIs {
		if !poiNames[name] {
			return fmt.Errorf("channel %q references unknown poi %q", ch.Name, name)
		}
	}
	return nil
}
