// Package config holds feature weights and solver settings. Values come from
// built-in defaults, then an optional YAML file, then VRPGOAL_* environment
// variables. Every weight is a pointer so a file can override one value and
// leave the others at their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"vrpgoal/internal/features"
)

var ErrInvalid = errors.New("invalid config")

type Weights struct {
	NoPreferredMatch  *float64 `yaml:"noPreferredMatch"`
	NoAcceptableMatch *float64 `yaml:"noAcceptableMatch"`
	PerAvoidedPresent *float64 `yaml:"perAvoidedPresent"`
	ViaInversion      *float64 `yaml:"viaInversion"`
	Unassigned        *float64 `yaml:"unassigned"`
	UnassignedVia     *float64 `yaml:"unassignedVia"`
	// Distance is charged per km, Duration per hour of driving.
	Distance       *float64 `yaml:"distance"`
	Duration       *float64 `yaml:"duration"`
	RequestedEarly *float64 `yaml:"requestedEarly"`
	RequestedLate  *float64 `yaml:"requestedLate"`
}

type Search struct {
	Seed        *int64         `yaml:"seed"`
	TimeBudget  *time.Duration `yaml:"timeBudget"`
	Iterations  *int           `yaml:"iterations"`
	InitialTemp *float64       `yaml:"initialTemp"`
	Cooling     *float64       `yaml:"cooling"`
	Concurrency *int           `yaml:"concurrency"`
	SpeedKph    *float64       `yaml:"speedKph"`
}

type Store struct {
	// DatabaseURL selects the Postgres report store; empty keeps reports in
	// memory.
	DatabaseURL string `yaml:"databaseUrl"`
	Migrate     bool   `yaml:"migrate"`
}

type Events struct {
	// RedisURL selects the Redis event sink; empty uses the in-process
	// broker.
	RedisURL string `yaml:"redisUrl"`
	Channel  string `yaml:"channel"`
	// WebhookURL, when set, receives the event types in WebhookEvents as
	// signed POSTs.
	WebhookURL    string   `yaml:"webhookUrl"`
	WebhookSecret string   `yaml:"webhookSecret"`
	WebhookEvents []string `yaml:"webhookEvents"`
	// WebhookRate caps deliveries per second.
	WebhookRate *float64 `yaml:"webhookRate"`
}

type Config struct {
	Weights Weights `yaml:"weights"`
	Search  Search  `yaml:"search"`
	Store   Store   `yaml:"store"`
	Events  Events  `yaml:"events"`
}

func ptr[T any](v T) *T { return &v }

// Default returns a config with every value set.
func Default() Config {
	pp := features.DefaultPreferencePenalty()
	uw := features.DefaultUnassignedWeights()
	tw := features.DefaultTransportWeights()
	rt := features.DefaultRequestedTimePenalty()
	return Config{
		Weights: Weights{
			NoPreferredMatch:  ptr(pp.NoPreferredMatch),
			NoAcceptableMatch: ptr(pp.NoAcceptableMatch),
			PerAvoidedPresent: ptr(pp.PerAvoidedPresent),
			ViaInversion:      ptr(features.DefaultViaInversionWeight),
			Unassigned:        ptr(uw.Job),
			UnassignedVia:     ptr(uw.Via),
			Distance:          ptr(tw.PerKm),
			Duration:          ptr(tw.PerHour),
			RequestedEarly:    ptr(rt.EarlyPerMinute),
			RequestedLate:     ptr(rt.LatePerMinute),
		},
		Search: Search{
			Seed:        ptr(int64(0)),
			TimeBudget:  ptr(2 * time.Second),
			Iterations:  ptr(0),
			InitialTemp: ptr(1.0),
			Cooling:     ptr(0.995),
			Concurrency: ptr(0),
			SpeedKph:    ptr(50.0),
		},
		Events: Events{
			Channel:       "vrpgoal:moves",
			WebhookEvents: []string{"best.improved", "run.finished"},
			WebhookRate:   ptr(5.0),
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(bytes.NewReader(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides values from the environment. lookup is os.LookupEnv
// outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs error
	floats := []struct {
		key string
		dst **float64
	}{
		{"VRPGOAL_NO_PREFERRED_MATCH", &cfg.Weights.NoPreferredMatch},
		{"VRPGOAL_NO_ACCEPTABLE_MATCH", &cfg.Weights.NoAcceptableMatch},
		{"VRPGOAL_PER_AVOIDED_PRESENT", &cfg.Weights.PerAvoidedPresent},
		{"VRPGOAL_VIA_INVERSION", &cfg.Weights.ViaInversion},
		{"VRPGOAL_UNASSIGNED", &cfg.Weights.Unassigned},
		{"VRPGOAL_UNASSIGNED_VIA", &cfg.Weights.UnassignedVia},
		{"VRPGOAL_DISTANCE", &cfg.Weights.Distance},
		{"VRPGOAL_DURATION", &cfg.Weights.Duration},
		{"VRPGOAL_REQUESTED_EARLY", &cfg.Weights.RequestedEarly},
		{"VRPGOAL_REQUESTED_LATE", &cfg.Weights.RequestedLate},
		{"VRPGOAL_INITIAL_TEMP", &cfg.Search.InitialTemp},
		{"VRPGOAL_COOLING", &cfg.Search.Cooling},
		{"VRPGOAL_SPEED_KPH", &cfg.Search.SpeedKph},
		{"VRPGOAL_WEBHOOK_RATE", &cfg.Events.WebhookRate},
	}
	for _, f := range floats {
		v, ok := lookup(f.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, f.key, err))
			continue
		}
		*f.dst = &n
	}
	ints := []struct {
		key string
		dst **int
	}{
		{"VRPGOAL_ITERATIONS", &cfg.Search.Iterations},
		{"VRPGOAL_CONCURRENCY", &cfg.Search.Concurrency},
	}
	for _, f := range ints {
		v, ok := lookup(f.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, f.key, err))
			continue
		}
		*f.dst = &n
	}
	if v, ok := lookup("VRPGOAL_SEED"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: VRPGOAL_SEED: %v", ErrInvalid, err))
		} else {
			cfg.Search.Seed = &n
		}
	}
	if v, ok := lookup("VRPGOAL_TIME_BUDGET"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: VRPGOAL_TIME_BUDGET: %v", ErrInvalid, err))
		} else {
			cfg.Search.TimeBudget = &d
		}
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		cfg.Store.DatabaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("DB_MIGRATE"); ok {
		cfg.Store.Migrate = v != "false"
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.Events.RedisURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("VRPGOAL_WEBHOOK_URL"); ok {
		cfg.Events.WebhookURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("VRPGOAL_WEBHOOK_SECRET"); ok {
		cfg.Events.WebhookSecret = v
	}
	return errs
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	w := c.Weights
	for _, e := range []struct {
		name string
		v    *float64
	}{
		{"noPreferredMatch", w.NoPreferredMatch},
		{"noAcceptableMatch", w.NoAcceptableMatch},
		{"perAvoidedPresent", w.PerAvoidedPresent},
		{"viaInversion", w.ViaInversion},
		{"unassigned", w.Unassigned},
		{"unassignedVia", w.UnassignedVia},
		{"distance", w.Distance},
		{"duration", w.Duration},
		{"requestedEarly", w.RequestedEarly},
		{"requestedLate", w.RequestedLate},
	} {
		if e.v == nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: weight %s unset", ErrInvalid, e.name))
		} else if *e.v < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: weight %s is negative", ErrInvalid, e.name))
		}
	}
	s := c.Search
	if s.Cooling != nil && (*s.Cooling <= 0 || *s.Cooling >= 1) {
		errs = multierr.Append(errs, fmt.Errorf("%w: cooling must be in (0,1)", ErrInvalid))
	}
	if s.TimeBudget != nil && *s.TimeBudget <= 0 && (s.Iterations == nil || *s.Iterations <= 0) {
		errs = multierr.Append(errs, fmt.Errorf("%w: search needs a time budget or an iteration limit", ErrInvalid))
	}
	if s.SpeedKph != nil && *s.SpeedKph <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: speedKph must be positive", ErrInvalid))
	}
	if r := c.Events.WebhookRate; r != nil && *r <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: webhookRate must be positive", ErrInvalid))
	}
	if c.Events.WebhookURL != "" && len(c.Events.WebhookEvents) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: webhookUrl set without webhookEvents", ErrInvalid))
	}
	return errs
}

func (w Weights) Preferences() features.PreferencePenalty {
	return features.PreferencePenalty{
		NoPreferredMatch:  *w.NoPreferredMatch,
		NoAcceptableMatch: *w.NoAcceptableMatch,
		PerAvoidedPresent: *w.PerAvoidedPresent,
	}
}

func (w Weights) UnassignedWeights() features.UnassignedWeights {
	return features.UnassignedWeights{Job: *w.Unassigned, Via: *w.UnassignedVia}
}

func (w Weights) Transport() features.TransportWeights {
	return features.TransportWeights{PerKm: *w.Distance, PerHour: *w.Duration}
}

func (w Weights) RequestedTime() features.RequestedTimePenalty {
	return features.RequestedTimePenalty{EarlyPerMinute: *w.RequestedEarly, LatePerMinute: *w.RequestedLate}
}
