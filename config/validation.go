package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/cryoview/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateServer(&c.Server); err != nil {
		return err
	}

	durations := map[string]string{
		"views.poll_interval":          c.Views.PollInterval,
		"views.refresh_interval":       c.Views.RefreshInterval,
		"devserver.discovery_interval": c.Devserver.DiscoveryInterval,
		"devserver.recording_interval": c.Devserver.RecordingInterval,
		"devserver.rule_interval":      c.Devserver.RuleInterval,
	}
	for field, value := range durations {
		if err := validateDuration(field, value); err != nil {
			return err
		}
	}

	if c.Views.BufferLimit < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "views.buffer_limit cannot be negative").
			WithDetail("buffer_limit", c.Views.BufferLimit)
	}

	for collection, set := range c.Views.Filters {
		for category := range set {
			if strings.TrimSpace(category) == "" {
				return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("views.filters.%s contains an empty category", collection)).
					WithDetail("collection", collection)
			}
		}
	}

	if c.Devserver.Targets < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "devserver.targets cannot be negative")
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("server.url is not an absolute URL: %s", s.URL)).
				WithDetail("url", s.URL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New(errors.ErrCodeConfigValidation, "server.url must use http or https").
				WithDetail("url", s.URL)
		}
	}
	if s.MaxRetries < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "server.max_retries cannot be negative")
	}
	return validateDuration("server.timeout", s.Timeout)
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("%s is not a valid duration", field)).
			WithDetail("value", value)
	}
	if d <= 0 {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be positive", field)).
			WithDetail("value", value)
	}
	return nil
}
