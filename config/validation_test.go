package config

import (
	"testing"

	"github.com/grovetools/cryoview/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "relative url", mutate: func(c *Config) { c.Server.URL = "localhost:8181" }, wantErr: true},
		{name: "ws url", mutate: func(c *Config) { c.Server.URL = "ws://localhost:8181" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Server.MaxRetries = -1 }, wantErr: true},
		{name: "zero poll", mutate: func(c *Config) { c.Views.PollInterval = "0s" }, wantErr: true},
		{name: "negative buffer", mutate: func(c *Config) { c.Views.BufferLimit = -5 }, wantErr: true},
		{name: "empty category", mutate: func(c *Config) {
			c.Views.Filters = map[string]map[string][]string{"rules": {" ": {"x"}}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.SetDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
