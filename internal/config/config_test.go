package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swander00/real-estate-backend/internal/model"
)

func validConfig() *Config {
	return &Config{
		IDXToken:    "idx-token",
		VOWToken:    "vow-token",
		BatchSize:   5000,
		DatabaseURL: "postgres://localhost/resosync",
	}
}

func TestPreflightRequiresTokensAndDatabaseURL(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing idx token", func(c *Config) { c.IDXToken = "" }, true},
		{"missing vow token", func(c *Config) { c.VOWToken = "" }, true},
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }, true},
		{"non-positive batch size", func(c *Config) { c.BatchSize = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			err := c.Preflight()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreflightRejectsMutuallyExclusiveOnlyFlags(t *testing.T) {
	c := validConfig()
	c.IDXOnly = true
	c.VOWOnly = true
	assert.Error(t, c.Preflight())
}

func TestSelectedResourcesRespectsOnlyFlags(t *testing.T) {
	c := validConfig()
	assert.Equal(t, []model.Resource{model.IDX, model.VOW, model.Media}, c.SelectedResources())

	c.MediaOnly = true
	assert.Equal(t, []model.Resource{model.Media}, c.SelectedResources())
}

func TestDescriptorBuildsAllThreeResources(t *testing.T) {
	c := validConfig()
	c.IDXBaseURL = "https://idx.example.test"
	c.VOWBaseURL = "https://vow.example.test"
	c.MediaBaseURL = "https://media.example.test"

	idx, ok := c.Descriptor(model.IDX)
	require.True(t, ok)
	assert.Equal(t, c.IDXToken, idx.Credential)
	assert.Equal(t, []string{"ListingKey"}, idx.ConflictKey)

	media, ok := c.Descriptor(model.Media)
	require.True(t, ok)
	assert.Equal(t, c.IDXToken, media.Credential)
	assert.ElementsMatch(t, []string{"ResourceRecordKey", "MediaKey"}, media.ConflictKey)

	_, ok = c.Descriptor(model.Resource("BOGUS"))
	assert.False(t, ok)
}

func TestBindRegistersExpectedFlags(t *testing.T) {
	c := validConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)

	for _, name := range []string{"idx-only", "vow-only", "media-only", "incremental", "fail-fast", "batch-size"} {
		assert.NotNil(t, flags.Lookup(name), "expected flag %q to be registered", name)
	}
}
