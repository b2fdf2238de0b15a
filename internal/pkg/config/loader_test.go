package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnvString(t *testing.T) {
	assert.Equal(t, "default", LoadEnvString("TEST_STRING", "default"))

	t.Setenv("TEST_STRING", "custom")
	assert.Equal(t, "custom", LoadEnvString("TEST_STRING", "default"))

	t.Setenv("TEST_STRING", "")
	assert.Equal(t, "default", LoadEnvString("TEST_STRING", "default"))
}

func TestLoadEnvWithFallback(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		want         string
		wantFallback bool
	}{
		{"unset uses default", "", "*/10 * * * *", false},
		{"valid value", "0 6 * * *", "0 6 * * *", false},
		{"descriptor", "@hourly", "@hourly", false},
		{"invalid falls back", "every ten minutes", "*/10 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_CRON", tt.value)

			got := LoadEnvWithFallback("TEST_CRON", "*/10 * * * *", ValidateCronSchedule)

			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.wantFallback, got.FallbackApplied)
			if tt.wantFallback {
				assert.Len(t, got.Warnings, 1)
				assert.Contains(t, got.Warnings[0], "TEST_CRON")
			} else {
				assert.Empty(t, got.Warnings)
			}
		})
	}
}

func TestLoadEnvInt(t *testing.T) {
	rng := func(v int) error { return ValidateIntRange(v, 1, 100) }
	tests := []struct {
		name         string
		value        string
		want         int
		wantFallback bool
	}{
		{"unset", "", 10, false},
		{"valid", "25", 25, false},
		{"spaces", " 25 ", 25, false},
		{"not a number", "ten", 10, true},
		{"decimal", "2.5", 10, true},
		{"below range", "0", 10, true},
		{"above range", "101", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)

			got := LoadEnvInt("TEST_INT", 10, rng)

			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.wantFallback, got.FallbackApplied)
		})
	}
}

func TestLoadEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "1.3")
	got := LoadEnvFloat("TEST_FLOAT", 0.5, nil)
	assert.InDelta(t, 1.3, got.Value, 1e-9)
	assert.False(t, got.FallbackApplied)

	t.Setenv("TEST_FLOAT", "fast")
	got = LoadEnvFloat("TEST_FLOAT", 0.5, nil)
	assert.InDelta(t, 0.5, got.Value, 1e-9)
	assert.True(t, got.FallbackApplied)
}

func TestLoadEnvDuration(t *testing.T) {
	rng := func(d time.Duration) error { return ValidateDuration(d, time.Second, 5*time.Minute) }
	tests := []struct {
		name         string
		value        string
		want         time.Duration
		wantFallback bool
	}{
		{"unset", "", 30 * time.Second, false},
		{"valid", "1m30s", 90 * time.Second, false},
		{"bad format", "30", 30 * time.Second, true},
		{"below range", "500ms", 30 * time.Second, true},
		{"above range", "1h", 30 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)

			got := LoadEnvDuration("TEST_DURATION", 30*time.Second, rng)

			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.wantFallback, got.FallbackApplied)
		})
	}
}

func TestLoadEnvBool(t *testing.T) {
	for _, v := range []string{"1", "t", "true", "TRUE", "True"} {
		t.Setenv("TEST_BOOL", v)
		assert.True(t, LoadEnvBool("TEST_BOOL", false).Value, v)
	}
	for _, v := range []string{"0", "f", "false", "FALSE"} {
		t.Setenv("TEST_BOOL", v)
		assert.False(t, LoadEnvBool("TEST_BOOL", true).Value, v)
	}

	t.Setenv("TEST_BOOL", "yes")
	got := LoadEnvBool("TEST_BOOL", true)
	assert.True(t, got.Value)
	assert.True(t, got.FallbackApplied)
}
