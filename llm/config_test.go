package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsUntouched(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Apply(map[string]any{}))

	assert.Equal(t, 512, cfg.MaxNewTokens)
	assert.Equal(t, 0.8, cfg.Temperature)
	assert.Equal(t, DoSampleAuto, cfg.DoSample)
}

func TestApplyOverridesKnobs(t *testing.T) {
	cfg := DefaultConfig()
	body := map[string]any{
		"max_tokens":         128.0,
		"temperature":        0.2,
		"top_p":              0.5,
		"top_k":              10.0,
		"repetition_penalty": 1.3,
		"beam_size":          2.0,
		"debug":              true,
		"unknown_knob":       "ignored",
	}
	require.NoError(t, cfg.Apply(body))

	assert.Equal(t, 128, cfg.MaxNewTokens)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 0.5, cfg.TopP)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 1.3, cfg.RepetitionPenalty)
	assert.Equal(t, 2, cfg.BeamSize)
	assert.True(t, cfg.Debug)
}

func TestApplyDoSampleRule(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{name: "explicit true", body: map[string]any{"do_sample": true}, want: DoSampleOn},
		{name: "explicit false", body: map[string]any{"do_sample": false}, want: DoSampleOff},
		{name: "absent with positive temperature", body: map[string]any{"temperature": 0.7}, want: DoSampleAuto},
		{name: "absent with zero temperature", body: map[string]any{"temperature": 0.0}, want: DoSampleOff},
		{name: "absent with negative temperature", body: map[string]any{"temperature": -1.0}, want: DoSampleOff},
		{name: "explicit true beats zero temperature", body: map[string]any{"do_sample": true, "temperature": 0.0}, want: DoSampleOn},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Apply(tt.body))
			assert.Equal(t, tt.want, cfg.DoSample)
		})
	}
}
