package llm

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/edgellm/edgellm/api"
)

// Sampling switch states. Auto resolves against temperature at request time.
const (
	DoSampleAuto = -1
	DoSampleOff  = 0
	DoSampleOn   = 1
)

// GenerateConfig carries the decoding knobs plus the tool hooks for one
// generation.
type GenerateConfig struct {
	MaxNewTokens      int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	TopP              float64 `mapstructure:"top_p"`
	TopK              int     `mapstructure:"top_k"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty"`
	BeamSize          int     `mapstructure:"beam_size"`
	Debug             bool    `mapstructure:"debug"`

	// DoSample is resolved by Apply, not decoded directly.
	DoSample int `mapstructure:"-"`

	// ReturnToolCalls switches the runner into emit mode: directives go to
	// OnToolCall and generation stops at the emission boundary.
	ReturnToolCalls bool                              `mapstructure:"-"`
	OnToolCall      func(api.ToolCall)                `mapstructure:"-"`
	ToolCallback    func(api.ToolCall) map[string]any `mapstructure:"-"`
}

// DefaultConfig returns the serving defaults.
func DefaultConfig() GenerateConfig {
	return GenerateConfig{
		MaxNewTokens:      512,
		Temperature:       0.8,
		TopP:              0.9,
		TopK:              40,
		RepetitionPenalty: 1.1,
		BeamSize:          1,
		DoSample:          DoSampleAuto,
	}
}

// Apply overlays request-body knobs onto c. Unknown keys are ignored; the
// do_sample rule is: explicit boolean wins, otherwise sampling turns off when
// temperature is non-positive.
func (c *GenerateConfig) Apply(body map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(body); err != nil {
		return fmt.Errorf("invalid generation options: %w", err)
	}

	if v, ok := body["do_sample"].(bool); ok {
		if v {
			c.DoSample = DoSampleOn
		} else {
			c.DoSample = DoSampleOff
		}
	} else if c.Temperature <= 0 {
		c.DoSample = DoSampleOff
	}
	return nil
}
