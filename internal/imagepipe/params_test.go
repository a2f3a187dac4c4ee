package imagepipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParameterText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want GenParams
	}{
		{
			name: "full webui parameter string",
			text: "A cat, Negative prompt: blurry\nSteps: 20, Sampler: Euler a, CFG scale: 7.5, Seed: 42, Model: foo, Size: 512x512",
			want: GenParams{
				"prompt":          "A cat",
				"negative_prompt": "blurry",
				"steps":           "20",
				"sampler":         "Euler a",
				"cfg_scale":       "7.5",
				"seed":            "42",
				"model":           "foo",
				"generation_size": "512x512",
			},
		},
		{
			name: "no negative prompt takes first line",
			text: "a painting of a fox\nSteps: 30",
			want: GenParams{
				"prompt": "a painting of a fox",
				"steps":  "30",
			},
		},
		{
			name: "capitalized CFG Scale",
			text: "x\nCFG Scale: 3.5",
			want: GenParams{"prompt": "x", "cfg_scale": "3.5"},
		},
		{
			name: "lowercase cfg scale is not matched",
			text: "x\ncfg scale: 3.5",
			want: GenParams{"prompt": "x"},
		},
		{
			name: "negative prompt runs to end of text without newline",
			text: "dog, Negative prompt: cat, feline",
			want: GenParams{"prompt": "dog", "negative_prompt": "cat, feline"},
		},
		{
			name: "patterns are independent",
			text: "portrait\nSeed: 1234",
			want: GenParams{"prompt": "portrait", "seed": "1234"},
		},
		{
			name: "empty text",
			text: "   ",
			want: GenParams{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseParameterText(tt.text))
		})
	}
}

func TestParseGenerationParamsJSON(t *testing.T) {
	got := ParseGenerationParams(`{"sui_image_params": {"prompt": "x", "seed": 7, "width": 256, "height": 256}}`)
	assert.Equal(t, GenParams{
		"prompt":          "x",
		"seed":            "7",
		"generation_size": "256x256",
	}, got)
}

func TestParseGenerationParamsJSONFull(t *testing.T) {
	got := ParseGenerationParams(`{"sui_image_params": {
		"prompt": "a boat",
		"negativeprompt": "fog",
		"model": "sd-xl",
		"seed": 99,
		"steps": 40,
		"cfgscale": 6.5,
		"sampler": "dpmpp_2m",
		"width": 1024,
		"height": 768
	}}`)
	assert.Equal(t, GenParams{
		"prompt":          "a boat",
		"negative_prompt": "fog",
		"model":           "sd-xl",
		"seed":            "99",
		"steps":           "40",
		"cfg_scale":       "6.5",
		"sampler":         "dpmpp_2m",
		"generation_size": "1024x768",
	}, got)
}

func TestParseGenerationParamsFallsBackOnBadJSON(t *testing.T) {
	// malformed JSON must fall through to the line-oriented parser
	got := ParseGenerationParams(`{"sui_image_params": broken} Steps: 5`)
	assert.Equal(t, "5", got["steps"])
}

func TestParseGenerationParamsJSONWithoutKnownKey(t *testing.T) {
	// valid JSON without the generation-parameters object yields nothing;
	// it must not reach the text parser and come back as a "prompt"
	got := ParseGenerationParams(`{"other": 1}`)
	assert.Equal(t, GenParams{}, got)

	// ComfyUI-style workflow dumps are exactly this shape
	got = ParseGenerationParams(`{"3": {"class_type": "KSampler", "inputs": {"seed": 5}}}`)
	assert.Equal(t, GenParams{}, got)
	assert.NotContains(t, got, "prompt")
}
