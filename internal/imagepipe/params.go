package imagepipe

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// GenParams is the normalized generation-parameter record. Absent fields
// are absent keys, never empty-string placeholders.
type GenParams map[string]string

// sdPatterns are the line-oriented parameter keys written by SD WebUI style
// tools. Each pattern is independent; a miss just leaves the field unset.
// Keyword matching is case-sensitive except for the CFG scale/Scale pair.
var sdPatterns = []struct {
	re  *regexp.Regexp
	key string
}{
	{regexp.MustCompile(`Steps:\s*(\d+)`), "steps"},
	{regexp.MustCompile(`Sampler:\s*([^,\n]+)`), "sampler"},
	{regexp.MustCompile(`CFG [Ss]cale:\s*([\d.]+)`), "cfg_scale"},
	{regexp.MustCompile(`Seed:\s*(\d+)`), "seed"},
	{regexp.MustCompile(`Model:\s*([^,\n]+)`), "model"},
	{regexp.MustCompile(`Size:\s*(\d+x\d+)`), "generation_size"},
}

const negativeMarker = "Negative prompt:"

// ParseGenerationParams turns free-form generation-parameter text into a
// normalized record. Valid JSON is final: a sui_image_params object is
// mapped directly, and any other JSON yields nothing. Only text that does
// not parse as JSON goes to the line-oriented SD format.
func ParseGenerationParams(text string) GenParams {
	text = strings.TrimSpace(text)
	if text == "" {
		return GenParams{}
	}
	if params, ok := parseStructured(text); ok {
		return params
	}
	return ParseParameterText(text)
}

// parseStructured handles the JSON encoding (SwarmUI and friends). Numeric
// fields are stringified so the record has a single value type. JSON
// without the sui_image_params object is still claimed, with an empty
// record: a JSON dump must never be mistaken for a prompt.
func parseStructured(text string) (GenParams, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, false
	}
	sui, ok := doc["sui_image_params"].(map[string]any)
	if !ok {
		return GenParams{}, true
	}

	params := GenParams{}
	for src, dst := range map[string]string{
		"prompt":         "prompt",
		"negativeprompt": "negative_prompt",
		"model":          "model",
		"seed":           "seed",
		"steps":          "steps",
		"cfgscale":       "cfg_scale",
		"sampler":        "sampler",
	} {
		if v, ok := sui[src]; ok {
			if s := stringifyJSON(v); s != "" {
				params[dst] = s
			}
		}
	}

	w, wok := sui["width"]
	h, hok := sui["height"]
	if wok && hok {
		params["generation_size"] = fmt.Sprintf("%sx%s", stringifyJSON(w), stringifyJSON(h))
	}
	return params, true
}

func stringifyJSON(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return fmt.Sprintf("%.0f", t)
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

// ParseParameterText scans SD WebUI style parameter text: a prompt, an
// optional "Negative prompt:" line, and a trailing comma-separated
// parameter list.
func ParseParameterText(text string) GenParams {
	params := GenParams{}
	text = strings.TrimSpace(text)
	if text == "" {
		return params
	}

	neg := strings.Index(text, negativeMarker)
	if neg > 0 {
		// the prompt ends at the marker; drop the separator that
		// precedes it ("a cat, Negative prompt: ...")
		prompt := strings.TrimSpace(text[:neg])
		prompt = strings.TrimSpace(strings.TrimRight(prompt, ","))
		if prompt != "" {
			params["prompt"] = prompt
		}
	} else if neg < 0 {
		line, _, _ := strings.Cut(text, "\n")
		if p := strings.TrimSpace(line); p != "" {
			params["prompt"] = p
		}
	}

	if neg >= 0 {
		start := neg + len(negativeMarker)
		rest := text[start:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		params["negative_prompt"] = strings.TrimSpace(rest)
	}

	for _, p := range sdPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			params[p.key] = strings.TrimSpace(m[1])
		}
	}
	return params
}
