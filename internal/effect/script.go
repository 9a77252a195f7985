package effect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Script is the replay input of a Scripted boundary.
//
//	stdin: ["first line"]
//	generations:
//	  - "plain answer"
//	  - content: ""
//	    tool_calls: [{name: shell, arguments: {command: ls}}]
//	shell: {ls: "a.txt\n"}
//	files: {notes.md: "# notes"}
//	allow_shell: true
type Script struct {
	Stdin       []string          `mapstructure:"stdin"`
	Generations []Generation      `mapstructure:"generations"`
	Shell       map[string]string `mapstructure:"shell"`
	Files       map[string]string `mapstructure:"files"`
	AllowShell  *bool             `mapstructure:"allow_shell"`
}

// ShellAllowed returns allow_shell, defaulting to true.
func (s Script) ShellAllowed() bool {
	return s.AllowShell == nil || *s.AllowShell
}

// Generation is one scripted model response. In a script file it is either
// a plain string (the content) or an object with content and tool_calls.
type Generation struct {
	Content   string     `mapstructure:"content"`
	ToolCalls []ToolCall `mapstructure:"tool_calls"`
}

// Response converts the scripted entry.
func (g Generation) Response() Response {
	return Response{Content: g.Content, ToolCalls: g.ToolCalls}
}

// LoadScript reads a YAML or JSON script file.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}

	s, err := DecodeScript(raw)
	if err != nil {
		return Script{}, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

// DecodeScript decodes a generic map (from YAML, JSON or a harness
// scenario) into a Script. The legacy key llm_responses is accepted for
// generations.
func DecodeScript(raw map[string]any) (Script, error) {
	if raw == nil {
		return Script{}, nil
	}
	if legacy, ok := raw["llm_responses"]; ok {
		if _, both := raw["generations"]; both {
			return Script{}, fmt.Errorf("both generations and llm_responses are set")
		}
		raw = copyWithout(raw, "llm_responses")
		raw["generations"] = legacy
	}

	var s Script
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  generationHook,
		ErrorUnused: true,
		Result:      &s,
	})
	if err != nil {
		return Script{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Script{}, err
	}
	return s, nil
}

var generationType = reflect.TypeOf(Generation{})

// generationHook lets a bare string stand for {content: string}.
func generationHook(from, to reflect.Type, data any) (any, error) {
	if to == generationType && from.Kind() == reflect.String {
		return map[string]any{"content": data}, nil
	}
	return data, nil
}

func copyWithout(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}
