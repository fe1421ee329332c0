package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the output rendering mode `--format` selects.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat validates a --format flag value, treating jsonAlias (the
// --json back-compat flag) as an override to FormatJSON regardless of what
// --format itself was set to.
func ParseFormat(raw string, jsonAlias bool) (Format, error) {
	if jsonAlias {
		return FormatJSON, nil
	}
	if raw == "" {
		return FormatMarkdown, nil
	}
	switch Format(raw) {
	case FormatMarkdown, FormatYAML, FormatText, FormatJSON:
		return Format(raw), nil
	default:
		return "", fmt.Errorf("unknown --format %q: expected one of markdown, yaml, text, json", raw)
	}
}

// errorEnvelope is the canonical JSON error shape: {success, error}.
type errorEnvelope struct {
	Success bool        `json:"success"`
	Error   envelopeErr `json:"error"`
}

type envelopeErr struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// RenderError writes an error to w in the given format. For FormatJSON this
// is the structured {success:false, error:{...}} envelope; every other
// format prints a plain human message, since JSON is never the default for
// LLM-facing command output.
func RenderError(w io.Writer, format Format, err error) {
	var ce *CommandError
	asCommandError(err, &ce)

	if format == FormatJSON {
		env := errorEnvelope{Success: false}
		if ce != nil {
			env.Error = envelopeErr{Message: ce.Message, Code: ce.Code, Context: ce.Context}
		} else {
			env.Error = envelopeErr{Message: err.Error()}
		}
		data, encErr := json.MarshalIndent(env, "", "  ")
		if encErr != nil {
			fmt.Fprintf(w, "{\"success\":false,\"error\":{\"message\":%q}}\n", err.Error())
			return
		}
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintf(w, "Error: %s\n", err.Error())
}

func asCommandError(err error, target **CommandError) {
	if ce, ok := err.(*CommandError); ok {
		*target = ce
	}
}

// RenderValue renders a success payload (typically a map[string]any or a
// slice of them) in the requested format. Markdown rendering falls back to
// a simple key/value or tabular dump — good enough for terminal/LLM
// consumption without needing a templating engine per command.
func RenderValue(w io.Writer, format Format, payload any) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, payload)
	case FormatYAML:
		return renderYAML(w, payload)
	case FormatText:
		return renderText(w, payload)
	default:
		return renderMarkdown(w, payload)
	}
}

func renderJSON(w io.Writer, payload any) error {
	env := map[string]any{"success": true, "data": payload}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func renderYAML(w io.Writer, payload any) error {
	data, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding YAML output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func renderText(w io.Writer, payload any) error {
	switch v := payload.(type) {
	case string:
		fmt.Fprintln(w, v)
		return nil
	case map[string]any:
		for _, k := range sortedKeys(v) {
			fmt.Fprintf(w, "%s: %v\n", k, v[k])
		}
		return nil
	case []map[string]any:
		for _, row := range v {
			for _, k := range sortedKeys(row) {
				fmt.Fprintf(w, "%s: %v\n", k, row[k])
			}
			fmt.Fprintln(w)
		}
		return nil
	default:
		fmt.Fprintf(w, "%v\n", v)
		return nil
	}
}

func renderMarkdown(w io.Writer, payload any) error {
	switch v := payload.(type) {
	case string:
		fmt.Fprintln(w, v)
		return nil
	case map[string]any:
		for _, k := range sortedKeys(v) {
			fmt.Fprintf(w, "- **%s**: %v\n", k, v[k])
		}
		return nil
	case []map[string]any:
		for i, row := range v {
			fmt.Fprintf(w, "%d. ", i+1)
			var parts []string
			for _, k := range sortedKeys(row) {
				parts = append(parts, fmt.Sprintf("**%s**: %v", k, row[k]))
			}
			fmt.Fprintln(w, strings.Join(parts, ", "))
		}
		return nil
	default:
		fmt.Fprintf(w, "%v\n", v)
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
