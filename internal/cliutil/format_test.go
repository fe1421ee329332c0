package cliutil

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		jsonAlias bool
		want      Format
		wantErr   bool
	}{
		{name: "empty defaults to markdown", raw: "", want: FormatMarkdown},
		{name: "json alias overrides raw", raw: "yaml", jsonAlias: true, want: FormatJSON},
		{name: "json alias overrides empty raw", raw: "", jsonAlias: true, want: FormatJSON},
		{name: "explicit yaml", raw: "yaml", want: FormatYAML},
		{name: "explicit text", raw: "text", want: FormatText},
		{name: "explicit json", raw: "json", want: FormatJSON},
		{name: "unknown format rejected", raw: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.raw, tt.jsonAlias)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFormat(%q, %v) expected error, got nil", tt.raw, tt.jsonAlias)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q, %v) unexpected error: %v", tt.raw, tt.jsonAlias, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q, %v) = %q, want %q", tt.raw, tt.jsonAlias, got, tt.want)
			}
		})
	}
}

func TestRenderError_JSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	err := NewCommandError(CodeNotFound, "task not found").WithContext("taskId", "abc")
	RenderError(&buf, FormatJSON, err)

	out := buf.String()
	if !strings.Contains(out, `"success": false`) {
		t.Errorf("expected success:false in JSON envelope, got: %s", out)
	}
	if !strings.Contains(out, `"code": "not_found"`) {
		t.Errorf("expected error code in JSON envelope, got: %s", out)
	}
	if !strings.Contains(out, `"taskId": "abc"`) {
		t.Errorf("expected context field in JSON envelope, got: %s", out)
	}
}

func TestRenderError_PlainTextForNonJSON(t *testing.T) {
	var buf bytes.Buffer
	RenderError(&buf, FormatMarkdown, errors.New("boom"))

	if got := buf.String(); got != "Error: boom\n" {
		t.Errorf("RenderError markdown = %q, want %q", got, "Error: boom\n")
	}
}

func TestRenderValue_MarkdownMap(t *testing.T) {
	var buf bytes.Buffer
	payload := map[string]any{"id": "t1", "state": "wip"}
	if err := RenderValue(&buf, FormatMarkdown, payload); err != nil {
		t.Fatalf("RenderValue: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "- **id**: t1") || !strings.Contains(out, "- **state**: wip") {
		t.Errorf("unexpected markdown output: %s", out)
	}
}

func TestRenderValue_JSONWrapsSuccessEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderValue(&buf, FormatJSON, map[string]any{"id": "t1"}); err != nil {
		t.Fatalf("RenderValue: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"success": true`) {
		t.Errorf("expected success:true in JSON envelope, got: %s", out)
	}
	if !strings.Contains(out, `"id": "t1"`) {
		t.Errorf("expected payload embedded under data, got: %s", out)
	}
}

func TestRenderValue_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderValue(&buf, FormatYAML, map[string]any{"id": "t1"}); err != nil {
		t.Fatalf("RenderValue: %v", err)
	}
	if !strings.Contains(buf.String(), "id: t1") {
		t.Errorf("unexpected YAML output: %s", buf.String())
	}
}
