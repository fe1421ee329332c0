package cliutil

import (
	"path/filepath"
	"testing"
)

func TestCommandEnforced(t *testing.T) {
	commands := []string{"evidence capture", " qa validate "}
	tests := []struct {
		path string
		want bool
	}{
		{"evidence capture", true},
		{"qa validate", true},
		{"task create", false},
		{"evidence capture ", false},
	}
	for _, tt := range tests {
		if got := commandEnforced(commands, tt.path); got != tt.want {
			t.Errorf("commandEnforced(%v, %q) = %v, want %v", commands, tt.path, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sub", "dir")

	tests := []struct {
		name string
		cwd  string
		root string
		want bool
	}{
		{name: "same dir", cwd: root, root: root, want: true},
		{name: "nested dir", cwd: nested, root: root, want: true},
		{name: "sibling dir", cwd: filepath.Join(filepath.Dir(root), "other"), root: root, want: false},
		{name: "empty root never matches", cwd: root, root: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := within(tt.cwd, tt.root); got != tt.want {
				t.Errorf("within(%q, %q) = %v, want %v", tt.cwd, tt.root, got, tt.want)
			}
		})
	}
}

func TestSessionWorktreePath(t *testing.T) {
	tests := []struct {
		name   string
		extras map[string]any
		want   string
	}{
		{name: "nil extras", extras: nil, want: ""},
		{name: "no git key", extras: map[string]any{}, want: ""},
		{
			name:   "map[string]any git block",
			extras: map[string]any{"git": map[string]any{"worktreePath": "/tmp/wt"}},
			want:   "/tmp/wt",
		},
		{
			name:   "map[any]any git block from YAML decode",
			extras: map[string]any{"git": map[any]any{"worktreePath": "/tmp/wt2"}},
			want:   "/tmp/wt2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionWorktreePath(tt.extras); got != tt.want {
				t.Errorf("sessionWorktreePath(%v) = %q, want %q", tt.extras, got, tt.want)
			}
		})
	}
}
