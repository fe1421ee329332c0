package cli

import "testing"

func TestFormatFlags_ResolveDefaultsToTextWhenNotATerminal(t *testing.T) {
	orig := isOutputTerminal
	defer func() { isOutputTerminal = orig }()

	isOutputTerminal = func() bool { return false }
	f := &formatFlags{}
	got, err := f.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "text" {
		t.Fatalf("resolve() = %q, want text when stdout is not a terminal", got)
	}
}

func TestFormatFlags_ResolveDefaultsToMarkdownOnATerminal(t *testing.T) {
	orig := isOutputTerminal
	defer func() { isOutputTerminal = orig }()

	isOutputTerminal = func() bool { return true }
	f := &formatFlags{}
	got, err := f.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "markdown" {
		t.Fatalf("resolve() = %q, want markdown on a terminal", got)
	}
}

func TestFormatFlags_ResolveExplicitFormatIgnoresTerminalDetection(t *testing.T) {
	orig := isOutputTerminal
	defer func() { isOutputTerminal = orig }()

	isOutputTerminal = func() bool { return false }
	f := &formatFlags{format: "yaml"}
	got, err := f.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "yaml" {
		t.Fatalf("resolve() = %q, want yaml when explicitly requested", got)
	}
}
