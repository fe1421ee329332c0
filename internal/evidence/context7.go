package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func context7Path(dir, pkg, ext string) string {
	return filepath.Join(dir, "context7-"+pkg+"."+ext)
}

// WriteContext7Marker writes a context7-{package}.md snapshot marker.
func (s *Service) WriteContext7Marker(taskID string, round int, m *Context7Marker, docs string) error {
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	header, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding context7 marker: %w", err)
	}
	var buf strings.Builder
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n")
	buf.WriteString(docs)
	return atomicWrite(context7Path(dir, m.Package, "md"), []byte(buf.String()))
}

// ReadContext7Marker reads a context7-{package}.md or .txt snapshot marker.
func (s *Service) ReadContext7Marker(taskID string, round int, pkg string) (*Context7Marker, string, error) {
	dir := s.roundDir(taskID, round)
	for _, ext := range []string{"md", "txt"} {
		path := context7Path(dir, pkg, ext)
		data, err := os.ReadFile(path) //nolint:gosec // path built from resolved evidence directories
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", fmt.Errorf("reading %s: %w", path, err)
		}
		text := string(data)
		if !strings.HasPrefix(text, "---\n") {
			return nil, "", &ParseError{Path: path, Reason: "missing leading frontmatter delimiter"}
		}
		rest := strings.TrimPrefix(text, "---\n")
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return nil, "", &ParseError{Path: path, Reason: "missing closing frontmatter delimiter"}
		}
		var m Context7Marker
		if err := yaml.Unmarshal([]byte(rest[:end]), &m); err != nil {
			return nil, "", &ParseError{Path: path, Reason: "invalid YAML frontmatter: " + err.Error()}
		}
		body := strings.TrimPrefix(rest[end+len("\n---"):], "\n")
		return &m, body, nil
	}
	return nil, "", nil
}

// WriteDelegation writes a delegation-{validator}.md planned-invocation
// record, used when the orchestrator fans validator dispatch out to an
// external agent rather than running it in-process.
func (s *Service) WriteDelegation(taskID string, round int, validatorID, content string) error {
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "delegation-"+validatorID+".md")
	return atomicWrite(path, []byte(content))
}
