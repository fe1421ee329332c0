package entity

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// knownKeys are the frontmatter keys modeled explicitly on Entity; anything
// else round-trips through Extras.
var knownKeys = map[string]bool{
	"id": true, "title": true, "state": true, "session_id": true,
	"owner": true, "tags": true, "depends_on": true, "related": true,
	"parent_id": true, "child_ids": true, "integration": true,
	"metadata": true, "state_history": true, "task_id": true,
}

// ParseDocument splits a stored file into frontmatter + body and decodes the
// frontmatter into an Entity. Tolerates a missing trailing newline and a
// leading UTF-8 BOM.
func ParseDocument(kind Kind, data []byte) (*Entity, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	text := string(data)

	if !strings.HasPrefix(strings.TrimLeft(text, "\r\n"), frontmatterDelim) {
		return nil, fmt.Errorf("entity document missing frontmatter delimiter")
	}
	text = strings.TrimLeft(text, "\r\n")
	rest := strings.TrimPrefix(text, frontmatterDelim)
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r\n")

	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("entity document missing closing frontmatter delimiter")
	}
	fmBlock := rest[:end]
	body := rest[end+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\r\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(fmBlock), &raw); err != nil {
		return nil, fmt.Errorf("parsing frontmatter: %w", err)
	}

	ent, err := decodeEntity(kind, raw)
	if err != nil {
		return nil, err
	}
	ent.Body = body
	return ent, nil
}

func decodeEntity(kind Kind, raw map[string]any) (*Entity, error) {
	blob, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding frontmatter: %w", err)
	}
	var ent Entity
	if err := yaml.Unmarshal(blob, &ent); err != nil {
		return nil, fmt.Errorf("decoding entity frontmatter: %w", err)
	}
	ent.Kind = kind

	extras := map[string]any{}
	for k, v := range raw {
		if !knownKeys[k] {
			extras[k] = v
		}
	}
	if len(extras) > 0 {
		ent.Extras = extras
	}
	return &ent, nil
}

// RenderDocument serializes an Entity back into a frontmatter+body document.
func RenderDocument(ent *Entity) ([]byte, error) {
	now := ent.Metadata
	if now.UpdatedAt.IsZero() {
		now.UpdatedAt = time.Now().UTC()
	}
	ent.Metadata = now

	fields := map[string]any{
		"id":    ent.ID,
		"title": ent.Title,
		"state": ent.State,
	}
	if ent.SessionID != "" {
		fields["session_id"] = ent.SessionID
	}
	if ent.Owner != "" {
		fields["owner"] = ent.Owner
	}
	if len(ent.Tags) > 0 {
		fields["tags"] = ent.Tags
	}
	if len(ent.DependsOn) > 0 {
		fields["depends_on"] = ent.DependsOn
	}
	if len(ent.Related) > 0 {
		fields["related"] = ent.Related
	}
	if ent.ParentID != "" {
		fields["parent_id"] = ent.ParentID
	}
	if len(ent.ChildIDs) > 0 {
		fields["child_ids"] = ent.ChildIDs
	}
	if ent.Integration != nil {
		fields["integration"] = ent.Integration
	}
	fields["metadata"] = ent.Metadata
	if len(ent.History) > 0 {
		fields["state_history"] = ent.History
	}
	if ent.TaskID != "" {
		fields["task_id"] = ent.TaskID
	}
	for k, v := range ent.Extras {
		if !knownKeys[k] {
			fields[k] = v
		}
	}

	fmBytes, err := yaml.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim)
	buf.WriteString("\n")
	buf.Write(fmBytes)
	buf.WriteString(frontmatterDelim)
	buf.WriteString("\n")
	if ent.Body != "" {
		buf.WriteString(ent.Body)
		if !strings.HasSuffix(ent.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}
