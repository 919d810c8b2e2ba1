package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diogo/aceorbit/internal/models"
)

// ExportFormat represents the format for exporting the message log
type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatJSON     ExportFormat = "json"
)

// ParseExportFormat accepts "markdown", "md" or "json"
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "":
		return ExportFormatMarkdown, nil
	case "json":
		return ExportFormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// Export renders msgs in the given format. loc controls how timestamps
// are shown in Markdown; nil means local time.
func Export(msgs []models.Message, format ExportFormat, loc *time.Location) ([]byte, error) {
	switch format {
	case ExportFormatJSON:
		return ExportJSON(msgs)
	case ExportFormatMarkdown:
		return []byte(ExportMarkdown(msgs, loc)), nil
	}
	return nil, fmt.Errorf("unsupported export format: %s", format)
}

// ExportMarkdown renders the log as a Markdown transcript
func ExportMarkdown(msgs []models.Message, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(models.AssistantName)
	sb.WriteString(" conversation\n\n")
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n\n---\n\n", len(msgs)))

	for i, msg := range msgs {
		sb.WriteString("## ")
		sb.WriteString(msg.Role.Label())
		if msg.Timestamp > 0 {
			sb.WriteString(" (")
			sb.WriteString(time.UnixMilli(msg.Timestamp).In(loc).Format("2006-01-02 15:04:05"))
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")

		if i < len(msgs)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return sb.String()
}

// ExportJSON renders the log in the stored layout, indented
func ExportJSON(msgs []models.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	return data, nil
}
