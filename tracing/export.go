package tracing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Format 导出格式
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// Export is the serializable snapshot of a session.
type Export struct {
	SessionID  string       `json:"session_id" yaml:"session_id"`
	WorkerID   string       `json:"worker_id" yaml:"worker_id"`
	ExportedAt time.Time    `json:"exported_at" yaml:"exported_at"`
	Summary    Summary      `json:"summary" yaml:"summary"`
	Entries    []TraceEntry `json:"entries" yaml:"entries"`
}

// Export serializes the session. json and yaml produce an Export envelope;
// jsonl produces one TraceEntry per line.
func (t *Tracer) Export(format Format) ([]byte, error) {
	entries := t.Snapshot()
	if entries == nil {
		entries = []TraceEntry{}
	}

	switch format {
	case FormatJSONL:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return nil, fmt.Errorf("encode trace entry %s: %w", e.ID, err)
			}
		}
		return buf.Bytes(), nil

	case FormatJSON, FormatYAML:
		snapshot := Export{
			SessionID:  t.sessionID,
			WorkerID:   t.workerID,
			ExportedAt: t.now(),
			Summary:    t.Summary(),
			Entries:    entries,
		}
		if format == FormatYAML {
			return yaml.Marshal(snapshot)
		}
		return json.MarshalIndent(snapshot, "", "  ")

	default:
		return nil, fmt.Errorf("unsupported trace export format: %q", format)
	}
}
