package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LedgerExport is the root JSON structure of an exported ledger.
type LedgerExport struct {
	ExportedAt time.Time   `json:"exportedAt"`
	Events     []EventJSON `json:"events"`
	Snapshots  []StatsJSON `json:"snapshots"`
}

// EventJSON is one exported ownership event.
type EventJSON struct {
	Time       time.Time `json:"time"`
	Connection string    `json:"connection"`
	Action     string    `json:"action"`
	NetworkID  int32     `json:"netId"`
	Object     int32     `json:"object"`
	Reason     string    `json:"reason,omitempty"`
}

// StatsJSON is one exported registry snapshot.
type StatsJSON struct {
	Time        time.Time `json:"time"`
	Connections int       `json:"connections"`
	Objects     int       `json:"objects"`
	Accepted    uint64    `json:"accepted"`
	Rejected    uint64    `json:"rejected"`
	Deleted     uint64    `json:"deleted"`
}

// exportJSON writes the ledger to the output directory. Callers hold b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := export.ExportedAt.Format("20060102_150405")
	filename := fmt.Sprintf("ownership_%s.json", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() LedgerExport {
	export := LedgerExport{
		ExportedAt: time.Now().UTC(),
		Events:     make([]EventJSON, 0, len(b.events)),
		Snapshots:  make([]StatsJSON, 0, len(b.snapshots)),
	}
	for _, e := range b.events {
		export.Events = append(export.Events, EventJSON{
			Time:       e.Time,
			Connection: string(e.Connection),
			Action:     string(e.Action),
			NetworkID:  int32(e.NetworkID),
			Object:     int32(e.Object),
			Reason:     e.Reason,
		})
	}
	for _, s := range b.snapshots {
		export.Snapshots = append(export.Snapshots, StatsJSON(s))
	}
	return export
}

func writeJSON(path string, data LedgerExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data LedgerExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	return json.NewEncoder(gzWriter).Encode(data)
}
