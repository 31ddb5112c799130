package snapshot

import (
	"Go2AQMSpectra/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	summaryFile = "summary.json"
	flowsFile   = "flows.gob"
)

// Write stores the end-of-session report in dir: summary.json for people
// and tools, flows.gob with the full per-flow tables for reloading.
func Write(dir string, r *model.Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if r.Flows != nil {
		filePath := filepath.Join(dir, flowsFile)
		file, err := os.Create(filePath)
		if err != nil {
			return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
		}
		defer file.Close()

		encoder := gob.NewEncoder(file)
		if err := encoder.Encode(r.Flows); err != nil {
			return fmt.Errorf("failed to encode flows to gob for file '%s': %w", filePath, err)
		}
	}

	if r.Summary != nil {
		summaryFilePath := filepath.Join(dir, summaryFile)
		summaryFile, err := os.Create(summaryFilePath)
		if err != nil {
			return fmt.Errorf("failed to create summary file: %w", err)
		}
		defer summaryFile.Close()

		jsonEncoder := json.NewEncoder(summaryFile)
		jsonEncoder.SetIndent("", "  ")
		if err := jsonEncoder.Encode(r.Summary); err != nil {
			return fmt.Errorf("failed to encode summary to json: %w", err)
		}
	}

	return nil
}

// Load reads back a report stored by Write. Missing parts are left nil.
func Load(dir string) (*model.Report, error) {
	r := &model.Report{}

	if data, err := os.ReadFile(filepath.Join(dir, summaryFile)); err == nil {
		r.Summary = &model.SessionSummary{}
		if err := json.Unmarshal(data, r.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	file, err := os.Open(filepath.Join(dir, flowsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to open flows: %w", err)
	}
	defer file.Close()

	r.Flows = &model.FlowTables{}
	if err := gob.NewDecoder(file).Decode(r.Flows); err != nil {
		return nil, fmt.Errorf("failed to decode flows: %w", err)
	}
	return r, nil
}
