package sourceadapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"convoindex/internal/preprocess"
)

// FileRecord is the on-disk shape of one file-driven batch: a JSON
// object naming the source and holding an array of raw messages, all
// belonging to that source.
type FileRecord struct {
	Source   string                   `json:"source"`
	Messages []preprocess.RawMessage `json:"messages"`
}

// FileAdapter is a file-driven reader: it reads raw conversation
// records from a directory instead of a remote adapter.
// A file is considered processed once a sibling "<name>.done" marker
// exists; FileAdapter never deletes input files.
type FileAdapter struct {
	Dir string
}

// Pending lists files in Dir not yet marked processed, oldest name
// first, capped at limit (the file-driven tick processes 10 per run).
func (f FileAdapter) Pending(limit int) ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("list pending files in %s: %w", f.Dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".done" {
			continue
		}
		donePath := filepath.Join(f.Dir, name+".done")
		if _, err := os.Stat(donePath); err == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// Read parses one pending file into its raw records.
func (f FileAdapter) Read(name string) (FileRecord, error) {
	data, err := os.ReadFile(filepath.Join(f.Dir, name))
	if err != nil {
		return FileRecord{}, fmt.Errorf("read %s: %w", name, err)
	}
	var rec FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return FileRecord{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return rec, nil
}

// MarkProcessed drops a "<name>.done" marker next to the input file.
// Called only after preprocessing, embedding, and storing all succeed
// for the file, all-or-nothing.
func (f FileAdapter) MarkProcessed(name string) error {
	path := filepath.Join(f.Dir, name+".done")
	if err := os.WriteFile(path, []byte{}, 0o600); err != nil {
		return fmt.Errorf("mark %s processed: %w", name, err)
	}
	return nil
}
