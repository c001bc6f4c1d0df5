// Package snapshot persists one feed's known items as versioned JSON
// documents. Every save produces a freshly timestamped filename; the
// previous file is only ever replaced when the new content is a structural
// superset of it, so a corrupted or partial in-memory state can never
// silently erase delivery confirmations that already hit disk.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/itamarsh/listcast/models"
)

type Store struct {
	Dir string

	// now is swappable so tests can pin snapshot filenames.
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// Load returns the record set of the most-recently-modified snapshot for
// basename. A missing directory or file yields an empty set. A snapshot
// that fails to read or parse also yields an empty set: the save path will
// then refuse to overwrite the bad file, so nothing durable is lost.
func (s *Store) Load(basename string) map[string]*models.ItemRecord {
	records := make(map[string]*models.ItemRecord)

	path, ok := s.latest(basename)
	if !ok {
		slog.Info("no snapshot found, starting empty", slog.String("basename", basename))
		return records
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read snapshot", slog.String("path", path), slog.Any("error", err))
		return records
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		slog.Error("failed to parse snapshot", slog.String("path", path), slog.Any("error", err))
		return make(map[string]*models.ItemRecord)
	}

	slog.Debug("loaded snapshot", slog.String("path", path), slog.Int("records", len(records)))
	return records
}

// Save writes records as a new timestamped snapshot. When the latest prior
// snapshot is structurally contained in the new content, the prior file is
// overwritten and renamed to the new timestamp; otherwise the new snapshot
// is written alongside it and the prior file survives untouched.
func (s *Store) Save(basename string, records map[string]*models.ItemRecord) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	newPath := filepath.Join(s.Dir, s.filename(basename))

	latestPath, ok := s.latest(basename)
	if ok && s.safeToOverwrite(latestPath, data) {
		if err := os.WriteFile(latestPath, data, 0o644); err != nil {
			return fmt.Errorf("overwriting snapshot: %w", err)
		}
		if err := os.Rename(latestPath, newPath); err != nil {
			return fmt.Errorf("renaming snapshot: %w", err)
		}
		slog.Debug("snapshot overwritten in place", slog.String("path", newPath))
		return nil
	}

	if err := os.WriteFile(newPath, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if ok {
		slog.Warn("snapshot not a superset of previous, kept both",
			slog.String("previous", latestPath), slog.String("new", newPath))
	}
	return nil
}

// Register inserts records for items whose identity is not yet known,
// leaving existing records untouched, then persists. Re-running with an
// overlapping batch never duplicates or regresses a record.
func (s *Store) Register(basename string, records map[string]*models.ItemRecord, items []models.Item, channels []string) (int, error) {
	added := 0
	for _, item := range items {
		key := item.Key()
		if _, exists := records[key]; exists {
			continue
		}
		records[key] = models.NewRecord(item, channels)
		added++
	}
	slog.Info("registered new items", slog.String("basename", basename), slog.Int("added", added))
	return added, s.Save(basename, records)
}

// safeToOverwrite parses the prior snapshot and checks that every key it
// holds is still present in the candidate content. An unreadable or
// unparseable prior file is never overwritten.
func (s *Store) safeToOverwrite(latestPath string, candidate []byte) bool {
	oldRaw, err := os.ReadFile(latestPath)
	if err != nil {
		return false
	}
	var oldDoc, newDoc any
	if err := json.Unmarshal(oldRaw, &oldDoc); err != nil {
		return false
	}
	if err := json.Unmarshal(candidate, &newDoc); err != nil {
		return false
	}
	return contained(oldDoc, newDoc)
}

// contained reports whether old is a structural subset of new: every key of
// every nested object in old exists in new, and arrays may only grow. Leaf
// values are free to change: delivery flags flip, paths get filled in.
func contained(old, new any) bool {
	switch o := old.(type) {
	case map[string]any:
		n, ok := new.(map[string]any)
		if !ok {
			return false
		}
		for key, oldVal := range o {
			newVal, present := n[key]
			if !present {
				return false
			}
			if !contained(oldVal, newVal) {
				return false
			}
		}
		return true
	case []any:
		n, ok := new.([]any)
		if !ok || len(n) < len(o) {
			return false
		}
		for i := range o {
			if !contained(o[i], n[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// latest returns the path of the most-recently-modified snapshot file for
// basename, if any exists.
func (s *Store) latest(basename string) (string, bool) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", false
	}

	prefix := basename + "_"
	var best string
	var bestTime time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = filepath.Join(s.Dir, name)
			bestTime = info.ModTime()
		}
	}
	return best, best != ""
}

// filename builds `<basename>_<timestamp>.json` with the colons and dots of
// the ISO 8601 timestamp flattened to dashes.
func (s *Store) filename(basename string) string {
	ts := s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s_%s.json", basename, ts)
}
