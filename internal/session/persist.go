package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// DefaultSessionsDir is where Save writes session directories, relative to
// the working directory unless an absolute root is supplied.
const DefaultSessionsDir = ".agents/sessions"

const (
	metadataFile  = "metadata.json"
	historyFile   = "history.json"
	summaryFile   = "compressed-summary.md"
	parentRefFile = "parent-ref.json"
)

type parentRef struct {
	ParentSessionID string `json:"parent_session_id"`
}

// Save writes the session under root as
// <root>/<date>_<sessionID>/{metadata.json, history.json, ...}. The
// compressed-summary and parent-ref files are written only when the session
// carries them. Save is atomic per file (write to temp, rename).
func (s *Store) Save(root string) (string, error) {
	snapshot := s.Snapshot()

	if root == "" {
		root = DefaultSessionsDir
	}
	dir := filepath.Join(root, sessionDirName(snapshot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	meta, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metadataFile), meta); err != nil {
		return "", err
	}

	history, err := json.MarshalIndent(snapshot.History, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, historyFile), history); err != nil {
		return "", err
	}

	if snapshot.Compressed && snapshot.Summary != "" {
		if err := writeFileAtomic(filepath.Join(dir, summaryFile), []byte(snapshot.Summary)); err != nil {
			return "", err
		}
	}

	if snapshot.ParentSessionID != "" {
		ref, err := json.Marshal(parentRef{ParentSessionID: snapshot.ParentSessionID})
		if err != nil {
			return "", fmt.Errorf("marshal parent ref: %w", err)
		}
		if err := writeFileAtomic(filepath.Join(dir, parentRefFile), ref); err != nil {
			return "", err
		}
	}

	return dir, nil
}

// Load reads a session directory written by Save and rebuilds a Store.
// Entries older than the retention window are pruned on the first
// LoadHistory, not here, so the loaded snapshot round-trips byte-for-byte.
func Load(dir string) (*Store, error) {
	meta, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var snapshot taskmodels.Session
	if err := json.Unmarshal(meta, &snapshot); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}

	history, err := os.ReadFile(filepath.Join(dir, historyFile))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if err := json.Unmarshal(history, &snapshot.History); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	snapshot.MessageCount = len(snapshot.History)

	return RestoreFromSnapshot(snapshot), nil
}

// ListSaved returns the session directories under root, newest first by
// directory name (the date prefix makes lexical order chronological).
func ListSaved(root string) ([]string, error) {
	if root == "" {
		root = DefaultSessionsDir
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "_") {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs, nil
}

func sessionDirName(s taskmodels.Session) string {
	return fmt.Sprintf("%s_%s", s.StartTime.Format(time.DateOnly), s.ID)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
