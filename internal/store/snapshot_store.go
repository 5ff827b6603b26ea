package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonop-io/wonopcore/internal/model"
)

// SnapshotFile records one file's content within a snapshot. Bytes are
// stored separately, content-addressed by SHA, so repeated identical
// content across snapshots is never duplicated on disk.
type SnapshotFile struct {
	Path  string `json:"path"`
	SHA   string `json:"sha"`
	Bytes int64  `json:"bytes"`
}

// Snapshot is the metadata record for one pre-edit capture, per §4.6.
type Snapshot struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	MessageID   string         `json:"message_id"`
	Description string         `json:"description"`
	Files       []SnapshotFile `json:"files"`
	Timestamp   time.Time      `json:"ts"`
}

// SnapshotStore captures and restores file content, content-addressed by
// SHA-256 under a blobs/ directory, with metadata in the generic Store.
type SnapshotStore struct {
	kv      Store
	blobDir string
}

// NewSnapshotStore wraps kv for snapshot metadata and uses blobDir (created
// if missing) for content-addressed blob storage.
func NewSnapshotStore(kv Store, blobDir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: creating blob dir: %w", err)
	}
	return &SnapshotStore{kv: kv, blobDir: blobDir}, nil
}

func snapshotKey(snapshotID string) Key {
	return Key{"snapshot", snapshotID}
}

func (s *SnapshotStore) blobPath(sha string) string {
	if len(sha) < 4 {
		return filepath.Join(s.blobDir, sha)
	}
	return filepath.Join(s.blobDir, sha[:2], sha[2:4], sha)
}

// Take reads each path that currently exists, hashes its content, stores
// the bytes content-addressed (a no-op if that content is already stored),
// and records the snapshot's metadata under snapshotID. Paths that do not
// exist are silently skipped — a snapshot only ever records what existed
// at capture time.
func (s *SnapshotStore) Take(snapshotID, sessionID, messageID, description string, paths []string) (*Snapshot, error) {
	snap := &Snapshot{
		ID:          snapshotID,
		SessionID:   sessionID,
		MessageID:   messageID,
		Description: description,
		Timestamp:   time.Now(),
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("snapshot: reading %s: %w", p, err)
		}

		sum := sha256.Sum256(data)
		sha := hex.EncodeToString(sum[:])

		if err := s.storeBlob(sha, data); err != nil {
			return nil, err
		}

		snap.Files = append(snap.Files, SnapshotFile{Path: p, SHA: sha, Bytes: int64(len(data))})
	}

	if err := s.kv.Write(snapshotKey(snapshotID), snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SnapshotStore) storeBlob(sha string, data []byte) error {
	path := s.blobPath(sha)
	if _, err := os.Stat(path); err == nil {
		return nil // already stored, content-addressed dedup.
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get loads a snapshot's metadata record.
func (s *SnapshotStore) Get(snapshotID string) (*Snapshot, error) {
	var snap Snapshot
	if err := s.kv.Read(snapshotKey(snapshotID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Restore writes every file recorded in the snapshot back to its original
// path, atomically (write-tmp, rename), overwriting current content.
func (s *SnapshotStore) Restore(snapshotID string) error {
	snap, err := s.Get(snapshotID)
	if err != nil {
		return err
	}

	for _, f := range snap.Files {
		data, err := os.ReadFile(s.blobPath(f.SHA))
		if err != nil {
			return fmt.Errorf("snapshot: reading blob %s for %s: %w", f.SHA, f.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return err
		}
		tmp := f.Path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		if err := os.Rename(tmp, f.Path); err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes every snapshot record whose Timestamp is before cutoff and
// returns how many were removed. Blobs are left in place: content-addressed
// dedup means another surviving snapshot may still reference the same SHA,
// and a reachability sweep over all metadata is out of scope for the
// periodic maintenance sweep this backs (the cron job that cmd/wonopcore's serve starts).
func (s *SnapshotStore) Prune(cutoff time.Time) (int, error) {
	keys, err := s.kv.List(Key{"snapshot"})
	if err != nil {
		return 0, fmt.Errorf("snapshot: listing for prune: %w", err)
	}
	removed := 0
	for _, k := range keys {
		var snap Snapshot
		if err := s.kv.Read(k, &snap); err != nil {
			continue
		}
		if snap.Timestamp.Before(cutoff) {
			if err := s.kv.Remove(k); err != nil {
				return removed, fmt.Errorf("snapshot: pruning %s: %w", k, err)
			}
			removed++
		}
	}
	return removed, nil
}
