package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// diskFormatVersion guards against reading files written by an incompatible
// layout.
const diskFormatVersion = 1

// diskFile is the on-disk representation of one block checkpoint. Checksum
// is the hex sha256 of the marshaled Entries array.
type diskFile struct {
	Version  int       `json:"version"`
	Block    int       `json:"block"`
	Created  time.Time `json:"created"`
	Checksum string    `json:"checksum"`
	Entries  []Entry   `json:"entries"`
}

// DiskStore keeps checkpoints as JSON files under a per-session directory.
// It is the slow tier.
type DiskStore struct {
	dir    string
	blocks map[int]string
	log    *slog.Logger
}

// NewDiskStore creates a session directory under baseDir and returns a store
// writing into it. The directory is removed on Close.
func NewDiskStore(baseDir string, log *slog.Logger) (*DiskStore, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Join(baseDir, "ckpt-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create session dir: %v", ErrStorage, err)
	}
	log.Debug("checkpoint session directory created", "dir", dir)
	return &DiskStore{dir: dir, blocks: make(map[int]string), log: log}, nil
}

// Dir returns the session directory.
func (s *DiskStore) Dir() string { return s.dir }

func entriesChecksum(entries []Entry) (string, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Write stores the entries for the block, replacing any existing file. The
// file is written atomically via a rename.
func (s *DiskStore) Write(block int, entries []Entry) error {
	checksum, err := entriesChecksum(entries)
	if err != nil {
		return fmt.Errorf("%w: marshal entries for block %d: %v", ErrStorage, block, err)
	}
	raw, err := json.Marshal(diskFile{
		Version:  diskFormatVersion,
		Block:    block,
		Created:  time.Now().UTC(),
		Checksum: checksum,
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal block %d: %v", ErrStorage, block, err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("block_%06d.json", block))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("%w: write block %d: %v", ErrStorage, block, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: write block %d: %v", ErrStorage, block, err)
	}
	s.blocks[block] = path
	s.log.Debug("checkpoint written", "block", block, "values", len(entries), "path", path)
	return nil
}

// Read loads and verifies the entries for the block.
func (s *DiskStore) Read(block int) ([]Entry, error) {
	path, ok := s.blocks[block]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, block)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read block %d: %v", ErrStorage, block, err)
	}
	var f diskFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: decode block %d: %v", ErrStorage, block, err)
	}
	if f.Version != diskFormatVersion {
		return nil, fmt.Errorf("%w: block %d has format version %d, want %d",
			ErrStorage, block, f.Version, diskFormatVersion)
	}
	checksum, err := entriesChecksum(f.Entries)
	if err != nil {
		return nil, fmt.Errorf("%w: verify block %d: %v", ErrStorage, block, err)
	}
	if checksum != f.Checksum {
		return nil, fmt.Errorf("%w: block %d", ErrChecksumMismatch, block)
	}
	return f.Entries, nil
}

// Delete removes the block's checkpoint file.
func (s *DiskStore) Delete(block int) error {
	path, ok := s.blocks[block]
	if !ok {
		return fmt.Errorf("%w: block %d", ErrNotFound, block)
	}
	delete(s.blocks, block)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: delete block %d: %v", ErrStorage, block, err)
	}
	return nil
}

// Blocks returns the checkpointed block indices.
func (s *DiskStore) Blocks() []int {
	out := make([]int, 0, len(s.blocks))
	for b := range s.blocks {
		out = append(out, b)
	}
	return out
}

// Close removes the session directory and everything in it.
func (s *DiskStore) Close() error {
	s.blocks = make(map[int]string)
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("%w: remove session dir: %v", ErrStorage, err)
	}
	return nil
}
