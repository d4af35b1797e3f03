package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"genx/core"
)

// BlockStore persists one JSON file per block, named by index, under
// the chain subdirectory of the data directory. Only the Ledger writes
// here, one append at a time; files are never rewritten.
type BlockStore struct {
	dir string
}

// NewBlockStore opens (creating if needed) the chain directory.
func NewBlockStore(dataDir string) (*BlockStore, error) {
	dir := filepath.Join(dataDir, "chain")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chain directory: %w", err)
	}
	return &BlockStore{dir: dir}, nil
}

func (s *BlockStore) path(index uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", index))
}

// Height returns the index of the highest stored block. ok is false
// when the store is empty. A gap between 0 and the highest index is a
// corrupted store.
func (s *BlockStore) Height() (height uint64, ok bool, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, false, fmt.Errorf("read chain directory: %w", err)
	}

	count := 0
	max := uint64(0)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		idx, perr := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if perr != nil {
			continue
		}
		count++
		if idx > max {
			max = idx
		}
	}

	if count == 0 {
		return 0, false, nil
	}
	if uint64(count) != max+1 {
		return 0, false, fmt.Errorf("%w: %d block files for height %d", ErrCorruptedStore, count, max)
	}
	return max, true, nil
}

// Read loads the block stored at index.
func (s *BlockStore) Read(index uint64) (*core.Block, error) {
	data, err := os.ReadFile(s.path(index))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing block file %d", ErrCorruptedStore, index)
		}
		return nil, fmt.Errorf("read block %d: %w", index, err)
	}
	var b core.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: block file %d: %v", ErrCorruptedStore, index, err)
	}
	return &b, nil
}

// Write persists a block. The write goes through a temp file and a
// rename so a crash cannot leave a truncated block file behind.
func (s *BlockStore) Write(b *core.Block) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode block %d: %w", b.Index, err)
	}
	tmp := s.path(b.Index) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}
	if err := os.Rename(tmp, s.path(b.Index)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}
	return nil
}
