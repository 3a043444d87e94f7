package tokencache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/and161185/campus-board/internal/model"
)

// FileStore persists the slot as a JSON file readable only by the owner.
type FileStore struct {
	Path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

// Load reads the token; a missing file is not an error.
func (s *FileStore) Load() (model.PostingToken, bool, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.PostingToken{}, false, nil
	}
	if err != nil {
		return model.PostingToken{}, false, err
	}
	var tok model.PostingToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return model.PostingToken{}, false, err
	}
	return tok, tok.Secret != "", nil
}

// Save writes the token with 0600 permissions.
func (s *FileStore) Save(tok model.PostingToken) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, b, 0o600)
}

// Clear removes the file.
func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
