// Package blob stores file attachments on disk under content-hash names
// and serves them back through public /cdn/ URLs.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type Store struct {
	mutex   sync.Mutex
	root    string
	baseURL string
}

func NewStore(root string, baseURL string) *Store {
	return &Store{root: root, baseURL: baseURL}
}

// Upload writes the bytes under bucket/<hash><ext of key> and returns the
// blob path. Re-uploading identical content is a no-op returning the same
// path.
func (s *Store) Upload(bucket string, key string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty_file")
	}

	hash := sha256.Sum256(data)
	fileName := hex.EncodeToString(hash[:]) + filepath.Ext(key)

	folderPath := filepath.Join(s.root, bucket)
	fullPath := filepath.Join(folderPath, fileName)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := os.MkdirAll(folderPath, os.ModePerm)
	if err != nil {
		return "", err
	}

	// identical content already stored under the same hash
	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		err = os.WriteFile(fullPath, data, 0644)
		if err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	return filepath.Join(bucket, fileName), nil
}

func (s *Store) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/cdn/%s", s.baseURL, path)
}
