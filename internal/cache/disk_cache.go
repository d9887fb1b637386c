package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DiskCache implements GenericCache for one generation stored in a directory
type DiskCache struct {
	cacheDir string
}

// NewDisk creates a new disk cache rooted at cacheDir
func NewDisk(cacheDir string) *DiskCache {
	return &DiskCache{
		cacheDir: cacheDir,
	}
}

func (d *DiskCache) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty cache key")
	}
	p := filepath.Join(d.cacheDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(d.cacheDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("cache key escapes cache directory: %s", key)
	}
	return p, nil
}

// Get retrieves cached data if it exists
func (d *DiskCache) Get(key string) ([]byte, error) {
	cachePath, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	return data, nil
}

// Set stores data in the cache. The file is written to a temporary name and
// renamed, so readers never observe a partial entry.
func (d *DiskCache) Set(key string, data []byte) error {
	cachePath, err := d.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, cachePath); err != nil {
		_ = os.Remove(tempName)
		return err
	}

	logrus.Debugf("Cached response: %s", cachePath)
	return nil
}

// Init ensures the cache directory exists
func (d *DiskCache) Init() error {
	return os.MkdirAll(d.cacheDir, 0755)
}

// DiskStorage keeps each generation in its own subdirectory of a root folder
type DiskStorage struct {
	root string
}

// NewDiskStorage creates the root folder and returns a storage over it
func NewDiskStorage(root string) (*DiskStorage, error) {
	if root == "" {
		return nil, errors.New("cache folder required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskStorage{root: root}, nil
}

func (s *DiskStorage) Open(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c := NewDisk(filepath.Join(s.root, name))
	if err := c.Init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *DiskStorage) Has(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *DiskStorage) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *DiskStorage) Delete(name string) (bool, error) {
	exists, err := s.Has(name)
	if err != nil || !exists {
		return false, err
	}
	if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
		return false, err
	}
	logrus.Debugf("Deleted cache generation %s", name)
	return true, nil
}

func (s *DiskStorage) Close() error {
	return nil
}
