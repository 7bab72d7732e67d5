// Package artifacts owns the on-disk gallery: every generated image and the JSON
// sidecar that records how it was made. No other package writes to the storage root.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imagesynth/logging"
)

const (
	// DefaultListLimit caps gallery listings when the caller passes zero.
	DefaultListLimit = 50

	// TempFilePattern names in-progress writes; a crash can leave these behind.
	TempFilePattern = ".tmp-*"

	sidecarExt = ".json"
)

// Item is one gallery entry: a sidecar record paired with its existing image.
type Item struct {
	Record   Record
	Filename string // image file name inside the root
	Sidecar  string // sidecar file name inside the root
	ModTime  time.Time
}

// Store persists images with their sidecars under a single root directory.
//
// Image encoding happens outside the store mutex. Name selection, the final
// rename and the sidecar write run under it, as does Delete, so concurrent
// deletes of the same name are idempotent (the loser gets ErrNotFound) and
// name selection cannot race.
//
// Example:
//
//	store, err := artifacts.NewStore("output", logger)
//	rec, err := store.Persist(img, artifacts.Provenance{Prompt: "a lighthouse", Width: 1344, Height: 768, Format: artifacts.FormatJPEG})
//	items, err := store.List(0)
type Store struct {
	root   string
	logger *logging.Logger

	mu sync.Mutex

	now          func() time.Time
	encode       func(w io.Writer, img image.Image, format Format) error
	writeSidecar func(path string, data []byte) error
}

// NewStore creates root if needed and returns a Store over it.
func NewStore(root string, logger *logging.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifacts: storage root cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("artifacts: logger cannot be nil")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrStorageIO, root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStorageIO, abs, err)
	}
	return &Store{
		root:         abs,
		logger:       logger.Named("artifacts"),
		now:          time.Now,
		encode:       Encode,
		writeSidecar: writeFileAtomic,
	}, nil
}

// Root returns the absolute storage directory.
func (s *Store) Root() string {
	return s.root
}

// Persist encodes img, writes it, then writes the sidecar with the same base name.
//
// If the sidecar cannot be written the image is removed again, so a normal
// failure never leaves half an artifact. A crash between the two writes can
// leave an orphaned image; List skips those.
func (s *Store) Persist(img image.Image, p Provenance) (*Record, error) {
	if img == nil {
		return nil, fmt.Errorf("artifacts: image cannot be nil")
	}
	format, err := ParseFormat(string(p.Format))
	if err != nil {
		return nil, fmt.Errorf("artifacts: %w", err)
	}

	now := s.now()
	base := baseName(p.OutputName)
	if p.OutputName == "" {
		base = now.Format(timestampLayout) + "_" + Slugify(p.Prompt)
	}

	tmpName, err := s.encodeTemp(img, format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base = s.uniqueBase(base, format)
	imageName := base + format.Ext()
	imagePath := filepath.Join(s.root, imageName)

	if err := os.Rename(tmpName, imagePath); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("%w: rename image: %v", ErrStorageIO, err)
	}

	rec := &Record{
		Prompt:       p.Prompt,
		Width:        p.Width,
		Height:       p.Height,
		Format:       format,
		Steps:        p.Steps,
		Seed:         p.Seed,
		Model:        p.Model,
		Service:      p.Service,
		OriginalSize: p.OriginalSize,
		Timestamp:    now.Format(time.RFC3339),
		Filename:     imageName,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err == nil {
		err = s.writeSidecar(filepath.Join(s.root, base+sidecarExt), data)
	}
	if err != nil {
		if rmErr := os.Remove(imagePath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Error("failed to roll back image after sidecar failure",
				zap.String("filename", imageName), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("%w: write metadata for %s: %v", ErrStorageIO, imageName, err)
	}

	s.logger.Info("artifact persisted",
		zap.String("filename", imageName),
		zap.String("service", p.Service),
		zap.Int64("seed", p.Seed))
	return rec, nil
}

// uniqueBase appends an 8-hex-char suffix when either file for base already exists.
// Caller holds s.mu.
func (s *Store) uniqueBase(base string, format Format) string {
	candidate := base
	for s.exists(candidate+format.Ext()) || s.exists(candidate+sidecarExt) {
		candidate = base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return candidate
}

func (s *Store) exists(name string) bool {
	_, err := os.Lstat(filepath.Join(s.root, name))
	return err == nil
}

// encodeTemp encodes img into a new temp file in the root and returns its path.
func (s *Store) encodeTemp(img image.Image, format Format) (string, error) {
	tmp, err := os.CreateTemp(s.root, TempFilePattern+format.Ext())
	if err != nil {
		return "", fmt.Errorf("%w: create temp image: %v", ErrStorageIO, err)
	}
	tmpName := tmp.Name()

	if err := s.encode(tmp, img, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: encode %s: %v", ErrStorageIO, format, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: close temp image: %v", ErrStorageIO, err)
	}
	return tmpName, nil
}

// writeFileAtomic writes data to a temp file beside path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), TempFilePattern+sidecarExt)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Resolve maps a gallery filename to its absolute path inside the root.
// It returns ErrPathSecurity for names that escape the root and ErrNotFound
// for names that do not exist.
func (s *Store) Resolve(filename string) (string, error) {
	path, err := s.safePath(filename)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return path, nil
}

// safePath rejects anything but a plain file name directly under the root.
// No filesystem call is made before the name is accepted.
func (s *Store) safePath(filename string) (string, error) {
	if filename == "" || filename == "." ||
		strings.ContainsAny(filename, `/\`) ||
		strings.Contains(filename, "..") ||
		!filepath.IsLocal(filename) {
		return "", fmt.Errorf("%w: %q", ErrPathSecurity, filename)
	}
	path := filepath.Join(s.root, filename)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel != filename {
		return "", fmt.Errorf("%w: %q", ErrPathSecurity, filename)
	}
	return path, nil
}

// Delete removes an image and then its sidecar. A missing sidecar is not an error.
//
// Returns ErrPathSecurity before touching the filesystem when filename escapes
// the root, and ErrNotFound when the image is absent (including when a
// concurrent Delete already removed it).
func (s *Store) Delete(filename string) error {
	imagePath, err := s.safePath(filename)
	if err != nil {
		s.logger.Warn("rejected delete outside storage root", zap.String("filename", filename))
		return err
	}
	if strings.EqualFold(filepath.Ext(filename), sidecarExt) {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	sidecarPath := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + sidecarExt

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(imagePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return fmt.Errorf("%w: delete %s: %v", ErrStorageIO, filename, err)
	}
	if err := os.Remove(sidecarPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete metadata for %s: %v", ErrStorageIO, filename, err)
	}

	s.logger.Info("artifact deleted", zap.String("filename", filename))
	return nil
}

// List returns up to limit gallery items, newest sidecar first.
//
// Sidecars whose image is missing are skipped silently; sidecars that cannot
// be read or parsed are skipped with a warning. limit <= 0 means DefaultListLimit.
func (s *Store) List(limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageIO, s.root, err)
	}

	var items []Item
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != sidecarExt {
			continue
		}
		item, ok := s.loadItem(entry)
		if ok {
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].ModTime.Equal(items[j].ModTime) {
			return items[i].ModTime.After(items[j].ModTime)
		}
		return items[i].Sidecar > items[j].Sidecar
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) loadItem(entry fs.DirEntry) (Item, bool) {
	name := entry.Name()
	info, err := entry.Info()
	if err != nil {
		// removed between ReadDir and Info
		return Item{}, false
	}

	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		s.logger.Warn("skipping unreadable metadata", zap.String("sidecar", name), zap.Error(err))
		return Item{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("skipping invalid metadata", zap.String("sidecar", name), zap.Error(err))
		return Item{}, false
	}

	imageName := strings.TrimSuffix(name, sidecarExt) + rec.ImageFormat().Ext()
	if !s.exists(imageName) {
		return Item{}, false
	}

	return Item{
		Record:   rec,
		Filename: imageName,
		Sidecar:  name,
		ModTime:  info.ModTime(),
	}, true
}
