package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// DefaultMinFreeBytes is the free space the output directory needs before
// the server accepts generation requests. A FLUX PNG at 1024x1024 is a few MB.
const DefaultMinFreeBytes uint64 = 200 * humanize.MiByte

// DiskSpaceInfo describes the filesystem holding a path.
type DiskSpaceInfo struct {
	Path  string
	Total int64
	Free  int64
}

// Used returns the bytes in use.
func (d DiskSpaceInfo) Used() int64 { return d.Total - d.Free }

// UsedPercent returns Used as a percentage of Total.
func (d DiskSpaceInfo) UsedPercent() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Used()) / float64(d.Total) * 100
}

// String renders free and total in IEC units.
func (d DiskSpaceInfo) String() string {
	return fmt.Sprintf("%s free of %s", humanize.IBytes(uint64(d.Free)), humanize.IBytes(uint64(d.Total)))
}

// DiskSpaceError reports a volume with less free space than required.
type DiskSpaceError struct {
	Path      string
	Required  uint64
	Available uint64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, humanize.IBytes(e.Required), humanize.IBytes(e.Available))
}

// GetDiskSpace reports space for the filesystem containing path. A path that
// does not exist yet is resolved against its nearest existing ancestor, so the
// output directory can be checked before it is created.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return nil, err
	}
	total, free, err := volumeSpace(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}
	return &DiskSpaceInfo{Path: dir, Total: total, Free: free}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when fewer than required bytes are free.
func CheckDiskSpace(path string, required uint64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}
	if info.Free < 0 || uint64(info.Free) < required {
		return &DiskSpaceError{Path: path, Required: required, Available: uint64(max(info.Free, 0))}
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", path, err)
	}
	for {
		info, err := os.Stat(abs)
		if err == nil {
			if info.IsDir() {
				return abs, nil
			}
			return filepath.Dir(abs), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("cannot access path %s: %w", abs, err)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("cannot access path %s: %w", path, err)
		}
		abs = parent
	}
}
