//go:build !windows

package validation

import "syscall"

// volumeSpace returns total and free bytes for the filesystem holding path.
// Free counts only blocks available to unprivileged users.
func volumeSpace(path string) (total int64, free int64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return int64(st.Blocks) * int64(st.Bsize), int64(st.Bavail) * int64(st.Bsize), nil
}
