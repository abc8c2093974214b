//go:build linux || darwin

package device

import (
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

func defaultRoots() []string {
	if runtime.GOOS == "darwin" {
		return []string{"/Volumes"}
	}
	user := os.Getenv("USER")
	roots := []string{}
	if user != "" {
		roots = append(roots,
			filepath.Join("/media", user),
			filepath.Join("/run/media", user),
		)
	}
	return append(roots, "/media", "/mnt")
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
