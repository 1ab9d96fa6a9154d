//go:build linux || darwin

package store

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// CheckDiskSpace returns disk space information for dir.
func CheckDiskSpace(dir string) (*DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(dir), &stat); err != nil {
			return nil, fmt.Errorf("store: failed to get disk stats: %w", err)
		}
	}

	bsize := uint64(stat.Bsize)
	total := uint64(stat.Blocks) * bsize
	free := uint64(stat.Bfree) * bsize
	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}
	return &DiskSpaceInfo{
		Total:     total,
		Available: uint64(stat.Bavail) * bsize,
		UsedPct:   usedPct,
	}, nil
}

func checkDiskSpaceForWrite(dir string, size int, log zerolog.Logger) error {
	info, err := CheckDiskSpace(dir)
	if err != nil {
		// stats unavailable must not block a write
		log.Warn().Err(err).Msg("failed to check disk space")
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if uint64(size*2) > required {
		required = uint64(size * 2)
	}
	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk, info.Available/(1024*1024), required/(1024*1024))
	}
	if info.UsedPct >= 90 {
		log.Warn().Int("used_pct", info.UsedPct).Msg("disk nearly full")
	}
	return nil
}
