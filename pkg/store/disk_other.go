//go:build !linux && !darwin

package store

import (
	"errors"

	"github.com/rs/zerolog"
)

// CheckDiskSpace is not available on this platform.
func CheckDiskSpace(string) (*DiskSpaceInfo, error) {
	return nil, errors.New("store: disk stats not supported on this platform")
}

func checkDiskSpaceForWrite(string, int, zerolog.Logger) error {
	return nil
}
