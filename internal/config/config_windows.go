//go:build windows

package config

import "os"

// openConfigFile opens path. Windows has no O_NOFOLLOW.
func openConfigFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

// checkFileSecurity is a no-op; Windows access control lives in ACLs.
func checkFileSecurity(info os.FileInfo) error {
	return nil
}
