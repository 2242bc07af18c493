package config

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DirectoryCheck is the outcome of probing one configured directory.
type DirectoryCheck struct {
	Name   string
	Path   string
	Passed bool
	Detail string
}

// CheckDirectories verifies the data and log directories exist and are
// readable and writable by the current process.
func (c *Config) CheckDirectories() []DirectoryCheck {
	return []DirectoryCheck{
		checkDirectoryAccess("data_dir", c.Paths.DataDir),
		checkDirectoryAccess("log_dir", c.Paths.LogDir),
	}
}

func checkDirectoryAccess(name, path string) DirectoryCheck {
	check := DirectoryCheck{Name: name, Path: path}
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		check.Detail = "does not exist"
	case err != nil:
		check.Detail = fmt.Sprintf("stat: %v", err)
	case !info.IsDir():
		check.Detail = "is not a directory"
	default:
		if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
			check.Detail = fmt.Sprintf("insufficient permissions: %v", err)
			break
		}
		check.Passed = true
		check.Detail = "read/write ok"
	}
	return check
}
