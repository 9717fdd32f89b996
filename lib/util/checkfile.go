package util

import (
	"os"
)

// CheckFileExists reports whether fpath names an existing file.
func CheckFileExists(fpath string) bool {
	_, e := os.Stat(fpath)
	return e == nil
}
