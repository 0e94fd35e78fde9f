package fs

import (
	"errors"
	"os"
	"time"

	"github.com/pkg/xattr"
)

// RecordTime records a timestamp on the given file as an extended attribute.
// It fails on filesystems without support for user xattrs; callers that need a fallback
// should also set the file's modification time.
func RecordTime(filename, xattrName string, t time.Time) error {
	value := []byte(t.UTC().Format(time.RFC3339Nano))
	if err := xattr.LSet(filename, xattrName, value); err != nil {
		var xerr *xattr.Error
		if errors.As(err, &xerr) && os.IsPermission(xerr.Err) {
			// Can't set xattrs without write permission... attempt to cheekily chmod it first.
			if info, err := os.Lstat(filename); err == nil {
				if err := os.Chmod(filename, info.Mode()|0200); err == nil {
					defer os.Chmod(filename, info.Mode())
					return xattr.LSet(filename, xattrName, value)
				}
			}
		}
		return err
	}
	return nil
}

// ReadTime reads a timestamp previously written by RecordTime.
// It returns false if there isn't one or it can't be read.
func ReadTime(filename, xattrName string) (time.Time, bool) {
	b, err := xattr.LGet(filename, xattrName)
	if err != nil {
		var xerr *xattr.Error
		if errors.As(err, &xerr) && !os.IsNotExist(xerr.Err) && xerr.Err != xattr.ENOATTR && !IsSymlink(filename) {
			log.Debug("Failed to read %s from %s: %s", xattrName, filename, err)
		}
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		log.Warning("Invalid timestamp in %s on %s: %s", xattrName, filename, err)
		return time.Time{}, false
	}
	return t, true
}
