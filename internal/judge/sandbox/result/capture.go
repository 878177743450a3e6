package result

import (
	"io"

	appErr "chiko/pkg/errors"
)

// ReadCapture reads at most maxBytes from a captured stream file.
// An empty path yields an empty capture. The file may have been created by
// the confined process, so symlinks are not followed and anything but a
// regular file is refused.
func ReadCapture(path string, maxBytes int) (string, error) {
	if path == "" {
		return "", nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCaptureMaxBytes
	}
	file, err := openCapture(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CaptureFailed, "open capture %s failed", path).WithDetail("path", path)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CaptureFailed, "stat capture %s failed", path).WithDetail("path", path)
	}
	if !info.Mode().IsRegular() {
		return "", appErr.Newf(appErr.CaptureFailed, "capture %s is not a regular file", path).
			WithDetail("path", path).
			WithDetail("mode", info.Mode().String())
	}
	data, err := io.ReadAll(io.LimitReader(file, int64(maxBytes)))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CaptureFailed, "read capture %s failed", path).WithDetail("path", path)
	}
	return Truncate(string(data), maxBytes), nil
}
