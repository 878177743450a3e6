package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
)

// ReadPasswd resolves account through <rootfs>/etc/passwd.
func ReadPasswd(rootfs, account string) (spec.Identity, error) {
	if account == "" {
		return spec.Identity{}, appErr.ValidationError("account", "required")
	}
	path := filepath.Join(rootfs, "etc", "passwd")
	file, err := os.Open(path)
	if err != nil {
		return spec.Identity{}, appErr.Wrapf(err, appErr.IdentityResolveFailed, "open %s failed", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// name:password:uid:gid:gecos:home:shell
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] != account {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return spec.Identity{}, appErr.Wrapf(err, appErr.IdentityResolveFailed, "invalid uid for %s", account)
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return spec.Identity{}, appErr.Wrapf(err, appErr.IdentityResolveFailed, "invalid gid for %s", account)
		}
		return spec.Identity{UID: uid, GID: gid}, nil
	}
	if err := scanner.Err(); err != nil {
		return spec.Identity{}, appErr.Wrapf(err, appErr.IdentityResolveFailed, "read %s failed", path)
	}
	return spec.Identity{}, appErr.Newf(appErr.IdentityResolveFailed, "account %s not found in %s", account, path)
}
