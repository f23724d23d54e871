package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// isoMount is a FUSE mount of an ISO image under a private temp directory.
type isoMount struct {
	Dir     string
	mounted bool
}

// mountISO mounts the image read-only via fuseiso. FUSE keeps the whole
// operation unprivileged, which is why it is preferred over mount -o loop.
func mountISO(ctx context.Context, isoPath string) (*isoMount, error) {
	if _, err := os.Stat(isoPath); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("fuseiso"); err != nil {
		return nil, fmt.Errorf("fuseiso not found in PATH (install it, or mount the image yourself and pass --mount-root)")
	}

	dir, err := os.MkdirTemp("", "xlin-sbom-mount-")
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "fuseiso", isoPath, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("fuseiso: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return &isoMount{Dir: dir, mounted: true}, nil
}

// Unmount detaches the image and removes the temp directory. Failures are
// logged, not returned: by this point the scan outcome is already decided.
func (m *isoMount) Unmount() {
	if !m.mounted {
		return
	}
	m.mounted = false

	if out, err := exec.Command("fusermount", "-u", m.Dir).CombinedOutput(); err != nil {
		slog.Warn("unmount failed, mount point left behind",
			"dir", m.Dir, "error", err, "output", strings.TrimSpace(string(out)))
		return
	}
	if err := os.Remove(m.Dir); err != nil {
		slog.Warn("could not remove mount directory", "dir", m.Dir, "error", err)
	}
}
