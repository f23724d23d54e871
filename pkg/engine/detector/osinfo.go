package detector

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
)

// efiBootArch maps the EFI boot loader filename shipped on installation
// media to the CPU architecture it implies.
var efiBootArch = map[string]string{
	"BOOTX64.EFI":         "x86_64",
	"BOOTAA64.EFI":        "aarch64",
	"BOOTLOONGARCH64.EFI": "loongarch64",
	"BOOTRISCV64.EFI":     "riscv64",
}

// ProbeOS inspects a mounted image tree for operating system metadata:
// the architecture comes from the EFI boot loader name, the distribution
// name and version from the image filename. Distribution image names
// follow "<name>-<version...>-<arch>-<medium>", so anything with fewer
// than five hyphen-separated parts only yields the name.
func ProbeOS(root, imageName string) sbom.OSInfo {
	info := sbom.OSInfo{Arch: probeArch(root)}

	parts := strings.Split(imageName, "-")
	if len(parts) >= 5 {
		info.Name = parts[0]
		info.Version = strings.Join(parts[1:len(parts)-2], "-")
	} else if len(parts) > 0 {
		info.Name = parts[0]
	}
	return info
}

func probeArch(root string) string {
	arch := ""
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if a, ok := efiBootArch[strings.ToUpper(d.Name())]; ok {
			arch = a
			return fs.SkipAll
		}
		return nil
	})
	return arch
}
