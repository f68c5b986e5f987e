package gsplat

import "fmt"

// Set via -ldflags "-X github.com/gekko3d/gsplat.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// VersionTemplate is the cobra version template.
func VersionTemplate() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}
