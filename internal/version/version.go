package version

import (
	"runtime/debug"
	"sync"
)

var (
	version string
	once    sync.Once
)

// Get returns the module version embedded in the build, falling back to the
// VCS revision and finally "dev" for local builds.
func Get() string {
	once.Do(func() {
		version = "dev"
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
			return
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				version = "dev-" + setting.Value[:7]
				return
			}
		}
	})
	return version
}
