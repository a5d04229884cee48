package modules

import (
	"runtime/debug"
	"sync"
)

// Application info - centralized
const (
	AppName        = "focustrack"
	AppVersion     = "0.1.0"
	AppDescription = "Focus timer daemon with synchronized UI channels"
)

var (
	buildRevision     string
	buildRevisionOnce sync.Once
)

// BuildRevision returns the short VCS revision the binary was built from,
// with a "-dirty" suffix for modified trees, or "dev" when unknown
func BuildRevision() string {
	buildRevisionOnce.Do(func() {
		buildRevision = "dev"
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		var rev string
		dirty := false
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				rev = s.Value
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
		if rev == "" {
			return
		}
		if len(rev) > 8 {
			rev = rev[:8]
		}
		if dirty {
			rev += "-dirty"
		}
		buildRevision = rev
	})
	return buildRevision
}
