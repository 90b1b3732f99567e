package version

import "fmt"

// Injected at build time via -ldflags "-X dopahiyaa/pkg/version.Version=...".
var (
	Version       = "dev"
	GitCommit     = "unknown"
	BuildDate     = "unknown"
	ComponentName = "unknown"
)

// Info describes the running binary
type Info struct {
	Version       string `json:"version" yaml:"version"`
	GitCommit     string `json:"git_commit" yaml:"git_commit"`
	BuildDate     string `json:"build_date" yaml:"build_date"`
	ComponentName string `json:"component_name,omitempty" yaml:"component_name,omitempty"`
}

func GetInfo() Info {
	return Info{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		ComponentName: ComponentName,
	}
}

// GetShortCommit returns the first 7 characters of the commit hash
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

func (i Info) String() string {
	name := i.ComponentName
	if name == "" || name == "unknown" {
		name = "dopahiyaa"
	}
	return fmt.Sprintf("%s %s (%s, built %s)", name, i.Version, GetShortCommit(), i.BuildDate)
}
