package build

// CurrentCommit is set at link time:
// -ldflags "-X github.com/manatee-project/manatee-jobs/build.CurrentCommit=$(git rev-parse --short HEAD)"
var CurrentCommit string

const BuildVersion = "0.3.0"

func UserVersion() string {
	if CurrentCommit == "" {
		return BuildVersion
	}
	return BuildVersion + "+git." + CurrentCommit
}
