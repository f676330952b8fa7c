// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitRelease is the tagged release, set at build time.
	GitRelease = "dev"
	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit timestamp.
	GitCommitDate = "unknown"
	// GoInfo describes the toolchain and platform.
	GoInfo = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)
