package main

import "fmt"

// Set at build time with -ldflags "-X main.gitSHA1=...".
var (
	version   string = "0.1.0"
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
)

func Version() string {
	v := version
	if gitSHA1 != "unknown" && gitSHA1 != "" {
		v = fmt.Sprintf("%s (git:%s", v, gitSHA1)
		if gitDirty != "unknown" && gitDirty != "0" && gitDirty != "" {
			v += "-dirty"
		}
		v += ")"
	}
	if buildDate != "unknown" {
		v = fmt.Sprintf("%s built %s", v, buildDate)
	}
	return v
}
