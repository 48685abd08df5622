// Package version holds the build version, set at link time with
// -ldflags "-X github.com/maxvaer/w3ccheck/pkg/version.Version=v1.2.3".
package version

var Version = "dev"
