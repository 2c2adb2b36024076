// Package buildinfo holds version metadata injected at link time via
// -ldflags, surfaced in the CLI's --version output and the /healthz
// response.
package buildinfo

// Version is overridden at build time: -ldflags "-X
// github.com/kairos-labs/gca-proxy/internal/buildinfo.Version=...".
var Version = "dev"
