package buildinfo

// Set at build time:
//
//	go build -ldflags "-X 'github.com/m3rciful/shopbot/core/buildinfo.Version=v0.3.0' \
//	  -X 'github.com/m3rciful/shopbot/core/buildinfo.Commit=abcdef0' \
//	  -X 'github.com/m3rciful/shopbot/core/buildinfo.Date=2026-10-19T12:00:00Z'" ./cmd/shopbot
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)
