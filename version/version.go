package version

// Version is the Major.Minor.Patch tag of the build, set by the Makefile with
// -ldflags "-X github.com/jake-scott/kasa-cli/version.Version=..." - else 'dev'
var Version = "dev"
