// Package version exposes the build metadata stamped into the binaries.
//
// Version, Commit and BuildTime are overridden through Go ldflags by the
// release build; local builds fall back to the defaults. Short and Full
// render the metadata for CLI output and logs.
package version
