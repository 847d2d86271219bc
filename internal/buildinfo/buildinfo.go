// Package buildinfo carries version data stamped in with -ldflags.
package buildinfo

import "runtime"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}

// String renders a one-line version banner for CLI output.
func String() string {
    s := Version
    if Commit != "" { s += " (" + Commit + ")" }
    if BuiltAt != "" { s += " built " + BuiltAt }
    return s
}
