// Package normalize maps file names recorded under a deployment root back to
// the names a user uploaded.
package normalize

import (
	"path"
	"strings"
)

const sourceDir = "source/"

// DeploymentPrefix returns the synthetic root files of deployment id live under.
func DeploymentPrefix(id string) string {
	return "/tmp/user_fn_" + id + "/"
}

// Name returns raw relative to the deployment root of id.
//
// raw is first resolved against the root, so absolute and relative forms of
// the same file agree. The root is stripped if present, then a leading
// "source/" is stripped. If neither applies raw is returned unchanged.
func Name(id, raw string) string {
	prefix := DeploymentPrefix(id)

	abs := raw
	if !path.IsAbs(abs) {
		abs = prefix + abs
	}
	abs = path.Clean(abs)

	name, matched := strings.CutPrefix(abs, prefix)
	if !matched {
		name = raw
	}
	if rest, ok := strings.CutPrefix(name, sourceDir); ok {
		name, matched = rest, true
	}
	if !matched {
		return raw
	}
	return name
}
