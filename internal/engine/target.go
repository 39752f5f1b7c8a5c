package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danieljhkim/monomigrate/internal/semverx"
	"github.com/danieljhkim/monomigrate/internal/workspace"
)

// workspacePackage is the pre-rename name of the tool root; versions
// below the rename threshold target it.
const (
	workspacePackage = "@nrwl/workspace"
	renameThreshold  = "14.0.0-beta.0"
)

// ParseTarget interprets the positional package-and-version argument:
// "pkg@version", "pkg@latest", bare "pkg", a version literal alone (the
// target package is then chosen by version threshold), or a dist-tag
// alone.
func ParseTarget(arg string) (pkg, version string, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", errors.New("no package or version specified")
	}

	if semverx.IsTag(arg) {
		return workspace.ToolPackage, arg, nil
	}

	if looksLikeVersion(arg) {
		v := semverx.NormalizeVersion(arg)
		if semverx.Lt(v, renameThreshold) {
			return workspacePackage, v, nil
		}
		return workspace.ToolPackage, v, nil
	}

	// Scoped packages start with "@"; split on the last separator.
	if sep := strings.LastIndex(arg, "@"); sep > 0 {
		name := arg[:sep]
		v := strings.TrimSpace(arg[sep+1:])
		if v == "" {
			return "", "", fmt.Errorf("incorrect package target %q: use package@version", arg)
		}
		return name, semverx.NormalizeVersionWithTagCheck(v), nil
	}

	return arg, semverx.TagLatest, nil
}

// looksLikeVersion reports whether arg reads as a version literal rather
// than a package name.
func looksLikeVersion(arg string) bool {
	s := strings.TrimPrefix(arg, "v")
	if s == "" {
		return false
	}
	return s[0] >= '0' && s[0] <= '9'
}
