package workspace

import (
	"fmt"
	"strings"

	"github.com/danieljhkim/monomigrate/internal/semverx"
)

// ParseVersionOverrides parses a --from/--to style value of the form
// "pkg1@version1,pkg2@version2" into a map. Versions go through
// tag-aware normalization so "latest" and "next" survive verbatim.
// optionName names the flag in error messages.
func ParseVersionOverrides(optionName, value string) (map[string]string, error) {
	overrides := make(map[string]string)
	if strings.TrimSpace(value) == "" {
		return overrides, nil
	}

	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		// Scoped packages start with "@", so split on the last separator.
		sep := strings.LastIndex(entry, "@")
		if sep <= 0 {
			return nil, malformedOverride(optionName)
		}
		name := strings.TrimSpace(entry[:sep])
		version := strings.TrimSpace(entry[sep+1:])
		if name == "" || version == "" {
			return nil, malformedOverride(optionName)
		}
		overrides[name] = semverx.NormalizeVersionWithTagCheck(version)
	}
	return overrides, nil
}

func malformedOverride(optionName string) error {
	return fmt.Errorf("incorrect '%s' section. Use --%s=\"package@version\"", optionName, optionName)
}
