package workspace

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/jsonutil"
)

// NxJSONFile is the workspace configuration file name.
const NxJSONFile = "nx.json"

// NxJSON is a parsed nx.json. Only the installation block is mutated;
// every other field passes through untouched.
type NxJSON struct {
	fields          *jsonutil.Object
	trailingNewline bool
}

// ReadNxJSON reads and parses the workspace configuration at root.
// Returns os.ErrNotExist (wrapped) when the file is absent.
func ReadNxJSON(fs fsops.FS, root string) (*NxJSON, error) {
	data, err := fs.ReadFile(filepath.Join(root, NxJSONFile))
	if err != nil {
		return nil, err
	}
	fields := jsonutil.NewObject()
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, fmt.Errorf("invalid nx.json: %w", err)
	}
	return &NxJSON{
		fields:          fields,
		trailingNewline: len(data) > 0 && data[len(data)-1] == '\n',
	}, nil
}

// HasInstallation reports whether the configuration declares an
// installation block.
func (n *NxJSON) HasInstallation() bool {
	_, ok := n.fields.Get("installation")
	return ok
}

// InstallationVersion returns the pinned tool version, if any.
func (n *NxJSON) InstallationVersion() string {
	inst, ok, err := n.fields.GetObject("installation")
	if !ok || err != nil {
		return ""
	}
	v, _ := inst.GetString("version")
	return v
}

// PluginPins returns the pinned plugin versions from the installation
// block.
func (n *NxJSON) PluginPins() map[string]string {
	inst, ok, err := n.fields.GetObject("installation")
	if !ok || err != nil {
		return nil
	}
	plugins, ok, err := inst.GetObject("plugins")
	if !ok || err != nil {
		return nil
	}
	out := make(map[string]string, plugins.Len())
	for _, key := range plugins.Keys() {
		if v, ok := plugins.GetString(key); ok {
			out[key] = v
		}
	}
	return out
}

// UpdateInstallation sets installation.version and updates any plugin
// pins whose package appears in versions. A configuration without an
// installation block is left untouched.
func (n *NxJSON) UpdateInstallation(toolVersion string, versions map[string]string) error {
	inst, ok, err := n.fields.GetObject("installation")
	if err != nil {
		return fmt.Errorf("invalid installation block: %w", err)
	}
	if !ok {
		return nil
	}

	inst.Set("version", jsonutil.String(toolVersion))

	plugins, hasPlugins, err := inst.GetObject("plugins")
	if err != nil {
		return fmt.Errorf("invalid installation plugins: %w", err)
	}
	if hasPlugins {
		for _, plugin := range plugins.Keys() {
			if v, ok := versions[plugin]; ok {
				plugins.Set(plugin, jsonutil.String(v))
			}
		}
		raw, err := json.Marshal(plugins)
		if err != nil {
			return err
		}
		inst.Set("plugins", raw)
	}

	raw, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	n.fields.Set("installation", raw)
	return nil
}

// Write serializes the configuration back to root, preserving field
// order and trailing-newline formatting.
func (n *NxJSON) Write(fs fsops.FS, root string) error {
	compact, err := json.Marshal(n.fields)
	if err != nil {
		return fmt.Errorf("failed to serialize nx.json: %w", err)
	}
	out, err := jsonutil.Indent(compact)
	if err != nil {
		return err
	}
	if n.trailingNewline {
		out = append(out, '\n')
	}
	return fs.AtomicWrite(filepath.Join(root, NxJSONFile), out, 0644)
}
