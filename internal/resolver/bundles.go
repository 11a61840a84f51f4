package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"flowrunner/internal/logging"
)

const (
	manifestName = "plugin.toml"
	maxBundles   = 64
)

// Bundle is a set of step types shipped together.
type Bundle struct {
	Name     string
	Version  string
	Path     string
	Elements []string
}

// Element maps a step type to its implementation. Exactly one of Builtin
// or Command is set.
type Element struct {
	Type      string   `toml:"type"`
	Builtin   string   `toml:"builtin"`
	Command   string   `toml:"command"`
	Arguments []string `toml:"arguments"`
}

type manifest struct {
	Name     string    `toml:"name"`
	Version  string    `toml:"version"`
	Elements []Element `toml:"elements"`
}

func (r *Resolver) scan() {
	r.scanOnce.Do(func() {
		r.elements = make(map[string]Element)
		root := filepath.Join(r.configDir, "Plugins")
		entries, err := os.ReadDir(root)
		if err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("plugin directory unreadable", logging.String("path", root), logging.Error(err))
			}
			return
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if len(r.bundles) >= maxBundles {
				r.logger.Warn("plugin bundle limit reached", logging.Int("limit", maxBundles))
				return
			}
			dir := filepath.Join(root, entry.Name())
			b, elements, err := loadManifest(dir)
			if err != nil {
				if !os.IsNotExist(err) {
					logging.WarnWithContext(r.logger, "skipping plugin bundle", "plugin_manifest_invalid",
						logging.String("path", dir),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "fix or remove "+manifestName),
					)
				}
				continue
			}
			for _, el := range elements {
				if _, dup := r.elements[el.Type]; dup {
					r.logger.Debug("duplicate plugin step type ignored", logging.String("step_type", el.Type), logging.String("bundle", b.Name))
					continue
				}
				r.elements[el.Type] = el
			}
			r.bundles = append(r.bundles, b)
		}
	})
}

func loadManifest(dir string) (Bundle, []Element, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Bundle{}, nil, err
	}
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Bundle{}, nil, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	name := strings.TrimSpace(m.Name)
	if name == "" {
		name = filepath.Base(dir)
	}
	b := Bundle{Name: name, Version: strings.TrimSpace(m.Version), Path: dir}
	elements := make([]Element, 0, len(m.Elements))
	for i, el := range m.Elements {
		el.Type = strings.TrimSpace(el.Type)
		switch {
		case el.Type == "":
			return Bundle{}, nil, fmt.Errorf("element %d has no type", i)
		case (el.Builtin == "") == (el.Command == ""):
			return Bundle{}, nil, fmt.Errorf("element %s must set exactly one of builtin or command", el.Type)
		}
		if !strings.Contains(el.Type, ".") {
			el.Type = name + "." + el.Type
		}
		elements = append(elements, el)
		b.Elements = append(b.Elements, el.Type)
	}
	return b, elements, nil
}
