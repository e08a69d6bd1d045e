package config

import (
	"fmt"
	"io"

	yaml "go.yaml.in/yaml/v3"
)

// Permission is the result of resolving an uploader key (or the special
// "unsigned" pseudo-key) against a distribution's uploader policy.
type Permission struct {
	// AllowAll is true when this key/identity may upload anything to the
	// distribution. §4.5 only ever asks "does this key grant all", so no
	// finer-grained permission is modeled.
	AllowAll bool
}

// Override is a per-package-name section/priority override, looked up by
// (distribution, file-type-specific table, package-name) in §4.7.
type Override struct {
	Section  string
	Priority string
}

// Tracking describes whether and how a distribution records per-source
// bookkeeping, per §4.7's "if a destination distribution's tracking options
// require recording the manifest itself" and §4.8 step 4.
type Tracking struct {
	Enabled         bool `yaml:"enabled"`
	IncludeManifest bool `yaml:"include_manifest"`
}

// Distribution is the per-distribution policy the permission evaluator,
// package preparer, and install planner consult: component lists, uploader
// permissions, overrides, and tracking options. It stands in for the
// "Override database" and the distribution-scoped half of the "Pool/index
// backend" collaborators named in §1.
type Distribution struct {
	Name string `yaml:"name"`

	// Components lists the archive components (e.g. "main", "contrib")
	// this distribution carries.
	Components []string `yaml:"components"`

	// UdebComponents restricts which components udebs may land in,
	// separate from Components, mirroring reprepro's own separate
	// udeb-component override search (see SPEC_FULL.md's supplemented
	// features).
	UdebComponents []string `yaml:"udeb_components"`

	// Uploaders maps a signer key identifier to the permission it holds.
	Uploaders map[string]Permission `yaml:"uploaders"`

	// Unsigned is the permission granted to a manifest with no valid
	// signature at all.
	Unsigned Permission `yaml:"unsigned"`

	// Overrides is keyed by file-type ("binary", "source", "udeb"), then
	// by package name.
	Overrides map[string]map[string]Override `yaml:"overrides"`

	Tracking Tracking `yaml:"tracking"`
}

// Permitted implements §4.5's uploader policy evaluation: if keys is empty,
// consult Unsigned; otherwise allow iff any key in keys maps to a
// permission granting all.
func (d *Distribution) Permitted(keys []string) bool {
	if len(keys) == 0 {
		return d.Unsigned.AllowAll
	}
	for _, k := range keys {
		if p, ok := d.Uploaders[k]; ok && p.AllowAll {
			return true
		}
	}
	return false
}

// HasUploaderPolicy reports whether this distribution restricts uploads at
// all; §4.5 treats a distribution with no policy as always-allowed.
func (d *Distribution) HasUploaderPolicy() bool {
	return len(d.Uploaders) > 0 || d.Unsigned.AllowAll
}

// Override looks up the override record for a package name within one
// file-type table ("binary", "source", "udeb").
func (d *Distribution) Override(fileType, pkgName string) (Override, bool) {
	table, ok := d.Overrides[fileType]
	if !ok {
		return Override{}, false
	}
	o, ok := table[pkgName]
	return o, ok
}

// HasComponent reports whether comp is one of this distribution's
// components.
func (d *Distribution) HasComponent(comp string) bool {
	for _, c := range d.Components {
		if c == comp {
			return true
		}
	}
	return false
}

// HasUdebComponent reports whether comp is one of this distribution's
// allowed udeb components.
func (d *Distribution) HasUdebComponent(comp string) bool {
	for _, c := range d.UdebComponents {
		if c == comp {
			return true
		}
	}
	return false
}

type distributionFile struct {
	Distributions []Distribution `yaml:"distributions"`
}

// LoadDistributions parses a distribution-policy file and returns its
// entries keyed by Name.
func LoadDistributions(r io.Reader) (map[string]*Distribution, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file distributionFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding distribution file: %w", err)
	}

	dists := make(map[string]*Distribution, len(file.Distributions))
	for i := range file.Distributions {
		d := file.Distributions[i]
		if d.Name == "" {
			return nil, fmt.Errorf("distribution missing Name")
		}
		if _, exists := dists[d.Name]; exists {
			return nil, fmt.Errorf("duplicate distribution name %q", d.Name)
		}
		dists[d.Name] = &d
	}
	return dists, nil
}
