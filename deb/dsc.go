package deb

import (
	"fmt"
	"strings"
)

// DscFile describes one entry of a .dsc Files/Checksums-* list: a filename
// that belongs to the source package, plus whatever digests were declared
// for it across every list the stanza carried.
type DscFile struct {
	Name      string
	Checksums Checksums
}

// Dsc is the parsed form of a Debian source package description (.dsc).
// It mirrors the subset of a binary Package's Metadata that matters to the
// incoming queue: identity fields plus the list of files the source package
// is made of.
type Dsc struct {
	Source           string
	Version          string
	Format           string
	StandardsVersion string
	Maintainer       string
	Architecture     string
	BuildDepends     []string
	Files            []DscFile

	// ExtraFields holds every other stanza field verbatim, so a rewritten
	// control record can reproduce them.
	ExtraFields map[string]string

	// raw is the stanza exactly as read. Fields this type does not model
	// explicitly are written back from ExtraFields.
	raw map[string]string
}

// ParseDsc parses the body of a .dsc file (the cleartext part, if it was
// clearsigned — signature verification is the sig package's job).
func ParseDsc(content string) (*Dsc, error) {
	fields := ParseStanza(content)

	d := &Dsc{
		Source:           fields[string(FieldSource)],
		Version:          fields[string(FieldVersion)],
		Format:           fields[string(FieldFormat)],
		StandardsVersion: fields[string(FieldStandardsVersion)],
		Maintainer:       fields[string(FieldMaintainer)],
		Architecture:     fields[string(FieldArchitecture)],
		BuildDepends:     splitList(fields["Build-Depends"]),
		ExtraFields:      make(map[string]string),
		raw:              fields,
	}
	if d.Source == "" || d.Version == "" {
		return nil, fmt.Errorf("dsc missing Source or Version field")
	}

	byName := make(map[string]*DscFile)
	var order []string

	addLines := func(body string, alg Algorithm) error {
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			tokens := strings.Fields(line)
			if len(tokens) < 3 {
				return fmt.Errorf("malformed %s line %q", alg, line)
			}
			digest := tokens[0]
			name := tokens[len(tokens)-1]
			var size int64
			if _, err := fmt.Sscanf(tokens[1], "%d", &size); err != nil {
				return fmt.Errorf("malformed size in %s line %q", alg, line)
			}

			f, ok := byName[name]
			if !ok {
				f = &DscFile{Name: name, Checksums: Checksums{Size: size, Digests: map[Algorithm]string{}}}
				byName[name] = f
				order = append(order, name)
			}
			merged, err := f.Checksums.Merge(Checksums{Size: size, Digests: map[Algorithm]string{alg: digest}})
			if err != nil {
				return fmt.Errorf("file %s: %w", name, err)
			}
			f.Checksums = merged
		}
		return nil
	}

	if files, ok := fields[string(FieldFiles)]; ok {
		if err := addLines(files, MD5); err != nil {
			return nil, err
		}
	}
	if s, ok := fields[string(FieldChecksumsSha1)]; ok {
		if err := addLines(s, SHA1); err != nil {
			return nil, err
		}
	}
	if s, ok := fields[string(FieldChecksumsSha256)]; ok {
		if err := addLines(s, SHA256); err != nil {
			return nil, err
		}
	}
	if s, ok := fields[string(FieldChecksumsSha512)]; ok {
		if err := addLines(s, SHA512); err != nil {
			return nil, err
		}
	}

	for _, name := range order {
		d.Files = append(d.Files, *byName[name])
	}

	known := map[string]bool{
		string(FieldSource): true, string(FieldVersion): true, string(FieldFormat): true,
		string(FieldStandardsVersion): true, string(FieldMaintainer): true, string(FieldArchitecture): true,
		"Build-Depends": true, string(FieldFiles): true, string(FieldChecksumsSha1): true,
		string(FieldChecksumsSha256): true, string(FieldChecksumsSha512): true,
	}
	for k, v := range fields {
		if !known[k] {
			d.ExtraFields[k] = v
		}
	}

	return d, nil
}

// String renders the Dsc back into a control stanza, sufficient for
// re-inclusion into an index's source record.
func (d *Dsc) String() string {
	var b strings.Builder
	writeField := func(name ControlField, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, value)
		}
	}
	writeField(FieldFormat, d.Format)
	writeField(FieldSource, d.Source)
	writeField(FieldVersion, d.Version)
	writeField(FieldMaintainer, d.Maintainer)
	writeField(FieldStandardsVersion, d.StandardsVersion)
	writeField(FieldArchitecture, d.Architecture)
	if len(d.BuildDepends) > 0 {
		writeField("Build-Depends", strings.Join(d.BuildDepends, ", "))
	}
	for k, v := range d.ExtraFields {
		writeField(ControlField(k), v)
	}
	if len(d.Files) > 0 {
		b.WriteString("Files:\n")
		for _, f := range d.Files {
			fmt.Fprintf(&b, " %s %d %s\n", f.Checksums.Digests[MD5], f.Checksums.Size, f.Name)
		}
	}
	return b.String()
}
