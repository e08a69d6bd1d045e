package deb

import (
	"io"
	"strings"
	"time"

	"github.com/blakesmith/ar"
)

// countingWriter wraps an io.Writer and counts the bytes written.
// It is typically used to calculate the size of a file or archive entry
// as it is being written.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write writes p to the underlying io.Writer and increments the byte count.
func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// addBufferToAr writes a named byte slice as a file entry to the AR archive.
// It constructs the AR header with mode 0644 and the current timestamp.
func addBufferToAr(w *ar.Writer, name string, body []byte) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ParseStanza splits an RFC822-style control stanza into a map of field name
// to raw (possibly multi-line) value. Folded continuation lines are kept
// on their own lines; the whole value is then trimmed of surrounding
// whitespace, so the first continuation line loses its leading whitespace
// while later ones keep it. It is the generic tokenizer behind
// parseControlFile, reused by the manifest and source-description readers
// which have field sets parseControlFile/Metadata does not know about.
func ParseStanza(content string) map[string]string {
	fields := make(map[string]string)
	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			fields[currentKey] = strings.TrimSpace(currentValue.String())
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			currentValue.WriteString("\n" + line)
		} else if strings.Contains(line, ":") {
			flush()
			parts := strings.SplitN(line, ":", 2)
			currentKey = strings.TrimSpace(parts[0])
			currentValue.Reset()
			currentValue.WriteString(strings.TrimSpace(parts[1]))
		}
	}
	flush()
	return fields
}

// parseControlFile parses the content of a Debian control file and populates the Metadata struct.
// It handles standard fields mapping to struct fields and puts unknown fields into ExtraFields.
// It also handles multiline values (folded fields).
func parseControlFile(content string, m *Metadata) error {
	for key, val := range ParseStanza(content) {
		switch ControlField(key) {
		case FieldPackage:
			m.Package = val
		case FieldVersion:
			m.Version = val
		case FieldArchitecture:
			m.Architecture = val
		case FieldMaintainer:
			m.Maintainer = val
		case FieldDescription:
			m.Description = val
		case FieldSection:
			m.Section = val
		case FieldPriority:
			m.Priority = val
		case FieldHomepage:
			m.Homepage = val
		case FieldEssential:
			m.Essential = (val == "yes")
		case FieldDepends:
			m.Depends = splitList(val)
		case FieldPreDepends:
			m.PreDepends = splitList(val)
		case FieldRecommends:
			m.Recommends = splitList(val)
		case FieldSuggests:
			m.Suggests = splitList(val)
		case FieldEnhances:
			m.Enhances = splitList(val)
		case FieldConflicts:
			m.Conflicts = splitList(val)
		case FieldBreaks:
			m.Breaks = splitList(val)
		case FieldReplaces:
			m.Replaces = splitList(val)
		case FieldProvides:
			m.Provides = splitList(val)
		case FieldBuiltUsing:
			m.BuiltUsing = val
		case FieldSource:
			m.Source = val
		case FieldInstalledSize:
			// ignore installed size when reading
		default:
			m.ExtraFields[key] = val
		}
	}
	return nil
}

// splitList splits a comma-separated string into a slice of strings, trimming whitespace from each element.
// It returns nil if the input string is empty.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var res []string
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}
