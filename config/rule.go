// Package config loads the YAML-encoded configuration the incoming-queue
// core needs but does not parse itself: named processing rules (§6) and
// per-distribution policy (uploader permissions, component lists,
// overrides, tracking options). It plays the role of the external "Config
// loader" and "Override database" collaborators named in §1, using
// go.yaml.in/yaml/v3 the same way the teacher's manifest/repository.go
// loads its own YAML manifests.
package config

import (
	"fmt"
	"io"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// reservedTokens are flags reprepro's original incoming.c recognizes but
// never wires in. Per SPEC_FULL.md's Open Question decision, a rule file
// naming one of these is rejected at load time rather than silently
// accepted and ignored.
var reservedTokens = map[string]bool{
	"downgrade":           true,
	"on_deny_check_owner": true,
}

// StringSet is a small set of tokens that accepts either a YAML sequence of
// strings or a single whitespace-separated scalar, mirroring the textual
// "set-valued" grammar §6 describes for Permit and Cleanup.
type StringSet map[string]bool

// UnmarshalYAML implements flexible decoding for StringSet.
func (s *StringSet) UnmarshalYAML(value *yaml.Node) error {
	*s = make(StringSet)
	switch value.Kind {
	case yaml.ScalarNode:
		var scalar string
		if err := value.Decode(&scalar); err != nil {
			return err
		}
		for _, tok := range strings.Fields(scalar) {
			(*s)[tok] = true
		}
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		for _, tok := range list {
			(*s)[tok] = true
		}
	default:
		return fmt.Errorf("expected scalar or sequence for set value")
	}
	return nil
}

// Has reports whether tok is present in the set.
func (s StringSet) Has(tok string) bool { return s[tok] }

// AllowEntry is one (distribution-name-pattern, distribution-ref) pair from
// a rule's Allow list.
type AllowEntry struct {
	Pattern string
	Into    string
}

// AllowList is the ordered Allow field, accepting either a YAML sequence of
// "pattern|into" strings or a single whitespace-separated scalar of the
// same tokens, matching §6's textual grammar.
type AllowList []AllowEntry

// UnmarshalYAML implements flexible decoding for AllowList.
func (a *AllowList) UnmarshalYAML(value *yaml.Node) error {
	var tokens []string
	switch value.Kind {
	case yaml.ScalarNode:
		var scalar string
		if err := value.Decode(&scalar); err != nil {
			return err
		}
		tokens = strings.Fields(scalar)
	case yaml.SequenceNode:
		if err := value.Decode(&tokens); err != nil {
			return err
		}
	default:
		return fmt.Errorf("expected scalar or sequence for allow value")
	}

	for _, tok := range tokens {
		parts := strings.SplitN(tok, "|", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("malformed allow entry %q, expected dist|dist", tok)
		}
		*a = append(*a, AllowEntry{Pattern: parts[0], Into: parts[1]})
	}
	return nil
}

// Rule is the Go name for the specification's IncomingRule: an immutable,
// named processing rule loaded from a rule file.
type Rule struct {
	Name        string    `yaml:"name"`
	TempDir     string    `yaml:"tempdir"`
	IncomingDir string    `yaml:"incomingdir"`
	Default     string    `yaml:"default"`
	Allow       AllowList `yaml:"allow"`
	Multiple    bool      `yaml:"multiple"`
	Permit      StringSet `yaml:"permit"`
	Cleanup     StringSet `yaml:"cleanup"`
}

// PermitUnusedFiles reports whether the rule's Permit set allows files the
// manifest never used to remain un-deleted without being a fatal condition.
func (r *Rule) PermitUnusedFiles() bool { return r.Permit.Has("unused_files") }

// PermitOlderVersion reports whether the rule allows installing a package
// older than what the index already has.
func (r *Rule) PermitOlderVersion() bool { return r.Permit.Has("older_version") }

// CleanupOnDeny reports whether a permission-denied manifest's files should
// be deleted.
func (r *Rule) CleanupOnDeny() bool { return r.Cleanup.Has("on_deny") }

// CleanupOnError reports whether a manifest that failed after a partial
// commit should have its files deleted.
func (r *Rule) CleanupOnError() bool { return r.Cleanup.Has("on_error") }

// CleanupUnusedFiles reports whether files the manifest never used should
// additionally be queued for deletion.
func (r *Rule) CleanupUnusedFiles() bool { return r.Cleanup.Has("unused_files") }

// validate checks the invariants §6 places on a single rule.
func (r *Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule missing Name")
	}
	if r.TempDir == "" {
		return fmt.Errorf("rule %s: missing TempDir", r.Name)
	}
	if r.IncomingDir == "" {
		return fmt.Errorf("rule %s: missing IncomingDir", r.Name)
	}
	if len(r.Allow) == 0 && r.Default == "" {
		return fmt.Errorf("rule %s: must set Allow or Default", r.Name)
	}
	for tok := range r.Permit {
		if reservedTokens[tok] {
			return fmt.Errorf("rule %s: Permit token %q is reserved and not implemented", r.Name, tok)
		}
		if tok != "unused_files" && tok != "older_version" {
			return fmt.Errorf("rule %s: unrecognized Permit token %q", r.Name, tok)
		}
	}
	for tok := range r.Cleanup {
		if reservedTokens[tok] {
			return fmt.Errorf("rule %s: Cleanup token %q is reserved and not implemented", r.Name, tok)
		}
		if tok != "unused_files" && tok != "on_deny" && tok != "on_error" {
			return fmt.Errorf("rule %s: unrecognized Cleanup token %q", r.Name, tok)
		}
	}
	return nil
}

// ruleFile is the on-disk shape of a rule file: a named list of rules.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses a rule file and returns its rules keyed by Name. A
// duplicate Name, or a rule satisfying neither Allow nor Default, is fatal,
// per §6.
func LoadRules(r io.Reader) (map[string]*Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file ruleFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding rule file: %w", err)
	}

	rules := make(map[string]*Rule, len(file.Rules))
	for i := range file.Rules {
		rule := file.Rules[i]
		if err := rule.validate(); err != nil {
			return nil, err
		}
		if _, exists := rules[rule.Name]; exists {
			return nil, fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		rules[rule.Name] = &rule
	}
	return rules, nil
}
