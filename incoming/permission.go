package incoming

import (
	"strings"

	"github.com/archivekeep/incoming-queue/config"
)

// ResolveDistributions implements §4.5's destination-name resolution: for
// each name the manifest declares, find the first Allow entry whose
// Pattern matches it; fall back to Default if nothing matched; and, unless
// rule.Multiple is set, keep only the first match.
func ResolveDistributions(rule *config.Rule, candidate *Candidate) []string {
	var matches []string
	for _, name := range candidate.Distributions {
		for _, entry := range rule.Allow {
			if entry.Pattern == name {
				matches = append(matches, entry.Into)
				break
			}
		}
	}
	if len(matches) == 0 && rule.Default != "" {
		matches = []string{rule.Default}
	}
	if !rule.Multiple && len(matches) > 1 {
		matches = matches[:1]
	}
	return matches
}

// EvaluatePermissions implements the uploader-policy half of §4.5: given
// the resolved destination refs, keep only those the candidate's signer
// keys (or unsigned policy) are permitted to upload to. It rejects the
// whole manifest with PermissionDenied if none of the resolved
// distributions grant permission.
func EvaluatePermissions(candidate *Candidate, dists map[string]*config.Distribution, matches []string) ([]string, error) {
	if len(matches) == 0 {
		return nil, newError(PermissionDenied, "no distribution in manifest's Distribution field matched any allow rule or default")
	}

	var allowed []string
	for _, name := range matches {
		dist, ok := dists[name]
		if !ok || !dist.HasUploaderPolicy() {
			allowed = append(allowed, name)
			continue
		}
		if dist.Permitted(candidate.Keys) {
			allowed = append(allowed, name)
		}
	}

	if len(allowed) == 0 {
		detail := "no valid signature"
		if len(candidate.AllKeys) > 0 {
			detail = "keys that would have permitted this upload if trusted: " + strings.Join(candidate.AllKeys, ", ")
		}
		return nil, newError(PermissionDenied, "upload denied by uploader policy for %s (%s)", strings.Join(matches, ", "), detail)
	}
	return allowed, nil
}
