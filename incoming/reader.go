package incoming

import (
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/archivekeep/incoming-queue/sig"
)

// Read implements §4.2's manifest reader: it stages state.Files[ofs] (the
// manifest itself, as CandidateFile 0), feeds the staged copy to the
// signature verifier, and returns the cleartext body plus the verifier's
// key/allkeys/broken record.
func Read(state *State, ofs int, keyring openpgp.EntityList) (*Candidate, error) {
	candidate := NewCandidate(ofs)

	if err := Stage(state, candidate, &candidate.Files[0]); err != nil {
		return candidate, err
	}

	raw, err := os.ReadFile(candidate.Files[0].TempFilename)
	if err != nil {
		return candidate, wrapError(IoError, err)
	}

	result, err := sig.Verify(raw, keyring)
	if err != nil {
		return candidate, wrapError(Malformed, err)
	}

	candidate.Keys = result.Keys
	candidate.AllKeys = result.AllKeys
	candidate.Broken = result.Broken
	candidate.rawBody = result.Body
	return candidate, nil
}
