// Package sig verifies the clearsigned signatures on incoming manifests;
// detached signatures are not handled. It is the mirror image of the teacher's release-signing code
// (deb/util.go's signBytes/extractPublicKey): where that code produces a
// signature, this package checks one, using the same ProtonMail/go-crypto
// stack.
package sig

import (
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// Result is the (body, valid-keys, all-keys, broken) record §4.2 requires
// from the manifest reader's signature-verification step.
type Result struct {
	// Body is the cleartext content, with the clearsign wrapper removed
	// (or the input verbatim, if it carried no signature at all).
	Body []byte
	// Keys holds the key identifier (16 hex digits) of every signature that
	// verified successfully against the given keyring.
	Keys []string
	// AllKeys holds the key identifier of every signature packet found,
	// whether or not it verified; a superset of Keys.
	AllKeys []string
	// Broken is true when signature packets were present but none of them
	// verified against the keyring.
	Broken bool
}

// Verify decodes a clearsigned manifest and checks every signature packet
// it carries against keyring. A file with no clearsign wrapper is treated
// as unsigned: Body is the input verbatim, Keys and AllKeys are empty, and
// Broken is false — absence of a signature is not a broken one, though the
// permission evaluator (§4.5) treats both the same way ("keys is empty").
func Verify(signed []byte, keyring openpgp.EntityList) (Result, error) {
	block, _ := clearsign.Decode(signed)
	if block == nil {
		return Result{Body: signed}, nil
	}

	r := Result{Body: block.Plaintext}

	reader := packet.NewReader(block.ArmoredSignature.Body)
	for {
		p, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return r, fmt.Errorf("reading signature packets: %w", err)
		}
		sigPacket, ok := p.(*packet.Signature)
		if !ok || sigPacket.IssuerKeyId == nil {
			continue
		}

		keyID := keyIDString(*sigPacket.IssuerKeyId)
		r.AllKeys = append(r.AllKeys, keyID)

		signer := findKey(keyring, *sigPacket.IssuerKeyId)
		if signer == nil {
			continue
		}

		h := sigPacket.Hash.New()
		if _, err := h.Write(block.Bytes); err != nil {
			return r, fmt.Errorf("hashing signed content: %w", err)
		}
		if err := signer.VerifySignature(h, sigPacket); err != nil {
			continue
		}
		r.Keys = append(r.Keys, keyID)
	}

	r.Broken = len(r.AllKeys) > 0 && len(r.Keys) == 0
	return r, nil
}

// ReadKeyring parses an ASCII-armored collection of public keys, the format
// an uploader-permission table references its trusted keys by.
func ReadKeyring(armored string) (openpgp.EntityList, error) {
	return openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
}

func keyIDString(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

// findKey locates the public key (primary or subkey) within keyring that
// owns the given key ID.
func findKey(keyring openpgp.EntityList, id uint64) *packet.PublicKey {
	for _, e := range keyring {
		if e.PrimaryKey != nil && e.PrimaryKey.KeyId == id {
			return e.PrimaryKey
		}
		for _, sk := range e.Subkeys {
			if sk.PublicKey != nil && sk.PublicKey.KeyId == id {
				return sk.PublicKey
			}
		}
	}
	return nil
}
