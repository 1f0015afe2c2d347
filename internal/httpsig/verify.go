package httpsig

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Result classifies the outcome of verifying a request signature.
type Result int

const (
	// ResultValid means the signature checks out; Verification.ActorID
	// names the actor whose key signed the request.
	ResultValid Result = iota
	// ResultInvalid means the signature parsed but does not match.
	ResultInvalid
	// ResultKeyNotFound means the keyId could not be resolved to a key.
	ResultKeyNotFound
	// ResultMalformed means the signature header could not be parsed.
	ResultMalformed
)

func (r Result) String() string {
	switch r {
	case ResultValid:
		return "valid"
	case ResultInvalid:
		return "invalid"
	case ResultKeyNotFound:
		return "key not found"
	case ResultMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Verification is the outcome of Verify. Err carries the reason for any
// result other than ResultValid; it is diagnostic, not actionable.
type Verification struct {
	Result  Result
	ActorID string
	Err     error
}

// KeyFunc resolves a keyId parameter to the public key it names.
type KeyFunc func(keyID string) (crypto.PublicKey, error)

// Verify checks the signature on req against the key resolved from its
// keyId parameter. The body, if non nil, is checked against the digest
// header when the digest is part of the signed set. Verify never
// panics: every parse failure classifies as ResultMalformed so the
// inbox can reject the request without treating it as a server fault.
func Verify(req *http.Request, body []byte, keyFn KeyFunc) Verification {
	params, err := parseSignatureHeader(req.Header.Get("Signature"))
	if err != nil {
		return Verification{Result: ResultMalformed, Err: err}
	}

	sig, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil {
		return Verification{Result: ResultMalformed, Err: fmt.Errorf("decode signature: %w", err)}
	}
	headers := strings.Fields(params["headers"])
	if len(headers) == 0 {
		return Verification{Result: ResultMalformed, Err: errors.New("empty headers parameter")}
	}

	keyID := params["keyId"]
	pubKey, err := keyFn(keyID)
	if err != nil {
		return Verification{Result: ResultKeyNotFound, Err: err}
	}
	actorID := trimKeyID(keyID)

	plain, err := signingString(req, headers)
	if err != nil {
		return Verification{Result: ResultMalformed, Err: err}
	}

	if body != nil && signedHeader(headers, "digest") {
		if err := checkDigest(req.Header.Get("Digest"), body); err != nil {
			return Verification{Result: ResultInvalid, ActorID: actorID, Err: err}
		}
	}

	digest := sha256.Sum256([]byte(plain))
	switch algo := params["algorithm"]; algo {
	case "rsa-sha256", "hs2019", "":
		// hs2019 leaves the algorithm to the key's metadata; every key
		// this system resolves is RSA.
		rsaKey, ok := pubKey.(*rsa.PublicKey)
		if !ok {
			return Verification{Result: ResultKeyNotFound, Err: fmt.Errorf("unsupported public key type %T", pubKey)}
		}
		if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], sig); err != nil {
			return Verification{Result: ResultInvalid, ActorID: actorID, Err: err}
		}
		return Verification{Result: ResultValid, ActorID: actorID}
	default:
		return Verification{Result: ResultInvalid, ActorID: actorID, Err: fmt.Errorf("unknown algorithm: %s", algo)}
	}
}

// parseSignatureHeader splits the Signature header into its parameter
// set. Parameters may appear in any order and values may or may not be
// quoted; both forms are seen in the wild.
func parseSignatureHeader(header string) (map[string]string, error) {
	if header == "" {
		return nil, errors.New("signature header is missing")
	}
	params := make(map[string]string)
	for _, part := range splitParams(header) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed signature part: %q", part)
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch k {
		case "keyId", "algorithm", "headers", "signature", "created", "expires":
			params[k] = v
		default:
			return nil, fmt.Errorf("unknown signature part: %q", part)
		}
	}
	if params["keyId"] == "" {
		return nil, errors.New("missing keyId parameter")
	}
	if params["signature"] == "" {
		return nil, errors.New("missing signature parameter")
	}
	return params, nil
}

// splitParams splits on commas outside quoted values. The headers
// parameter is space separated so a naive comma split would suffice,
// but some implementations quote commas inside keyId URLs.
func splitParams(header string) []string {
	var parts []string
	var sb strings.Builder
	inQuotes := false
	for _, r := range header {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			sb.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return parts
}

func signedHeader(headers []string, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func checkDigest(header string, body []byte) error {
	algo, want, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(algo, "SHA-256") {
		return fmt.Errorf("unsupported digest: %q", header)
	}
	digest := sha256.Sum256(body)
	got := base64.StdEncoding.EncodeToString(digest[:])
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errors.New("digest mismatch")
	}
	return nil
}

// trimKeyID removes the #main-key style fragment from a keyId, leaving
// the actor id it belongs to.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}
