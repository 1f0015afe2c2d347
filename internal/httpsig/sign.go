// Package httpsig implements the HTTP Signature scheme as defined in
// draft-cavage-http-signatures-10, binding a request to the actor key
// that produced it.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// ErrNoPrivateKey is returned by Sign when the signing actor has no
// private key, ie. it is not hosted on this instance.
var ErrNoPrivateKey = errors.New("httpsig: actor has no private key")

// Sign signs the request with the given keyID and privateKey.
// POST requests additionally carry a SHA-256 digest of body; the digest
// header is part of the signed set, so a tampered body fails verification.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	if privateKey == nil {
		return ErrNoPrivateKey
	}
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("httpsig: unsupported private key type %T", privateKey)
	}

	req.Header.Set("Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")) // Date must be in GMT, not UTC 🤯
	headersToSign := []string{
		httpsig.RequestTarget, "host", "date",
	}
	switch req.Method {
	case "GET":
		headersToSign = append(headersToSign, "accept")
	case "POST":
		headersToSign = append(headersToSign, "digest")
		addDigest(req, body)
	}

	plain, err := signingString(req, headersToSign)
	if err != nil {
		return err
	}
	digest := sha256.Sum256([]byte(plain))
	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, digest[:])
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(sig)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`, keyID, strings.Join(headersToSign, " "), enc))
	return nil
}

// signingString builds the canonical string for the given header set.
// Signer and verifier must produce byte identical output for the same
// request, so both call through here.
func signingString(req *http.Request, headers []string) (string, error) {
	var sb bytes.Buffer
	for i, header := range headers {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch header {
		case httpsig.RequestTarget:
			sb.WriteString("(request-target): ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)
			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "Host", "host":
			// outgoing requests carry the host on the URL, inbound
			// requests on the Host field
			host := req.Host
			if host == "" {
				host = req.URL.Host
			}
			sb.WriteString("host: ")
			sb.WriteString(host)
		case "Date", "date":
			sb.WriteString("date: ")
			sb.WriteString(req.Header.Get("Date"))
		case "Accept", "accept":
			sb.WriteString("accept: ")
			sb.WriteString(req.Header.Get("Accept"))
		case "Digest", "digest":
			sb.WriteString("digest: ")
			sb.WriteString(req.Header.Get("Digest"))
		case "Content-Type", "content-type":
			sb.WriteString("content-type: ")
			sb.WriteString(req.Header.Get("Content-Type"))
		default:
			return "", fmt.Errorf("unknown header to sign: %s", header)
		}
	}
	return sb.String(), nil
}

func addDigest(req *http.Request, body []byte) {
	digest := sha256.Sum256(body)
	req.Header.Set("Digest", fmt.Sprintf("SHA-256=%s", base64.StdEncoding.EncodeToString(digest[:])))
}
