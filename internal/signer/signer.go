// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package signer attaches a verifiable signature over a redacted
// document's content digest, embedding it in the PDF's own metadata so
// the signature travels with the file.
package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// algorithmName is recorded in every signature payload so a verifier
// never has to guess which curve and hash produced it.
const algorithmName = "ECDSA-P256-SHA256"

// signaturePayload is the outer envelope stored under the
// secure_doc_ai_signature keyword (PDFs), or written verbatim to a
// sidecar file for document types that carry no metadata slot of their
// own (images).
type signaturePayload struct {
	Signature string    `json:"secure_doc_ai_signature"`
	SHA256    string    `json:"sha256"`
	SignedAt  time.Time `json:"signed_at"`
	Algorithm string    `json:"algorithm"`
}

// Signer holds a persistent ECDSA-P256 key pair used to sign every
// document processed by this deployment.
type Signer struct {
	key  *ecdsa.PrivateKey
	conf *model.Configuration
}

// Load reads the signing key from keyPath, generating and persisting a
// new P256 key pair on first run (the same load-or-generate shape the
// teacher's password handling uses for PDF credentials, applied here to
// a long-lived signing identity instead of a per-document password).
func Load(keyPath string) (*Signer, error) {
	key, err := loadKey(keyPath)
	if os.IsNotExist(err) {
		key, err = generateAndPersistKey(keyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}

	return &Signer{key: key, conf: model.NewDefaultConfiguration()}, nil
}

func loadKey(keyPath string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", keyPath)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS8 key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %q is not an ECDSA key", keyPath)
	}

	return key, nil
}

func generateAndPersistKey(keyPath string) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("writing key to %q: %w", keyPath, err)
	}

	return key, nil
}

// SignDigest signs the lowercase hex encoding of the SHA-256 digest of
// data, not the raw digest bytes themselves: the hex string is hashed
// again and that second hash is what ecdsa.Sign actually signs. Signing
// the hex text rather than the raw digest matches the convention a
// verifier checking this signature with a plain "hash the hex digest,
// verify" recipe expects.
func (s *Signer) SignDigest(data []byte) (signaturePayload, error) {
	sum := sha256.Sum256(data)
	hexDigest := hex.EncodeToString(sum[:])

	msgHash := sha256.Sum256([]byte(hexDigest))
	r, sVal, err := ecdsa.Sign(rand.Reader, s.key, msgHash[:])
	if err != nil {
		return signaturePayload{}, fmt.Errorf("signing digest: %w", err)
	}

	sigHex := hex.EncodeToString(r.Bytes()) + ":" + hex.EncodeToString(sVal.Bytes())

	return signaturePayload{
		Signature: sigHex,
		SHA256:    hexDigest,
		SignedAt:  time.Now().UTC(),
		Algorithm: algorithmName,
	}, nil
}

// Verify checks that payload's signature is a valid ECDSA signature over
// the SHA-256 hash of payload.SHA256's hex text, mirroring SignDigest's
// convention of signing the hex digest string rather than the raw digest.
func Verify(pub *ecdsa.PublicKey, payload signaturePayload) (bool, error) {
	msgHash := sha256.Sum256([]byte(payload.SHA256))

	r, sVal, err := splitSignatureHex(payload.Signature)
	if err != nil {
		return false, err
	}

	return ecdsa.Verify(pub, msgHash[:], r, sVal), nil
}

func splitSignatureHex(sig string) (*big.Int, *big.Int, error) {
	var rHex, sHex string
	for i := 0; i < len(sig); i++ {
		if sig[i] == ':' {
			rHex, sHex = sig[:i], sig[i+1:]
			break
		}
	}
	if rHex == "" || sHex == "" {
		return nil, nil, fmt.Errorf("malformed signature %q", sig)
	}

	rBytes, err := hex.DecodeString(rHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding R: %w", err)
	}
	sBytes, err := hex.DecodeString(sHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding S: %w", err)
	}

	return new(big.Int).SetBytes(rBytes), new(big.Int).SetBytes(sBytes), nil
}

// SignPDF computes the digest over pdfPath's current bytes, signs it,
// and embeds the signature JSON as a single keyword on the PDF itself so
// a signed document carries its own provenance.
func (s *Signer) SignPDF(pdfPath string) (signaturePayload, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return signaturePayload{}, fmt.Errorf("reading %q: %w", pdfPath, err)
	}

	payload, err := s.SignDigest(data)
	if err != nil {
		return signaturePayload{}, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return signaturePayload{}, fmt.Errorf("encoding signature payload: %w", err)
	}

	if err := api.AddKeywordsFile(pdfPath, pdfPath, []string{string(encoded)}, s.conf); err != nil {
		return signaturePayload{}, fmt.Errorf("embedding signature keyword: %w", err)
	}

	return payload, nil
}

// SignSidecar signs path's current bytes and writes the signature JSON
// to a "<path>.sig.json" file alongside it, for document types (images)
// that have no metadata slot of their own to carry a signature.
func (s *Signer) SignSidecar(path string) (signaturePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return signaturePayload{}, fmt.Errorf("reading %q: %w", path, err)
	}

	payload, err := s.SignDigest(data)
	if err != nil {
		return signaturePayload{}, err
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return signaturePayload{}, fmt.Errorf("encoding signature payload: %w", err)
	}

	if err := os.WriteFile(path+".sig.json", encoded, 0o600); err != nil {
		return signaturePayload{}, fmt.Errorf("writing sidecar signature: %w", err)
	}

	return payload, nil
}

// ReadEmbeddedSignature reads back the signature payload embedded by
// SignPDF, for verification.
func ReadEmbeddedSignature(pdfPath string, conf *model.Configuration) (signaturePayload, error) {
	keywords, err := api.ListKeywordsFile(pdfPath, conf)
	if err != nil {
		return signaturePayload{}, fmt.Errorf("reading keywords: %w", err)
	}

	for _, kw := range keywords {
		var payload signaturePayload
		if err := json.Unmarshal([]byte(kw), &payload); err == nil && payload.Signature != "" {
			return payload, nil
		}
	}

	return signaturePayload{}, fmt.Errorf("no secure_doc_ai_signature keyword found in %q", pdfPath)
}

// readSidecarSignature reads back the signature payload written by
// SignSidecar.
func readSidecarSignature(path string) (signaturePayload, error) {
	data, err := os.ReadFile(path + ".sig.json")
	if err != nil {
		return signaturePayload{}, fmt.Errorf("reading sidecar signature: %w", err)
	}

	var payload signaturePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return signaturePayload{}, fmt.Errorf("parsing sidecar signature: %w", err)
	}
	return payload, nil
}

// VerifyFile reads back whichever signature form path carries (embedded
// PDF keyword, or ".sig.json" sidecar) and checks it against this
// Signer's own public key.
func (s *Signer) VerifyFile(path string) (bool, error) {
	var (
		payload signaturePayload
		err     error
	)

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		payload, err = ReadEmbeddedSignature(path, s.conf)
	} else {
		payload, err = readSidecarSignature(path)
	}
	if err != nil {
		return false, err
	}

	return Verify(&s.key.PublicKey, payload)
}
