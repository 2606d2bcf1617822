package payment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	SignatureMD5     = "md5"
	SignatureBlake2b = "blake2b"

	signatureField = "signature"
)

var (
	ErrInvalidSignature  = errors.New("payment: signature mismatch")
	ErrMissingPassphrase = errors.New("payment: signing passphrase is required")
)

// Signer produces the form gateway's parameter signature: fields sorted by
// key, values query-escaped, joined with '&', passphrase appended, digested
// and hex encoded.
type Signer struct {
	passphrase string
	newHash    func() (hash.Hash, error)
}

func NewSigner(passphrase, algorithm string) (*Signer, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrMissingPassphrase
	}
	s := &Signer{passphrase: passphrase}
	switch strings.ToLower(algorithm) {
	case "", SignatureMD5:
		s.newHash = func() (hash.Hash, error) { return md5.New(), nil }
	case SignatureBlake2b:
		if len(passphrase) > blake2b.Size {
			return nil, fmt.Errorf("payment: blake2b key longer than %d bytes", blake2b.Size)
		}
		key := []byte(passphrase)
		s.newHash = func() (hash.Hash, error) { return blake2b.New256(key) }
	default:
		return nil, fmt.Errorf("payment: unsupported signature algorithm %q", algorithm)
	}
	return s, nil
}

// Field is one name/value pair of a signed form.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Sign signs fields in lexicographic key order. The caller decides which
// fields take part.
func (s *Signer) Sign(fields []Field) (string, error) {
	sorted := append([]Field(nil), fields...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted)+1)
	for _, f := range sorted {
		parts = append(parts, f.Name+"="+url.QueryEscape(strings.TrimSpace(f.Value)))
	}
	parts = append(parts, "passphrase="+url.QueryEscape(strings.TrimSpace(s.passphrase)))

	h, err := s.newHash()
	if err != nil {
		return "", fmt.Errorf("payment: failed to init digest: %w", err)
	}
	h.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks a received notification: every field except signature is
// signed, including empty ones, and the hex digest compares case-insensitively.
func (s *Signer) Verify(values url.Values) error {
	received := strings.ToLower(strings.TrimSpace(values.Get(signatureField)))
	if received == "" {
		return ErrInvalidSignature
	}

	fields := make([]Field, 0, len(values))
	for name := range values {
		if name == signatureField {
			continue
		}
		fields = append(fields, Field{Name: name, Value: values.Get(name)})
	}

	expected, err := s.Sign(fields)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
