package payment_test

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
)

func TestSigner_SignsSortedEscapedPairsWithPassphrase(t *testing.T) {
	signer, err := payment.NewSigner("jt7NOE43FZPn", payment.SignatureMD5)
	require.NoError(t, err)

	got, err := signer.Sign([]payment.Field{
		{Name: "merchant_id", Value: "10000100"},
		{Name: "item_name", Value: "Order #1 "},
		{Name: "amount", Value: "270.00"},
	})
	require.NoError(t, err)

	sum := md5.Sum([]byte("amount=270.00&item_name=Order+%231&merchant_id=10000100&passphrase=jt7NOE43FZPn"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestSigner_Verify(t *testing.T) {
	for _, algorithm := range []string{payment.SignatureMD5, payment.SignatureBlake2b} {
		t.Run(algorithm, func(t *testing.T) {
			signer, err := payment.NewSigner("passphrase", algorithm)
			require.NoError(t, err)

			values := url.Values{
				"payment_status": {"COMPLETE"},
				"amount_gross":   {"270.00"},
				"custom_str1":    {"c0ffee"},
				"custom_str3":    {""},
			}
			sig, err := signer.Sign([]payment.Field{
				{Name: "payment_status", Value: "COMPLETE"},
				{Name: "amount_gross", Value: "270.00"},
				{Name: "custom_str1", Value: "c0ffee"},
				{Name: "custom_str3", Value: ""},
			})
			require.NoError(t, err)

			values.Set("signature", strings.ToUpper(sig))
			require.NoError(t, signer.Verify(values), "hex compare is case-insensitive")

			tampered := url.Values{}
			for k, v := range values {
				tampered[k] = v
			}
			tampered.Set("amount_gross", "1.00")
			require.ErrorIs(t, signer.Verify(tampered), payment.ErrInvalidSignature)

			values.Del("signature")
			require.ErrorIs(t, signer.Verify(values), payment.ErrInvalidSignature)
		})
	}
}

func TestSigner_AlgorithmsDiffer(t *testing.T) {
	md5Signer, err := payment.NewSigner("k", payment.SignatureMD5)
	require.NoError(t, err)
	blakeSigner, err := payment.NewSigner("k", payment.SignatureBlake2b)
	require.NoError(t, err)

	fields := []payment.Field{{Name: "a", Value: "1"}}
	a, err := md5Signer.Sign(fields)
	require.NoError(t, err)
	b, err := blakeSigner.Sign(fields)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Len(t, b, 64)
}

func TestNewSigner_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := payment.NewSigner("k", "sha1")
	require.Error(t, err)

	_, err = payment.NewSigner(strings.Repeat("x", 65), payment.SignatureBlake2b)
	require.Error(t, err)
}

func TestNewSigner_RejectsEmptyPassphrase(t *testing.T) {
	for _, algorithm := range []string{payment.SignatureMD5, payment.SignatureBlake2b} {
		_, err := payment.NewSigner("", algorithm)
		assert.ErrorIs(t, err, payment.ErrMissingPassphrase, algorithm)
	}
}
