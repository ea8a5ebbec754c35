package crypto_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/eventgatehq/eventgate-backend/pkg/crypto"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := crypto.New("local-master-key")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	envelope, err := c.Encrypt("whsec_destination_secret")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if !crypto.IsEncrypted(envelope) {
		t.Fatalf("envelope not recognised as encrypted: %q", envelope)
	}
	if parts := strings.Split(envelope, ":"); len(parts) != 3 {
		t.Fatalf("expected 3 envelope parts, got %d", len(parts))
	}

	plain, err := c.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plain != "whsec_destination_secret" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestEncryptEmptyPlaintextRoundTrip(t *testing.T) {
	c, err := crypto.New("local-master-key")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	envelope, err := c.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if !crypto.IsEncrypted(envelope) {
		t.Fatalf("envelope not recognised as encrypted: %q", envelope)
	}

	plain, err := c.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plain != "" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestEncryptProducesFreshIVs(t *testing.T) {
	c, err := crypto.New("local-master-key")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	first, err := c.Encrypt("same-secret")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	second, err := c.Encrypt("same-secret")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if first == second {
		t.Fatal("two encryptions of the same plaintext should differ")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	c1, _ := crypto.New("key-one")
	c2, _ := crypto.New("key-two")

	envelope, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if _, err := c2.Decrypt(envelope); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
}

func TestMissingMasterKey(t *testing.T) {
	c, err := crypto.New("")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if c.Ready() {
		t.Fatal("cipher without master key should not be ready")
	}
	if _, err := c.Encrypt("secret"); !errors.Is(err, crypto.ErrNoMasterKey) {
		t.Fatalf("expected ErrNoMasterKey, got %v", err)
	}
	if _, err := c.Decrypt("a:b:c"); !errors.Is(err, crypto.ErrNoMasterKey) {
		t.Fatalf("expected ErrNoMasterKey, got %v", err)
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	c, _ := crypto.New("local-master-key")

	cases := []string{
		"",
		"plain-secret",
		"one:two",
		"!!!:###:$$$",
		"QUJD:QUJD",
	}
	for _, envelope := range cases {
		if _, err := c.Decrypt(envelope); err == nil {
			t.Fatalf("expected error for envelope %q", envelope)
		}
	}
}

func TestIsEncrypted(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"QUJDREVGR0hJSkts:QUJDREVGR0hJSktMTU5PUA==:c2VjcmV0", true},
		{"QUJDREVGR0hJSkts:QUJDREVGR0hJSktMTU5PUA==:", true},
		{":QUJDREVGR0hJSktMTU5PUA==:c2VjcmV0", false},
		{"plain-secret", false},
		{"a:b", false},
		{"!!!:###:$$$", false},
		{"", false},
		{"::", false},
	}
	for _, tc := range cases {
		if got := crypto.IsEncrypted(tc.value); got != tc.want {
			t.Fatalf("IsEncrypted(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
