package db

import (
	"strings"
	"testing"

	"github.com/mnemo-cli/mnemo/internal/core/models"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	sealed, err := c.Seal("the plan is in the shared doc")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "enc1:") {
		t.Errorf("sealed content missing version prefix: %q", sealed)
	}
	if strings.Contains(sealed, "shared doc") {
		t.Error("plaintext leaked into sealed content")
	}

	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if opened != "the plan is in the shared doc" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestCipherWrongPassphrase(t *testing.T) {
	a, err := NewCipher("one")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCipher("two")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := a.Seal("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(sealed); err == nil {
		t.Error("wrong passphrase opened the ciphertext")
	}
}

func TestCipherOpenPlaintextPassthrough(t *testing.T) {
	c, err := NewCipher("pass")
	if err != nil {
		t.Fatal(err)
	}
	// Content written before encryption was turned on has no prefix and
	// must come back untouched.
	got, err := c.Open("legacy plaintext")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got != "legacy plaintext" {
		t.Errorf("plaintext passthrough mangled content: %q", got)
	}
}

func TestEncryptedMessagesAtRest(t *testing.T) {
	cipher, err := NewCipher("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	database := newTestDB(t, WithCipher(cipher))
	mustCreate(t, database, "s1", "Encrypted chat")

	if err := database.AddMessage(models.NewMessage("s1", models.RoleUser, "rotate the staging credentials")); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	// Reads through the API see plaintext.
	msgs, err := database.GetMessages("s1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "rotate the staging credentials" {
		t.Fatalf("decrypted read failed: %v", msgs)
	}

	// Raw rows must hold ciphertext only.
	var raw string
	if err := database.conn.QueryRow("SELECT content FROM messages WHERE session_id = 's1'").Scan(&raw); err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	if !strings.HasPrefix(raw, "enc1:") || strings.Contains(raw, "credentials") {
		t.Errorf("message stored unencrypted: %q", raw)
	}
}
