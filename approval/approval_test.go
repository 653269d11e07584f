package approval

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

var testSecret = []byte("this-is-a-test-secret-key-32-bytes!")

// newTestKey writes an unencrypted private key to a temp dir and returns
// its path and an allowed-signers line for it.
func newTestKey(t *testing.T, comment string) (string, string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block, err := gossh.MarshalPrivateKey(priv, comment)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	sshPub, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	line := string(gossh.MarshalAuthorizedKey(sshPub))
	line = line[:len(line)-1] + " " + comment + "\n"
	return path, line, priv
}

func TestIssueAndVerifyToken(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret}
	token, err := Issue(cfg, "003-add-caching", 2, "alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	v, err := NewVerifier(cfg, nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	ev, err := v.Verify(Request{Token: token})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ev.Verified() {
		t.Error("event should be verified")
	}
	if ev.Feature != "003-add-caching" || ev.Phase != 2 {
		t.Errorf("event = %s phase %d", ev.Feature, ev.Phase)
	}
	if ev.Approver != "alice" || ev.Method != MethodToken || ev.TokenID == "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestVerifyToken_Rejections(t *testing.T) {
	cfg := TokenConfig{Secret: testSecret}
	v, _ := NewVerifier(cfg, nil)

	t.Run("expired", func(t *testing.T) {
		token, err := Issue(TokenConfig{Secret: testSecret, TTL: -time.Minute}, "001-x", 1, "bob")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.VerifyToken(token); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("error = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _ := Issue(TokenConfig{Secret: []byte("another-secret-key-that-is-32-bytes")}, "001-x", 1, "bob")
		if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, _ := Issue(TokenConfig{Secret: testSecret, Issuer: "someone-else"}, "001-x", 1, "bob")
		if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := v.VerifyToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("no secret configured", func(t *testing.T) {
		noTokens, _ := NewVerifier(TokenConfig{}, nil)
		if _, err := noTokens.VerifyToken("x"); !errors.Is(err, ErrNoSecret) {
			t.Errorf("error = %v, want ErrNoSecret", err)
		}
	})
}

func TestIssue_Validation(t *testing.T) {
	if _, err := Issue(TokenConfig{Secret: []byte("short")}, "001-x", 1, ""); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("error = %v, want ErrSecretTooShort", err)
	}
	if _, err := Issue(TokenConfig{Secret: testSecret}, "", 1, ""); err == nil {
		t.Error("expected error for missing feature")
	}
	if _, err := NewVerifier(TokenConfig{Secret: []byte("short")}, nil); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("NewVerifier error = %v, want ErrSecretTooShort", err)
	}
}

func TestSignWithKeyFile_Verify(t *testing.T) {
	keyPath, line, _ := newTestKey(t, "alice@example.com")
	signers, err := ParseAllowedSigners([]byte("# reviewers\n\n" + line))
	if err != nil {
		t.Fatalf("ParseAllowedSigners() error = %v", err)
	}
	if len(signers) != 1 || signers[0].Name != "alice@example.com" {
		t.Fatalf("signers = %+v", signers)
	}

	sig, err := SignWithKeyFile(keyPath, "003-add-caching", 1)
	if err != nil {
		t.Fatalf("SignWithKeyFile() error = %v", err)
	}

	v, _ := NewVerifier(TokenConfig{}, signers)
	ev, err := v.Verify(Request{Feature: "003-add-caching", Phase: 1, Signature: sig})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ev.Verified() || ev.Approver != "alice@example.com" || ev.Method != MethodSSH {
		t.Errorf("event = %+v", ev)
	}

	// The signature is bound to the phase it was made for.
	if _, err := v.VerifySignature("003-add-caching", 2, sig); !errors.Is(err, ErrUnknownSigner) {
		t.Errorf("other phase: error = %v, want ErrUnknownSigner", err)
	}
}

func TestVerifySignature_UnknownKey(t *testing.T) {
	keyPath, _, _ := newTestKey(t, "mallory")
	_, allowed, _ := newTestKey(t, "alice")
	signers, err := ParseAllowedSigners([]byte(allowed))
	if err != nil {
		t.Fatal(err)
	}

	sig, err := SignWithKeyFile(keyPath, "001-x", 1)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := NewVerifier(TokenConfig{}, signers)
	if _, err := v.VerifySignature("001-x", 1, sig); !errors.Is(err, ErrUnknownSigner) {
		t.Errorf("error = %v, want ErrUnknownSigner", err)
	}
}

func TestSignWithAgent(t *testing.T) {
	_, line, priv := newTestKey(t, "carol")
	signers, err := ParseAllowedSigners([]byte(line))
	if err != nil {
		t.Fatal(err)
	}

	keyring := agent.NewKeyring()
	if err := keyring.Add(agent.AddedKey{PrivateKey: priv}); err != nil {
		t.Fatalf("add key: %v", err)
	}

	sig, err := SignWithAgent(keyring, signers[0].Fingerprint, "002-y", 3)
	if err != nil {
		t.Fatalf("SignWithAgent() error = %v", err)
	}
	v, _ := NewVerifier(TokenConfig{}, signers)
	ev, err := v.VerifySignature("002-y", 3, sig)
	if err != nil {
		t.Fatalf("VerifySignature() error = %v", err)
	}
	if ev.Approver != "carol" {
		t.Errorf("Approver = %q, want carol", ev.Approver)
	}

	if _, err := SignWithAgent(keyring, "SHA256:missing", "002-y", 3); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error = %v, want ErrKeyNotFound", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	v, _ := NewVerifier(TokenConfig{Secret: testSecret}, nil)
	if _, err := v.Verify(Request{Feature: "001-x", Phase: 1}); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("error = %v, want ErrMalformedRequest", err)
	}
	if _, err := v.VerifySignature("", 0, "sig"); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("error = %v, want ErrMalformedRequest", err)
	}
}

func TestParseAllowedSigners_Malformed(t *testing.T) {
	if _, err := ParseAllowedSigners([]byte("ssh-ed25519 not-base64!!")); err == nil {
		t.Error("expected error for malformed signer line")
	}
}

func TestGetAgent_NoSocket(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	if _, err := GetAgent(); !errors.Is(err, ErrNoSSHAgent) {
		t.Errorf("error = %v, want ErrNoSSHAgent", err)
	}
}
