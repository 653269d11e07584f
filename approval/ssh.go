package approval

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strings"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Signer is one entry of the allowed-signers file.
type Signer struct {
	Key         gossh.PublicKey
	Name        string // key comment, used as the approver identity
	Fingerprint string
}

// ParseAllowedSigners parses authorized_keys formatted data. Blank lines
// and comments are skipped; a malformed line is an error.
func ParseAllowedSigners(data []byte) ([]Signer, error) {
	var signers []Signer
	rest := bytes.TrimSpace(data)
	for len(rest) > 0 {
		key, comment, _, next, err := gossh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("parse allowed signers: %w", err)
		}
		fp := gossh.FingerprintSHA256(key)
		if comment == "" {
			comment = fp
		}
		signers = append(signers, Signer{Key: key, Name: comment, Fingerprint: fp})
		rest = bytes.TrimSpace(next)
	}
	return signers, nil
}

// LoadAllowedSigners reads an allowed-signers file.
func LoadAllowedSigners(path string) ([]Signer, error) {
	data, err := os.ReadFile(path) //nolint:gosec // configured path
	if err != nil {
		return nil, fmt.Errorf("read allowed signers: %w", err)
	}
	return ParseAllowedSigners(data)
}

// SignWithKeyFile signs the approval payload for a phase using an
// unencrypted private key file. Encrypted keys need SignWithAgent.
func SignWithKeyFile(keyPath, feature string, phase int) (string, error) {
	keyData, err := os.ReadFile(keyPath) //nolint:gosec // user-provided path expected
	if err != nil {
		return "", fmt.Errorf("read private key: %w", err)
	}

	signer, err := gossh.ParsePrivateKey(keyData)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w (encrypted keys require ssh-agent)", err)
	}

	sig, err := signer.Sign(nil, SigningPayload(feature, phase))
	if err != nil {
		return "", fmt.Errorf("sign approval: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gossh.Marshal(sig)), nil
}

// SignWithAgent signs the approval payload with the agent key matching
// fingerprint, or the first agent key when fingerprint is empty.
func SignWithAgent(ag agent.Agent, fingerprint, feature string, phase int) (string, error) {
	keys, err := ag.List()
	if err != nil {
		return "", fmt.Errorf("list agent keys: %w", err)
	}

	var key *agent.Key
	for _, k := range keys {
		if fingerprint == "" || gossh.FingerprintSHA256(k) == fingerprint {
			key = k
			break
		}
	}
	if key == nil {
		return "", ErrKeyNotFound
	}

	sig, err := ag.Sign(key, SigningPayload(feature, phase))
	if err != nil {
		return "", fmt.Errorf("sign approval: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gossh.Marshal(sig)), nil
}

// AgentConnection wraps an SSH agent with its underlying connection.
type AgentConnection struct {
	agent.ExtendedAgent
	conn net.Conn
}

// Close closes the underlying connection to the SSH agent.
func (a *AgentConnection) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// GetAgent connects to the SSH agent via SSH_AUTH_SOCK.
// The returned AgentConnection should be closed when done.
func GetAgent() (*AgentConnection, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, ErrNoSSHAgent
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect to ssh-agent: %w", err)
	}

	return &AgentConnection{
		ExtendedAgent: agent.NewClient(conn),
		conn:          conn,
	}, nil
}

// verifySignature finds the allowed signer whose key verifies sig over
// the payload.
func verifySignature(signers []Signer, payload []byte, encoded string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	sig := new(gossh.Signature)
	if err := gossh.Unmarshal(raw, sig); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	for i := range signers {
		if signers[i].Key.Verify(payload, sig) == nil {
			return &signers[i], nil
		}
	}
	return nil, ErrUnknownSigner
}
