package artifact

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

type header struct {
	Kind     Kind      `yaml:"kind"`
	Name     string    `yaml:"name,omitempty"`
	Feature  string    `yaml:"feature,omitempty"`
	Version  int       `yaml:"version"`
	Status   Status    `yaml:"status"`
	Created  time.Time `yaml:"created"`
	Checksum string    `yaml:"checksum"`
}

// decode parses a stored document: a `---` fenced YAML header then the body.
func decode(content []byte) (*Artifact, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, ErrMissingHeader
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return nil, ErrMalformedHeader
	}

	var h header
	if err := yaml.Unmarshal(parts[0], &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if !h.Kind.Valid() || h.Version < 1 {
		return nil, fmt.Errorf("%w: kind %q version %d", ErrMalformedHeader, h.Kind, h.Version)
	}

	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	if h.Checksum != "" && h.Checksum != checksum(body) {
		return nil, ErrChecksumMismatch
	}

	return &Artifact{
		Ref:      Ref{Feature: h.Feature, Kind: h.Kind, Name: h.Name},
		Version:  h.Version,
		Status:   h.Status,
		Created:  h.Created,
		Checksum: h.Checksum,
		Body:     body,
	}, nil
}

// encode renders the header and body of a.
func encode(a *Artifact) ([]byte, error) {
	h := header{
		Kind:     a.Kind,
		Name:     a.Name,
		Feature:  a.Feature,
		Version:  a.Version,
		Status:   a.Status,
		Created:  a.Created.UTC(),
		Checksum: checksum(a.Body),
	}
	data, err := yaml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(a.Body)
	return buf.Bytes(), nil
}

func checksum(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
