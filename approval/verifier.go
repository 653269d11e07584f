package approval

import (
	"fmt"
	"time"
)

// Verifier turns approval requests into verified events. Tokens need a
// secret; signatures need at least one allowed signer.
type Verifier struct {
	tokens  TokenConfig
	signers []Signer
	now     func() time.Time
}

// NewVerifier creates a verifier. Either part may be empty, which
// disables that approval method.
func NewVerifier(tokens TokenConfig, signers []Signer) (*Verifier, error) {
	if len(tokens.Secret) > 0 && len(tokens.Secret) < 32 {
		return nil, ErrSecretTooShort
	}
	return &Verifier{tokens: tokens, signers: signers, now: time.Now}, nil
}

// Verify checks a token or a signature, whichever the request carries.
func (v *Verifier) Verify(req Request) (Event, error) {
	switch {
	case req.Token != "":
		return v.VerifyToken(req.Token)
	case req.Signature != "":
		return v.VerifySignature(req.Feature, req.Phase, req.Signature)
	}
	return Event{}, ErrMalformedRequest
}

// VerifyToken validates an approval token.
func (v *Verifier) VerifyToken(token string) (Event, error) {
	if len(v.tokens.Secret) == 0 {
		return Event{}, ErrNoSecret
	}
	claims, err := parseToken(v.tokens, token)
	if err != nil {
		return Event{}, err
	}
	approver := claims.Subject
	if approver == "" {
		approver = "token:" + claims.ID
	}
	return Event{
		Feature:  claims.Feature,
		Phase:    claims.Phase,
		Approver: approver,
		Method:   MethodToken,
		TokenID:  claims.ID,
		At:       v.now().UTC(),
		verified: true,
	}, nil
}

// VerifySignature validates an SSH signature over SigningPayload.
func (v *Verifier) VerifySignature(feature string, phase int, signature string) (Event, error) {
	if feature == "" || phase < 1 {
		return Event{}, fmt.Errorf("%w: feature and phase are required", ErrMalformedRequest)
	}
	if len(v.signers) == 0 {
		return Event{}, ErrUnknownSigner
	}
	signer, err := verifySignature(v.signers, SigningPayload(feature, phase), signature)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Feature:  feature,
		Phase:    phase,
		Approver: signer.Name,
		Method:   MethodSSH,
		At:       v.now().UTC(),
		verified: true,
	}, nil
}
