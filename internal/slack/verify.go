package slack

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

// ErrInvalidSignature is returned when a request fails Slack signature
// verification.
var ErrInvalidSignature = errors.New("invalid signature")

// Verifier checks the X-Slack-Signature header of inbound requests. A zero
// Verifier (no secret) accepts everything.
type Verifier struct {
	secret string
}

// NewVerifier returns a Verifier for the app signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Enabled reports whether requests are actually checked.
func (v *Verifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify checks body against the signature and timestamp headers.
func (v *Verifier) Verify(header http.Header, body []byte) error {
	if !v.Enabled() {
		return nil
	}
	sv, err := slack.NewSecretsVerifier(header, v.secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
