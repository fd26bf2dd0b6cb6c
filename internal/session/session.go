// Package session implements delegated-session management: exchanging the
// operator's identity for temporary, scoped credentials in a target account
// via STS AssumeRole, with validation, caching, and a typed error taxonomy.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Session is an ephemeral credential bundle scoped to one
// (account, region, role) triple. It is never persisted; it simply becomes
// useless at expiry.
type Session struct {
	AccountID   string
	Region      string
	RoleName    string
	SessionName string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          time.Time
}

// expirySkew guards against returning a session so close to expiry that the
// follow-on API call would fail mid-flight.
const expirySkew = 30 * time.Second

// Expired reports whether the session must not be used at the given instant.
// A session with no recorded expiry is treated as expired: the credential
// never self-invalidates in memory, so an unknown window is not trusted.
func (s *Session) Expired(now time.Time) bool {
	if s.Expiry.IsZero() {
		return true
	}
	return !now.Before(s.Expiry.Add(-expirySkew))
}

// Credentials returns a static credentials provider for AWS client construction.
func (s *Session) Credentials() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken)
}

// Kind is the closed set of delegation failure classes. Callers branch on
// the kind rather than inspecting error strings.
type Kind string

const (
	// KindValidation: malformed input, rejected before any network call.
	KindValidation Kind = "validation"
	// KindDenied: the remote end rejected the role assumption (trust policy,
	// region opt-out, expired source credentials). Carries the remote code.
	KindDenied Kind = "denied"
	// KindNoCredentials: the caller has no local identity to delegate from.
	KindNoCredentials Kind = "no_credentials"
	// KindTransport: any other failure during the exchange, wrapping the cause.
	KindTransport Kind = "transport"
)

// Error is a delegation failure with full account/role/region context.
type Error struct {
	Kind      Kind
	AccountID string
	RoleName  string
	Region    string
	Code      string // remote error code, set for KindDenied
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	var ctx []string
	if e.AccountID != "" {
		ctx = append(ctx, "account="+e.AccountID)
	}
	if e.RoleName != "" {
		ctx = append(ctx, "role="+e.RoleName)
	}
	if e.Region != "" {
		ctx = append(ctx, "region="+e.Region)
	}
	if len(ctx) > 0 {
		b.WriteString(" (" + strings.Join(ctx, ", ") + ")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }
