package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ec2nav/ec2nav/internal/audit"
)

// STSAPI is the subset of the STS client the manager uses.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// ClientFactory returns an STS client bound to the given region. Production
// wiring binds it to the regional STS endpoint; tests inject fakes.
type ClientFactory func(region string) STSAPI

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

// knownRegions is the allow-list of regions we recognize. Membership is
// advisory only: AWS adds regions over time, so an unknown-but-plausible
// region passes validation with a warning log.
var knownRegions = map[string]struct{}{
	"us-east-1": {}, "us-east-2": {}, "us-west-1": {}, "us-west-2": {},
	"eu-west-1": {}, "eu-west-2": {}, "eu-west-3": {}, "eu-central-1": {},
	"ap-southeast-1": {}, "ap-southeast-2": {}, "ap-northeast-1": {}, "ap-northeast-2": {},
	"ca-central-1": {}, "sa-east-1": {}, "ap-south-1": {},
}

// Config fixes the manager's behavior at construction time.
type Config struct {
	// RoleName is the IAM role assumed in every target account.
	// Non-empty, at most 64 characters.
	RoleName string
	// DurationSeconds is the credential validity window, 900–43200.
	DurationSeconds int32
	// SessionNamePrefix is embedded in every generated session name for
	// audit traceability. Non-empty, at most 32 characters.
	SessionNamePrefix string
	// ExternalID, when set, is passed to the trust exchange. Omitted from
	// the request entirely when empty.
	ExternalID string
	// EnableCaching reuses sessions for identical (account, region, role)
	// triples within their validity window.
	EnableCaching bool
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		RoleName:          "ec2nav-admin",
		DurationSeconds:   3600,
		SessionNamePrefix: "EC2Nav",
	}
}

func (c Config) validate() error {
	if c.RoleName == "" || len(c.RoleName) > 64 {
		return fmt.Errorf("invalid role name %q: must be non-empty and at most 64 characters", c.RoleName)
	}
	if c.DurationSeconds < 900 || c.DurationSeconds > 43200 {
		return fmt.Errorf("session duration must be between 900 and 43200 seconds, got %d", c.DurationSeconds)
	}
	if c.SessionNamePrefix == "" || len(c.SessionNamePrefix) > 32 {
		return fmt.Errorf("invalid session name prefix %q: must be non-empty and at most 32 characters", c.SessionNamePrefix)
	}
	return nil
}

// Manager converts (account, region, role) triples into scoped sessions.
// The cache, when enabled, is owned by the manager instance and dies with it.
type Manager struct {
	cfg     Config
	clients ClientFactory
	logger  zerolog.Logger
	audit   *audit.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]*Session
	locks map[string]*sync.Mutex
}

// NewManager creates a session manager. Construction fails on any Config
// constraint violation; that indicates a deployment error, not a runtime
// condition.
func NewManager(cfg Config, clients ClientFactory, logger zerolog.Logger) (*Manager, error) {
	return NewManagerWithAudit(cfg, clients, logger, nil)
}

// NewManagerWithAudit additionally records a session_issued audit event for
// every successful exchange.
func NewManagerWithAudit(cfg Config, clients ClientFactory, logger zerolog.Logger, al *audit.Logger) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clients == nil {
		return nil, fmt.Errorf("session manager requires an STS client factory")
	}

	logger.Debug().
		Str("role", cfg.RoleName).
		Int32("duration_seconds", cfg.DurationSeconds).
		Bool("caching", cfg.EnableCaching).
		Msg("session manager initialized")

	return &Manager{
		cfg:     cfg,
		clients: clients,
		logger:  logger,
		audit:   al,
		now:     time.Now,
		cache:   make(map[string]*Session),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Assume exchanges for a session in the target account using the default role.
func (m *Manager) Assume(ctx context.Context, accountID, region string) (*Session, error) {
	return m.AssumeRole(ctx, accountID, region, "")
}

// AssumeRole exchanges for a session in the target account. An empty roleName
// falls back to the manager default. No retries happen at this layer; retry
// policy, if any, belongs to the caller.
func (m *Manager) AssumeRole(ctx context.Context, accountID, region, roleName string) (*Session, error) {
	effectiveRole := roleName
	if effectiveRole == "" {
		effectiveRole = m.cfg.RoleName
	}

	if err := m.validateInputs(accountID, region, effectiveRole); err != nil {
		return nil, err
	}

	cacheKey := accountID + ":" + region + ":" + effectiveRole
	if m.cfg.EnableCaching {
		// Serialize per key so concurrent misses cannot double-exchange:
		// probe, exchange, and insert form one atomic unit.
		keyMu := m.keyLock(cacheKey)
		keyMu.Lock()
		defer keyMu.Unlock()

		m.mu.Lock()
		sess, ok := m.cache[cacheKey]
		m.mu.Unlock()
		if ok && !sess.Expired(m.now()) {
			m.logger.Debug().Str("cache_key", cacheKey).Msg("returning cached session")
			return sess, nil
		}
	}

	m.logger.Info().
		Str("account_id", accountID).
		Str("region", region).
		Str("role", effectiveRole).
		Msg("assuming role")

	roleARN := "arn:aws:iam::" + accountID + ":role/" + effectiveRole
	sessionName := m.generateSessionName()

	input := &sts.AssumeRoleInput{
		RoleArn:         &roleARN,
		RoleSessionName: &sessionName,
		DurationSeconds: &m.cfg.DurationSeconds,
	}
	if m.cfg.ExternalID != "" {
		externalID := m.cfg.ExternalID
		input.ExternalId = &externalID
	}

	out, err := m.clients(region).AssumeRole(ctx, input)
	if err != nil {
		derr := m.classifyRemoteError(err, accountID, effectiveRole, region)
		m.logger.Error().
			Str("account_id", accountID).
			Str("region", region).
			Str("role", effectiveRole).
			Str("kind", string(derr.Kind)).
			Str("code", derr.Code).
			Msg("role assumption failed")
		return nil, derr
	}

	sess := &Session{
		AccountID:       accountID,
		Region:          region,
		RoleName:        effectiveRole,
		SessionName:     sessionName,
		AccessKeyID:     strFromPtr(out.Credentials.AccessKeyId),
		SecretAccessKey: strFromPtr(out.Credentials.SecretAccessKey),
		SessionToken:    strFromPtr(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		sess.Expiry = *out.Credentials.Expiration
	}

	if m.cfg.EnableCaching {
		m.mu.Lock()
		m.cache[cacheKey] = sess
		m.mu.Unlock()
		m.logger.Debug().Str("cache_key", cacheKey).Msg("cached session")
	}

	if m.audit != nil {
		m.audit.Log(audit.EventSessionIssued, "local", map[string]string{
			"account_id":   accountID,
			"region":       region,
			"role":         effectiveRole,
			"session_name": sessionName,
			"expiry":       sess.Expiry.Format(time.RFC3339),
		})
	}

	return sess, nil
}

// keyLock returns the lock guarding one cache key's probe-and-exchange.
func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *Manager) validateInputs(accountID, region, roleName string) *Error {
	if !accountIDPattern.MatchString(accountID) {
		return &Error{
			Kind:      KindValidation,
			AccountID: accountID,
			RoleName:  roleName,
			Region:    region,
			Message:   fmt.Sprintf("account id must be exactly 12 digits, got %q", accountID),
		}
	}
	if region == "" {
		return &Error{
			Kind:      KindValidation,
			AccountID: accountID,
			RoleName:  roleName,
			Message:   "region must be a non-empty string",
		}
	}
	if _, ok := knownRegions[region]; !ok {
		m.logger.Warn().Str("region", region).Msg("region not in known-region list, proceeding anyway")
	}
	if roleName == "" || len(roleName) > 64 {
		return &Error{
			Kind:      KindValidation,
			AccountID: accountID,
			RoleName:  roleName,
			Region:    region,
			Message:   fmt.Sprintf("role name must be non-empty and at most 64 characters, got %q", roleName),
		}
	}
	return nil
}

// generateSessionName builds a unique, human-traceable session name.
// Uniqueness matters only for audit-log disambiguation.
func (m *Manager) generateSessionName() string {
	timestamp := m.now().UTC().Format("20060102150405")
	return m.cfg.SessionNamePrefix + "-" + timestamp + "-" + uuid.NewString()[:8]
}

func (m *Manager) classifyRemoteError(err error, accountID, roleName, region string) *Error {
	base := Error{
		AccountID: accountID,
		RoleName:  roleName,
		Region:    region,
		Err:       err,
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		base.Kind = KindDenied
		base.Code = ae.ErrorCode()
		base.Message = fmt.Sprintf("role assumption rejected: %s - %s", ae.ErrorCode(), ae.ErrorMessage())
		return &base
	}

	if isMissingCredentials(err) {
		base.Kind = KindNoCredentials
		base.Message = "no AWS credentials available to delegate from; configure your credentials"
		return &base
	}

	base.Kind = KindTransport
	base.Message = "unexpected error during role assumption"
	return &base
}

// isMissingCredentials detects the SDK's credential-resolution failures,
// which surface as wrapped retrieval errors rather than a dedicated type.
func isMissingCredentials(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "failed to retrieve credentials") ||
		strings.Contains(msg, "no valid providers in chain") ||
		strings.Contains(msg, "static credentials are empty")
}

// ClearCache drops all cached sessions.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*Session)
	m.logger.Debug().Msg("session cache cleared")
}

// CacheInfo describes the cache state. Keys identify (account, region, role)
// triples only; no key material is ever exposed.
type CacheInfo struct {
	Enabled bool
	Size    int
	Keys    []string
}

// CacheInfo returns the current cache state.
func (m *Manager) CacheInfo() CacheInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := CacheInfo{
		Enabled: m.cfg.EnableCaching,
		Size:    len(m.cache),
	}
	if m.cfg.EnableCaching {
		for k := range m.cache {
			info.Keys = append(info.Keys, k)
		}
		sort.Strings(info.Keys)
	}
	return info
}

func strFromPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
