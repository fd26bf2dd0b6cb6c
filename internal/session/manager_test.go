package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// fakeSTS counts credential exchanges and captures the last request.
type fakeSTS struct {
	mu        sync.Mutex
	calls     int
	lastInput *sts.AssumeRoleInput
	err       error
	expiry    time.Time
	delay     time.Duration
}

func (f *fakeSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.mu.Lock()
	f.calls++
	f.lastInput = params
	err := f.err
	expiry := f.expiry
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if expiry.IsZero() {
		expiry = time.Now().Add(1 * time.Hour)
	}
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("ASIAEXAMPLEKEY"),
			SecretAccessKey: aws.String("fake-secret"),
			SessionToken:    aws.String("fake-token"),
			Expiration:      aws.Time(expiry),
		},
	}, nil
}

func newTestManager(t *testing.T, cfg Config, fake *fakeSTS) *Manager {
	t.Helper()
	m, err := NewManagerWithAudit(cfg, func(region string) STSAPI { return fake }, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty role", Config{RoleName: "", DurationSeconds: 3600, SessionNamePrefix: "X"}},
		{"long role", Config{RoleName: strings.Repeat("r", 65), DurationSeconds: 3600, SessionNamePrefix: "X"}},
		{"duration too short", Config{RoleName: "admin", DurationSeconds: 899, SessionNamePrefix: "X"}},
		{"duration too long", Config{RoleName: "admin", DurationSeconds: 43201, SessionNamePrefix: "X"}},
		{"empty prefix", Config{RoleName: "admin", DurationSeconds: 3600, SessionNamePrefix: ""}},
		{"long prefix", Config{RoleName: "admin", DurationSeconds: 3600, SessionNamePrefix: strings.Repeat("p", 33)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.cfg, func(string) STSAPI { return &fakeSTS{} }, zerolog.Nop())
			if err == nil {
				t.Error("expected construction to fail")
			}
		})
	}
}

func TestAssumeValidatesBeforeNetwork(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		region    string
		roleName  string
	}{
		{"short account id", "12345", "us-east-1", ""},
		{"alpha account id", "12345678901a", "us-east-1", ""},
		{"empty account id", "", "us-east-1", ""},
		{"empty region", "111111111111", "", ""},
		{"long role name", "111111111111", "us-east-1", strings.Repeat("r", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSTS{}
			m := newTestManager(t, DefaultConfig(), fake)

			_, err := m.AssumeRole(context.Background(), tt.accountID, tt.region, tt.roleName)

			var derr *Error
			if !errors.As(err, &derr) || derr.Kind != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if fake.calls != 0 {
				t.Errorf("expected no credential exchange, got %d calls", fake.calls)
			}
		})
	}
}

func TestAssumeCachingReusesSession(t *testing.T) {
	fake := &fakeSTS{}
	cfg := DefaultConfig()
	cfg.EnableCaching = true
	m := newTestManager(t, cfg, fake)

	first, err := m.Assume(context.Background(), "111111111111", "us-east-1")
	if err != nil {
		t.Fatalf("assume: %v", err)
	}
	second, err := m.Assume(context.Background(), "111111111111", "us-east-1")
	if err != nil {
		t.Fatalf("assume: %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("expected 1 credential exchange, got %d", fake.calls)
	}
	if first != second {
		t.Error("expected the identical cached session")
	}

	// Different region is a different cache key.
	if _, err := m.Assume(context.Background(), "111111111111", "eu-west-1"); err != nil {
		t.Fatalf("assume: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("expected 2 credential exchanges, got %d", fake.calls)
	}
}

func TestConcurrentAssumeSharesOneExchange(t *testing.T) {
	fake := &fakeSTS{delay: 30 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.EnableCaching = true
	m := newTestManager(t, cfg, fake)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Assume(context.Background(), "111111111111", "us-east-1"); err != nil {
				t.Errorf("assume: %v", err)
			}
		}()
	}
	wg.Wait()

	fake.mu.Lock()
	calls := fake.calls
	fake.mu.Unlock()
	if calls != 1 {
		t.Errorf("concurrent identical requests must share one exchange, got %d", calls)
	}
}

func TestAssumeWithoutCachingAlwaysExchanges(t *testing.T) {
	fake := &fakeSTS{}
	m := newTestManager(t, DefaultConfig(), fake)

	m.Assume(context.Background(), "111111111111", "us-east-1")
	m.Assume(context.Background(), "111111111111", "us-east-1")

	if fake.calls != 2 {
		t.Errorf("expected 2 credential exchanges without caching, got %d", fake.calls)
	}
}

func TestAssumeExpiredCacheEntryReExchanges(t *testing.T) {
	fake := &fakeSTS{expiry: time.Now().Add(1 * time.Hour)}
	cfg := DefaultConfig()
	cfg.EnableCaching = true
	m := newTestManager(t, cfg, fake)

	if _, err := m.Assume(context.Background(), "111111111111", "us-east-1"); err != nil {
		t.Fatalf("assume: %v", err)
	}

	// Advance the manager's clock past the credential window.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	fake.expiry = time.Now().Add(3 * time.Hour)

	if _, err := m.Assume(context.Background(), "111111111111", "us-east-1"); err != nil {
		t.Fatalf("assume: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("expired cache entry must trigger a fresh exchange, got %d calls", fake.calls)
	}
}

func TestAssumeRequestShape(t *testing.T) {
	fake := &fakeSTS{}
	cfg := DefaultConfig()
	cfg.SessionNamePrefix = "OpsTeam"
	cfg.ExternalID = "corp-4821"
	cfg.DurationSeconds = 1800
	m := newTestManager(t, cfg, fake)

	sess, err := m.Assume(context.Background(), "222222222222", "eu-central-1")
	if err != nil {
		t.Fatalf("assume: %v", err)
	}

	in := fake.lastInput
	if got := aws.ToString(in.RoleArn); got != "arn:aws:iam::222222222222:role/ec2nav-admin" {
		t.Errorf("unexpected role ARN: %s", got)
	}
	if aws.ToString(in.ExternalId) != "corp-4821" {
		t.Errorf("expected external id in request, got %v", in.ExternalId)
	}
	if aws.ToInt32(in.DurationSeconds) != 1800 {
		t.Errorf("expected duration 1800, got %d", aws.ToInt32(in.DurationSeconds))
	}
	if !strings.HasPrefix(aws.ToString(in.RoleSessionName), "OpsTeam-") {
		t.Errorf("session name missing prefix: %s", aws.ToString(in.RoleSessionName))
	}
	if sess.SessionName != aws.ToString(in.RoleSessionName) {
		t.Error("session must record the name used in the exchange")
	}
}

func TestAssumeOmitsExternalIDWhenUnset(t *testing.T) {
	fake := &fakeSTS{}
	m := newTestManager(t, DefaultConfig(), fake)

	if _, err := m.Assume(context.Background(), "111111111111", "us-east-1"); err != nil {
		t.Fatalf("assume: %v", err)
	}
	if fake.lastInput.ExternalId != nil {
		t.Errorf("external id must be omitted entirely, got %q", *fake.lastInput.ExternalId)
	}
}

func TestSessionNamesAreUnique(t *testing.T) {
	fake := &fakeSTS{}
	m := newTestManager(t, DefaultConfig(), fake)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		sess, err := m.Assume(context.Background(), "111111111111", "us-east-1")
		if err != nil {
			t.Fatalf("assume: %v", err)
		}
		if seen[sess.SessionName] {
			t.Fatalf("duplicate session name: %s", sess.SessionName)
		}
		seen[sess.SessionName] = true
	}
}

func TestAssumeClassifiesRemoteDenial(t *testing.T) {
	fake := &fakeSTS{err: &smithy.GenericAPIError{
		Code:    "AccessDenied",
		Message: "User is not authorized to perform: sts:AssumeRole",
	}}
	m := newTestManager(t, DefaultConfig(), fake)

	_, err := m.Assume(context.Background(), "111111111111", "us-east-1")

	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if derr.Kind != KindDenied {
		t.Errorf("expected KindDenied, got %s", derr.Kind)
	}
	if derr.Code != "AccessDenied" {
		t.Errorf("expected remote code preserved, got %q", derr.Code)
	}
	if derr.AccountID != "111111111111" || derr.Region != "us-east-1" {
		t.Errorf("expected account/region context, got %+v", derr)
	}
}

func TestAssumeClassifiesMissingCredentials(t *testing.T) {
	fake := &fakeSTS{err: fmt.Errorf("operation error STS: AssumeRole, failed to retrieve credentials")}
	m := newTestManager(t, DefaultConfig(), fake)

	_, err := m.Assume(context.Background(), "111111111111", "us-east-1")

	var derr *Error
	if !errors.As(err, &derr) || derr.Kind != KindNoCredentials {
		t.Fatalf("expected KindNoCredentials, got %v", err)
	}
}

func TestAssumeClassifiesTransportError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	fake := &fakeSTS{err: cause}
	m := newTestManager(t, DefaultConfig(), fake)

	_, err := m.Assume(context.Background(), "111111111111", "us-east-1")

	var derr *Error
	if !errors.As(err, &derr) || derr.Kind != KindTransport {
		t.Fatalf("expected KindTransport, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("transport error must wrap the original cause")
	}
}

func TestCacheInfoAndClear(t *testing.T) {
	fake := &fakeSTS{}
	cfg := DefaultConfig()
	cfg.EnableCaching = true
	m := newTestManager(t, cfg, fake)

	m.Assume(context.Background(), "111111111111", "us-east-1")
	m.Assume(context.Background(), "222222222222", "eu-west-1")

	info := m.CacheInfo()
	if !info.Enabled || info.Size != 2 {
		t.Fatalf("unexpected cache info: %+v", info)
	}
	if len(info.Keys) != 2 || info.Keys[0] != "111111111111:us-east-1:ec2nav-admin" {
		t.Errorf("unexpected cache keys: %v", info.Keys)
	}
	for _, k := range info.Keys {
		if strings.Contains(k, "fake-secret") || strings.Contains(k, "fake-token") {
			t.Error("cache keys must not expose key material")
		}
	}

	m.ClearCache()
	if got := m.CacheInfo(); got.Size != 0 {
		t.Errorf("expected empty cache after clear, got %d entries", got.Size)
	}
}

func TestCacheInfoDisabledHidesKeys(t *testing.T) {
	fake := &fakeSTS{}
	m := newTestManager(t, DefaultConfig(), fake)

	m.Assume(context.Background(), "111111111111", "us-east-1")

	info := m.CacheInfo()
	if info.Enabled {
		t.Error("caching should be disabled by default config")
	}
	if len(info.Keys) != 0 {
		t.Errorf("disabled cache must not report keys, got %v", info.Keys)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()

	fresh := &Session{Expiry: now.Add(1 * time.Hour)}
	if fresh.Expired(now) {
		t.Error("fresh session reported expired")
	}

	nearEdge := &Session{Expiry: now.Add(10 * time.Second)}
	if !nearEdge.Expired(now) {
		t.Error("session within the skew margin must count as expired")
	}

	unknown := &Session{}
	if !unknown.Expired(now) {
		t.Error("session without an expiry must count as expired")
	}
}
