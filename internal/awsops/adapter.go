// Package awsops provides the AWS SDK v2 adapter layer: rate-limited,
// audit-logged EC2 and STS clients bound to delegated sessions.
package awsops

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/ec2nav/ec2nav/internal/audit"
	"github.com/ec2nav/ec2nav/internal/logging"
	"github.com/ec2nav/ec2nav/internal/session"
)

// InstanceAPI is the subset of the EC2 client the tool uses. *ec2.Client
// satisfies it; tests inject fakes. The SDK's paginators and waiters accept
// any implementation of the DescribeInstances method.
type InstanceAPI interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// ClientFactory creates rate-limited, audit-logged AWS service clients from
// delegated sessions.
type ClientFactory struct {
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	auditLogger *audit.Logger
}

// NewClientFactory creates a new AWS client factory.
func NewClientFactory(logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		rateLimiter: NewRateLimiter(10),
		logger:      logger,
	}
}

// NewClientFactoryWithAudit creates a factory that records every API call to
// the audit database.
func NewClientFactoryWithAudit(logger zerolog.Logger, al *audit.Logger) *ClientFactory {
	f := NewClientFactory(logger)
	f.auditLogger = al
	return f
}

func (f *ClientFactory) awsConfig(sess *session.Session, region string) aws.Config {
	return aws.Config{
		Region:           region,
		Credentials:      sess.Credentials(),
		RetryMaxAttempts: 5,
	}
}

// InstanceClient creates an EC2 client for the session, overriding the
// session region when a different query region is requested.
func (f *ClientFactory) InstanceClient(sess *session.Session, region string) InstanceAPI {
	if region == "" {
		region = sess.Region
	}
	return ec2.NewFromConfig(f.awsConfig(sess, region))
}

// logAPICall records an API call to both the structured logger and the audit
// database. Secret-named parameters are redacted before anything persists.
func (f *ClientFactory) logAPICall(service, operation string, params map[string]string, err error) {
	f.logger.Debug().Str("service", service).Str("operation", operation).Msg("aws api call")

	if f.auditLogger == nil {
		return
	}

	detail := map[string]string{
		"service":   service,
		"operation": operation,
	}
	for k, v := range params {
		if logging.IsSecretField(k) {
			detail[k] = logging.RedactValue(v)
		} else {
			detail[k] = v
		}
	}
	if err != nil {
		detail["error"] = err.Error()
	}
	f.auditLogger.Log(audit.EventAPICall, "local", detail)
}

// RegionalSTSFactory returns a session.ClientFactory that binds each STS
// client to its regional endpoint. Role assumption must happen against the
// target region's endpoint so opted-in regions resolve correctly.
func RegionalSTSFactory(base aws.Config) session.ClientFactory {
	return func(region string) session.STSAPI {
		return sts.NewFromConfig(base, func(o *sts.Options) {
			o.Region = region
			o.BaseEndpoint = aws.String("https://sts." + region + ".amazonaws.com")
		})
	}
}

// --- Rate Limiter ---

type RateLimiter struct {
	mu         sync.Mutex
	ratePerSec int
	lastCall   map[string]time.Time
}

func NewRateLimiter(ratePerSec int) *RateLimiter {
	return &RateLimiter{
		ratePerSec: ratePerSec,
		lastCall:   make(map[string]time.Time),
	}
}

func (rl *RateLimiter) Wait(service string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	minInterval := time.Second / time.Duration(rl.ratePerSec)
	last, ok := rl.lastCall[service]
	if ok {
		elapsed := time.Since(last)
		if elapsed < minInterval {
			time.Sleep(minInterval - elapsed)
		}
	}
	rl.lastCall[service] = time.Now()
}
