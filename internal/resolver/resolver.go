// Package resolver locates EC2 instances by Name tag across the account
// registry and region search list, delegating into each account as it goes.
package resolver

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ec2nav/ec2nav/internal/awsops"
	"github.com/ec2nav/ec2nav/internal/session"
)

// Account is one registry entry to search.
type Account struct {
	Name string
	ID   string
}

// SessionProvider delegates into a target account. *session.Manager
// satisfies it.
type SessionProvider interface {
	Assume(ctx context.Context, accountID, region string) (*session.Session, error)
}

// InstanceService performs the EC2 queries. *awsops.ClientFactory satisfies it.
type InstanceService interface {
	InstanceClient(sess *session.Session, region string) awsops.InstanceAPI
	FindInstancesByName(ctx context.Context, client awsops.InstanceAPI, name string) ([]awsops.Instance, error)
	EnabledRegions(ctx context.Context, client awsops.InstanceAPI) ([]string, error)
}

// Config fixes the search space.
type Config struct {
	// Accounts to search. Order does not matter; the resolver sorts by name
	// so results are deterministic.
	Accounts []Account

	// Regions is the ordered region list queried per account.
	Regions []string

	// DiscoverRegions queries each account's own enabled-region list instead
	// of Regions, at the cost of one extra round trip per account.
	DiscoverRegions bool

	// SeedRegion is where the region-discovery call itself is sent.
	// Defaults to us-east-1.
	SeedRegion string
}

// Match is a located instance together with everything needed to act on it.
type Match struct {
	Account Account
	// Region is where the instance actually lives, derived from its
	// availability zone. It may differ from the region that was queried.
	Region   string
	Instance awsops.Instance
	Session  *session.Session
	// Client is the EC2 client bound to the match, populated only by
	// FindWithClient.
	Client awsops.InstanceAPI
}

// Resolver walks accounts × regions sequentially and stops at the first hit.
type Resolver struct {
	cfg      Config
	sessions SessionProvider
	svc      InstanceService
	logger   zerolog.Logger
}

func New(cfg Config, sessions SessionProvider, svc InstanceService, logger zerolog.Logger) *Resolver {
	return &Resolver{
		cfg:      cfg,
		sessions: sessions,
		svc:      svc,
		logger:   logger,
	}
}

// Find locates the first instance with the given Name tag. A completed search
// with no hit returns (nil, nil); the only error returned is context
// cancellation. Inaccessible accounts and regions are logged and skipped.
func (r *Resolver) Find(ctx context.Context, name string) (*Match, error) {
	return r.search(ctx, name, false)
}

// FindWithClient is Find plus a ready-to-use EC2 client bound to the
// account and region that served the match, for immediate follow-up calls.
func (r *Resolver) FindWithClient(ctx context.Context, name string) (*Match, error) {
	return r.search(ctx, name, true)
}

func (r *Resolver) search(ctx context.Context, name string, withClient bool) (*Match, error) {
	accounts := make([]Account, len(r.cfg.Accounts))
	copy(accounts, r.cfg.Accounts)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })

	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		regions, err := r.regionsFor(ctx, acct)
		if err != nil {
			r.logDelegationFailure(acct, err)
			continue
		}

		for _, region := range regions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			sess, err := r.sessions.Assume(ctx, acct.ID, region)
			if err != nil {
				// Delegation into this account is broken; the remaining
				// regions would fail the same way.
				r.logDelegationFailure(acct, err)
				break
			}

			client := r.svc.InstanceClient(sess, region)
			instances, err := r.svc.FindInstancesByName(ctx, client, name)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				r.logQueryFailure(acct, region, err)
				continue
			}

			if len(instances) == 0 {
				r.logger.Debug().
					Str("account", acct.Name).
					Str("region", region).
					Str("name", name).
					Msg("no match")
				continue
			}

			inst := instances[0]
			match := &Match{
				Account:  acct,
				Region:   normalizeRegion(inst.AvailabilityZone, region),
				Instance: inst,
				Session:  sess,
			}
			if withClient {
				match.Client = client
			}

			r.logger.Info().
				Str("account", acct.Name).
				Str("region", match.Region).
				Str("instance_id", inst.InstanceID).
				Str("state", inst.State).
				Msg("instance located")
			return match, nil
		}
	}

	r.logger.Info().Str("name", name).Msg("instance not found in any account or region")
	return nil, nil
}

// regionsFor returns the region list to query for one account. An error here
// means delegation into the account failed entirely.
func (r *Resolver) regionsFor(ctx context.Context, acct Account) ([]string, error) {
	if !r.cfg.DiscoverRegions {
		return r.cfg.Regions, nil
	}

	seed := r.cfg.SeedRegion
	if seed == "" {
		seed = "us-east-1"
	}

	sess, err := r.sessions.Assume(ctx, acct.ID, seed)
	if err != nil {
		return nil, err
	}

	regions, err := r.svc.EnabledRegions(ctx, r.svc.InstanceClient(sess, seed))
	if err != nil {
		// Discovery mode trusts only the account's own region list; a failed
		// query leaves nothing to search in this account.
		r.logger.Warn().
			Str("account", acct.Name).
			Err(err).
			Msg("region discovery failed, skipping account")
		return nil, nil
	}
	return regions, nil
}

func (r *Resolver) logDelegationFailure(acct Account, err error) {
	evt := r.logger.Warn().Str("account", acct.Name).Str("account_id", acct.ID)
	var derr *session.Error
	if e, ok := err.(*session.Error); ok {
		derr = e
	}
	if derr != nil {
		evt = evt.Str("kind", string(derr.Kind)).Str("code", derr.Code)
	}
	evt.Err(err).Msg("cannot delegate into account, skipping it")
}

// logQueryFailure classifies a per-region query error. Plain lack of access
// is routine in a multi-account scan and stays out of the default output.
func (r *Resolver) logQueryFailure(acct Account, region string, err error) {
	code := awsops.APIErrorCode(err)
	evt := r.logger.Warn()
	if awsops.IsExpectedInaccessible(code) {
		evt = r.logger.Debug()
	}
	evt.Str("account", acct.Name).
		Str("region", region).
		Str("code", code).
		Err(err).
		Msg("region query failed, continuing")
}

// normalizeRegion derives the instance's true region from its availability
// zone: an AZ like eu-west-1b is the region plus one trailing letter. A
// missing or unrecognized AZ falls back to the region that was queried.
func normalizeRegion(az, queryRegion string) string {
	if az == "" {
		return queryRegion
	}
	last := az[len(az)-1]
	if (last >= 'a' && last <= 'z') || (last >= 'A' && last <= 'Z') {
		return az[:len(az)-1]
	}
	return queryRegion
}
