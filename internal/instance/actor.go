// Package instance implements the lifecycle flows: locating an instance by
// name and starting, stopping, or describing it through the session that
// found it.
package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ec2nav/ec2nav/internal/awsops"
	"github.com/ec2nav/ec2nav/internal/resolver"
)

// ErrNotFound means the name matched nothing in any account or region.
var ErrNotFound = errors.New("instance not found")

const (
	// startStopMaxWait bounds the --wait polling for a state transition.
	startStopMaxWait = 10 * time.Minute
	// preStartStopWait bounds the wait for a stopping instance to settle
	// before it can be started again.
	preStartStopWait = 5 * time.Minute
)

// Finder locates an instance and hands back a bound client.
// *resolver.Resolver satisfies it.
type Finder interface {
	FindWithClient(ctx context.Context, name string) (*resolver.Match, error)
}

// Control performs the state transitions. *awsops.ClientFactory satisfies it.
type Control interface {
	StartInstance(ctx context.Context, client awsops.InstanceAPI, instanceID string) error
	StopInstance(ctx context.Context, client awsops.InstanceAPI, instanceID string) error
	WaitUntilRunning(ctx context.Context, client awsops.InstanceAPI, instanceID string, maxWait time.Duration) error
	WaitUntilStopped(ctx context.Context, client awsops.InstanceAPI, instanceID string, maxWait time.Duration) error
}

// Options adjust a lifecycle operation.
type Options struct {
	// Wait blocks until the instance fully reaches its target state.
	Wait bool
	// DryRun reports what would happen without changing anything.
	DryRun bool
	// AutoConfirm skips the interactive confirmation prompts.
	AutoConfirm bool
}

// Actor runs lifecycle operations against instances located by name.
type Actor struct {
	finder   Finder
	control  Control
	accounts []resolver.Account
	out      io.Writer
	confirm  func(prompt string) bool
	logger   zerolog.Logger
}

// New creates an actor. confirm is consulted before any state change; it
// receives the prompt text and returns the user's decision.
func New(finder Finder, control Control, accounts []resolver.Account, out io.Writer, confirm func(string) bool, logger zerolog.Logger) *Actor {
	return &Actor{
		finder:   finder,
		control:  control,
		accounts: accounts,
		out:      out,
		confirm:  confirm,
		logger:   logger,
	}
}

// Start locates the named instance and starts it. A declined confirmation
// cancels the operation without error; a missing instance is an error.
func (a *Actor) Start(ctx context.Context, name string, opts Options) error {
	match, err := a.locate(ctx, name)
	if err != nil {
		return err
	}

	id := match.Instance.InstanceID
	state := match.Instance.State

	switch state {
	case "running":
		fmt.Fprintf(a.out, "Instance %s (%s) is already running.\n", name, id)
		return nil

	case "pending":
		fmt.Fprintf(a.out, "Instance %s (%s) is already starting.\n", name, id)
		if opts.Wait {
			return a.waitRunning(ctx, match, name)
		}
		return nil

	case "stopping":
		fmt.Fprintf(a.out, "Instance %s (%s) is currently stopping.\n", name, id)
		if !opts.AutoConfirm && !a.confirm("Wait for it to stop and then start it?") {
			a.cancelled(name, id)
			return nil
		}
		fmt.Fprintln(a.out, "Waiting for instance to stop before starting...")
		if err := a.control.WaitUntilStopped(ctx, match.Client, id, preStartStopWait); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Instance %s (%s) has stopped. Now starting...\n", name, id)

	case "stopped":
		// Proceed.

	default:
		return fmt.Errorf("instance %s (%s) is in state %q and cannot be started", name, id, state)
	}

	if opts.DryRun {
		fmt.Fprintf(a.out, "DRY RUN: would start instance %s (%s). No changes made.\n", name, id)
		return nil
	}

	if !opts.AutoConfirm {
		fmt.Fprintf(a.out, "This will start instance %s (%s) in account %s, region %s.\n",
			name, id, match.Account.Name, match.Region)
		if !a.confirm("Are you sure you want to start this instance?") {
			a.cancelled(name, id)
			return nil
		}
	}

	a.logger.Info().
		Str("instance_id", id).
		Str("account", match.Account.Name).
		Str("region", match.Region).
		Msg("starting instance")

	if err := a.control.StartInstance(ctx, match.Client, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Start request sent for instance %s (%s).\n", name, id)

	if opts.Wait {
		return a.waitRunning(ctx, match, name)
	}
	fmt.Fprintln(a.out, "Use --wait to block until the instance is fully running.")
	return nil
}

// Stop locates the named instance and stops it.
func (a *Actor) Stop(ctx context.Context, name string, opts Options) error {
	match, err := a.locate(ctx, name)
	if err != nil {
		return err
	}

	id := match.Instance.InstanceID
	state := match.Instance.State

	switch state {
	case "stopped":
		fmt.Fprintf(a.out, "Instance %s (%s) is already stopped.\n", name, id)
		return nil

	case "stopping":
		fmt.Fprintf(a.out, "Instance %s (%s) is already stopping.\n", name, id)
		if opts.Wait {
			return a.waitStopped(ctx, match, name)
		}
		return nil

	case "running", "pending":
		// Proceed.

	default:
		return fmt.Errorf("instance %s (%s) is in state %q and cannot be stopped", name, id, state)
	}

	if opts.DryRun {
		fmt.Fprintf(a.out, "DRY RUN: would stop instance %s (%s). No changes made.\n", name, id)
		return nil
	}

	if !opts.AutoConfirm {
		fmt.Fprintf(a.out, "This will stop instance %s (%s) in account %s, region %s.\n",
			name, id, match.Account.Name, match.Region)
		if !a.confirm("Are you sure you want to stop this instance?") {
			a.cancelled(name, id)
			return nil
		}
	}

	a.logger.Info().
		Str("instance_id", id).
		Str("account", match.Account.Name).
		Str("region", match.Region).
		Msg("stopping instance")

	if err := a.control.StopInstance(ctx, match.Client, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Stop request sent for instance %s (%s).\n", name, id)

	if opts.Wait {
		return a.waitStopped(ctx, match, name)
	}
	fmt.Fprintln(a.out, "Use --wait to block until the instance is fully stopped.")
	return nil
}

// locate runs the cross-account search and renders the not-found report.
func (a *Actor) locate(ctx context.Context, name string) (*resolver.Match, error) {
	fmt.Fprintf(a.out, "Searching for EC2 instance: %s\n", name)

	match, err := a.finder.FindWithClient(ctx, name)
	if err != nil {
		return nil, err
	}
	if match == nil {
		fmt.Fprintf(a.out, "No EC2 instance found with name tag %q.\n", name)
		if len(a.accounts) == 0 {
			fmt.Fprintln(a.out, "No accounts configured; run 'ec2nav config init' first.")
		} else {
			fmt.Fprintln(a.out, "Accounts checked:")
			for _, acct := range a.accounts {
				fmt.Fprintf(a.out, "  %s (%s)\n", acct.Name, acct.ID)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	fmt.Fprintf(a.out, "Found %s (%s) in account %s, region %s, state %s.\n",
		name, match.Instance.InstanceID, match.Account.Name, match.Region, match.Instance.State)
	return match, nil
}

func (a *Actor) waitRunning(ctx context.Context, match *resolver.Match, name string) error {
	fmt.Fprintln(a.out, "Waiting for instance to fully start...")
	if err := a.control.WaitUntilRunning(ctx, match.Client, match.Instance.InstanceID, startStopMaxWait); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Instance %s (%s) is now running.\n", name, match.Instance.InstanceID)
	return nil
}

func (a *Actor) waitStopped(ctx context.Context, match *resolver.Match, name string) error {
	fmt.Fprintln(a.out, "Waiting for instance to fully stop...")
	if err := a.control.WaitUntilStopped(ctx, match.Client, match.Instance.InstanceID, startStopMaxWait); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Instance %s (%s) has stopped.\n", name, match.Instance.InstanceID)
	return nil
}

func (a *Actor) cancelled(name, id string) {
	fmt.Fprintln(a.out, "Operation cancelled.")
	a.logger.Info().Str("instance_id", id).Str("name", name).Msg("operation cancelled by user")
}
