package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/ec2nav/ec2nav/internal/audit"
	"github.com/ec2nav/ec2nav/internal/awsops"
	"github.com/ec2nav/ec2nav/internal/config"
	"github.com/ec2nav/ec2nav/internal/instance"
	"github.com/ec2nav/ec2nav/internal/logging"
	"github.com/ec2nav/ec2nav/internal/resolver"
	"github.com/ec2nav/ec2nav/internal/session"
)

// app wires the configured stack together for one command invocation.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	auditDB  *sql.DB
	auditLog *audit.Logger
	sessions *session.Manager
	factory  *awsops.ClientFactory
	resolver *resolver.Resolver
	accounts []resolver.Account
}

// newApp loads the config and builds the session manager, client factory,
// and resolver on top of the caller's base AWS identity.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	db, err := audit.Open(filepath.Join(config.Dir(), config.AuditFileName))
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	auditLog, err := audit.NewLogger(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit log: %w", err)
	}

	base, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading AWS credentials: %w", err)
	}

	mgr, err := session.NewManagerWithAudit(session.Config{
		RoleName:          cfg.RoleName,
		DurationSeconds:   cfg.SessionDurationSeconds,
		SessionNamePrefix: cfg.SessionNamePrefix,
		ExternalID:        cfg.ExternalID,
		EnableCaching:     cfg.EnableSessionCache,
	}, awsops.RegionalSTSFactory(base), logger, auditLog)
	if err != nil {
		db.Close()
		return nil, err
	}

	factory := awsops.NewClientFactoryWithAudit(logger, auditLog)

	var accounts []resolver.Account
	for _, acct := range cfg.SortedAccounts() {
		accounts = append(accounts, resolver.Account{Name: acct.Name, ID: acct.ID})
	}

	res := resolver.New(resolver.Config{
		Accounts:        accounts,
		Regions:         cfg.Regions,
		DiscoverRegions: cfg.DiscoverRegions,
	}, mgr, factory, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		auditDB:  db,
		auditLog: auditLog,
		sessions: mgr,
		factory:  factory,
		resolver: res,
		accounts: accounts,
	}, nil
}

func (a *app) Close() {
	a.auditDB.Close()
}

// actor builds the lifecycle actor for start/stop/info commands.
func (a *app) actor() *instance.Actor {
	return instance.New(a.resolver, a.factory, a.accounts, os.Stdout, confirmPrompt, a.logger)
}

// logCommand records the invocation in the audit chain.
func (a *app) logCommand(name string, args []string) {
	a.auditLog.Log(audit.EventCommandExecution, "local", map[string]string{
		"command": name,
		"args":    strings.Join(args, " "),
	})
}

// confirmPrompt asks a yes/no question on the terminal. Anything but an
// explicit yes declines; a non-interactive stdin declines.
func confirmPrompt(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; refusing without --yes")
		return false
	}

	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
