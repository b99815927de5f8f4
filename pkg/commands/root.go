// Package commands provides the d365odata command-line interface.
package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"d365odata/pkg/config"
	"d365odata/pkg/dynamics"
)

// Version information (set at build time).
var Version = "0.1.0"

type rootOptions struct {
	storePath  string
	dotEnv     string
	configName string
	logger     *zap.Logger
	level      zap.AtomicLevel
}

// NewRootCmd creates the root command. level is raised to debug when --verbose resolves to true.
func NewRootCmd(logger *zap.Logger, level zap.AtomicLevel) *cobra.Command {
	opts := &rootOptions{logger: logger, level: level}

	root := &cobra.Command{
		Use:   "d365odata",
		Short: "Query Dynamics 365 Finance & Operations OData metadata",
		Long: `d365odata reads the public entity and public enumeration metadata that a
Dynamics 365 Finance & Operations environment exposes over OData.

Connection settings come from the active stored configuration, DYNAMICS_*
environment variables (a .env file is read too) and flags, in increasing order
of precedence.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.String("tenant", "", "Azure Active Directory tenant id (GUID)")
	pf.String("url", "", "URL of the Finance & Operations environment, also used as the token resource")
	pf.String("system-url", "", "URL used for the OData calls when it differs from --url")
	pf.String("client-id", "", "client id of the Azure AD app registration")
	pf.String("client-secret", "", "client secret of the Azure AD app registration")
	pf.String("token", "", "pre-fetched bearer token, skips the client credentials grant")
	pf.String("authority", "", "Azure AD authority (default "+dynamics.DefaultAuthority+")")
	pf.Duration("timeout", 0, "request timeout (default 1m0s)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.StringVar(&opts.storePath, "config-file", "", "config store (default $HOME/"+config.DefaultFileName+")")
	pf.StringVar(&opts.dotEnv, "env-file", config.DefaultDotEnv, ".env file with DYNAMICS_* variables")
	pf.StringVar(&opts.configName, "config-name", "", "stored configuration to use instead of the active one")

	root.AddCommand(
		newPublicEntityCmd(opts),
		newPublicEnumCmd(opts),
		newTokenCmd(opts),
		newConfigCmd(opts),
	)

	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, logger *zap.Logger, level zap.AtomicLevel) error {
	return NewRootCmd(logger, level).ExecuteContext(ctx)
}

func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		StorePath:  o.storePath,
		DotEnv:     o.dotEnv,
		ConfigName: o.configName,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, &dynamics.QueryError{Kind: dynamics.ErrConfiguration, Err: err}
	}
	if cfg.Verbose {
		o.level.SetLevel(zapcore.DebugLevel)
	}
	if cfg.ConfigName != "" {
		o.logger.Debug("using stored configuration", zap.String("name", cfg.ConfigName))
	}
	return cfg, nil
}

func (o *rootOptions) newClient(cfg *config.Config) *dynamics.D365 {
	return dynamics.NewD365Client(cfg.Connection(),
		dynamics.WithAuthority(cfg.Authority),
		dynamics.WithTimeout(cfg.Timeout),
		dynamics.WithLogger(o.logger),
	)
}

// fail either returns err or logs it as a warning and stops quietly.
func (o *rootOptions) fail(enableException bool, err error) error {
	if enableException {
		return err
	}
	fields := []zap.Field{zap.Error(err)}
	var qe *dynamics.QueryError
	if errors.As(err, &qe) && qe.Term != "" {
		fields = append(fields, zap.String("term", qe.Term))
	}
	o.logger.Warn("command stopped", fields...)
	return nil
}
