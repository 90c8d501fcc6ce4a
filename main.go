package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/binsquare/keyscrub/scrub"
	"github.com/binsquare/keyscrub/secretstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// rulesPath can be set via --config to replace the compiled-in rules.
	rulesPath string
	verbose   bool
	// globalConfigPath can be set via --backends.
	globalConfigPath string
)

var errSecretsPresent = errors.New("secrets present in target")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyscrub",
		Short: "keyscrub removes leaked credentials from a file during a history rewrite",
		Long: `keyscrub replaces hard-coded credential literals in one file with
environment-variable placeholders. Run without a subcommand it scrubs the
working directory with the built-in rules and always exits 0, so it can be
used as a git filter-branch tree filter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runScrub(rulesPath, verbose)
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(context.Background())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVar(&rulesPath, "config", "", "path to a rules file (default: built-in rules)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every step to stderr")

	cmd.AddCommand(
		newScrubCmd(),
		newCheckCmd(),
		newAuditCmd(),
		newMigrateCmd(),
		newInitCmd(),
		newKeygenCmd(),
		newValidateCmd(),
		newFilterCommandCmd(),
		newBackendsCmd(),
	)
	return cmd
}

// runScrub never fails: an unusable rules file is logged and reported as a
// failed, unchanged run.
func runScrub(path string, verbose bool) scrub.Result {
	logger, err := newLogger(verbose, zapcore.ErrorLevel)
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	rf, err := LoadRulesFile(path)
	if err != nil {
		logger.Error("rules file unusable, nothing scrubbed", zap.Error(err))
		return scrub.Result{Outcome: scrub.Failed, Err: err}
	}
	return scrub.NewOS(".", logger).Scrub(rf.Config)
}

func newScrubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrub",
		Short: "Replace the configured secrets in the target file (always exits 0)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runScrub(rulesPath, verbose)
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	var failOnSecrets bool
	c := &cobra.Command{
		Use:   "check",
		Short: "Report which secrets the target file still contains, without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			rf, err := LoadRulesFile(rulesPath)
			if err != nil {
				return err
			}
			report, err := scrub.NewOS(".", logger).Inspect(rf.Config)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !report.Exists {
				fmt.Fprintf(out, "%s: not present\n", report.Path)
				return nil
			}
			fmt.Fprintf(out, "%s:\n", report.Path)
			for i, rc := range report.Counts {
				fmt.Fprintf(out, "  %s: %d occurrence(s)\n", rulesLabel(rc.Rule, i), rc.Occurrences)
			}
			if failOnSecrets && report.Dirty() {
				return errSecretsPresent
			}
			return nil
		},
	}
	c.Flags().BoolVar(&failOnSecrets, "fail", false, "exit 1 if any secret is present")
	return c
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Scan the target file with gitleaks for secrets no rule covers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			rf, err := LoadRulesFile(rulesPath)
			if err != nil {
				return err
			}
			raw, err := scrub.NewOS(".", logger).ReadTarget(rf.Config)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not present\n", rf.TargetPath)
					return nil
				}
				return fmt.Errorf("read %s: %w", rf.TargetPath, err)
			}
			findings, err := auditContent(string(raw), rf.Rules)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(findings) == 0 {
				fmt.Fprintf(out, "%s: no uncovered secrets\n", rf.TargetPath)
				return nil
			}
			for _, f := range findings {
				fmt.Fprintf(out, "%s:%d: %s %s\n", rf.TargetPath, f.Line, f.RuleID, MaskValue(f.Secret))
			}
			return fmt.Errorf("%d secret(s) not covered by any rule", len(findings))
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var (
		backendName  string
		dryRun       bool
		verify       bool
		skipExisting bool
	)
	c := &cobra.Command{
		Use:   "migrate [--to BACKEND]",
		Short: "Store each scrubbed secret in a backend under its environment variable name",
		Long: `Store each rule's secret in a secret backend under the environment variable
name its placeholder reads, so the rewritten code keeps working once the
backend is wired into the runtime environment.

Backends are defined in ~/.keyscrub/config.yaml:

  backends:
    prod-vault:
      type: vault
      address: https://vault.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			rf, err := LoadRulesFile(rulesPath)
			if err != nil {
				return err
			}
			if backendName != "" {
				rf.Destination.Backend = backendName
			}
			steps, err := PlanMigration(rf)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				for _, s := range steps {
					fmt.Fprintf(out, "would store %s -> %s (%s)\n", s.Env, s.Name, MaskValue(s.Secret))
				}
				return nil
			}
			globalCfg, err := LoadGlobalConfig(globalConfigPath)
			if err != nil {
				return err
			}
			store, err := OpenDestination(globalCfg, rf.Destination.Backend)
			if err != nil {
				return err
			}
			if skipExisting {
				steps, err = MissingSecrets(cmd.Context(), store, steps)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Storing %d secret(s) in %s\n", len(steps), rf.Destination.Backend)
			return Migrate(cmd.Context(), store, steps, verify, out, logger)
		},
	}
	c.Flags().StringVar(&backendName, "to", "", "backend name from the global config (overrides destination.backend)")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be stored without contacting the backend")
	c.Flags().BoolVar(&verify, "verify", false, "read each secret back after storing it")
	c.Flags().BoolVar(&skipExisting, "skip-existing", false, "only store secrets the backend does not have yet")
	c.Flags().StringVar(&globalConfigPath, "backends", "", "path to the backends file (default ~/.keyscrub/config.yaml)")
	return c
}

func newInitCmd() *cobra.Command {
	var out, fromEnv string
	c := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a rules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = DefaultRulesPath()
			}
			return runInteractiveInit(initOptions{
				out:        out,
				fromEnv:    fromEnv,
				in:         cmd.InOrStdin(),
				stdout:     cmd.OutOrStdout(),
				readSecret: readSecretFromPrompt,
			})
		},
	}
	c.Flags().StringVarP(&out, "out", "o", "", "where to write the rules file (default ~/.keyscrub/rules.yaml)")
	c.Flags().StringVar(&fromEnv, "from-env", "", "take env names and leaked values from a .env file")
	return c
}

func newKeygenCmd() *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key for the local-file backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = filepath.Join(keyscrubHome(), "key")
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("key file %s already exists; remove it first if you want to regenerate", output)
			}
			if err := secretstore.GenerateKeyFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated encryption key: %s\n", output)
			fmt.Fprintln(cmd.OutOrStdout(), "Keep this file secure and backed up. Do not commit to version control.")
			return nil
		},
	}
	c.Flags().StringVarP(&output, "output", "o", "", "output path (default: ~/.keyscrub/key)")
	return c
}

func newValidateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate the rules file and its destination backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rf, err := LoadRulesFile(rulesPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Target: %s\n", rf.TargetPath)
			fmt.Fprintf(out, "Rules: %d\n", len(rf.Rules))
			for i, r := range rf.Rules {
				fmt.Fprintf(out, "  %s -> %s\n", rulesLabel(r, i), r.Replacement)
			}
			if rf.Destination.Backend == "" {
				fmt.Fprintln(out, "No destination backend; migrate needs --to.")
				return nil
			}
			if _, err := PlanMigration(rf); err != nil {
				return err
			}
			globalCfg, err := LoadGlobalConfig(globalConfigPath)
			if err != nil {
				return err
			}
			backendCfg, err := globalCfg.Backend(rf.Destination.Backend)
			if err != nil {
				return err
			}
			b, ok := secretstore.Lookup(backendCfg.Type)
			if !ok {
				return fmt.Errorf("backend %q has unknown type %q (available: %s)", rf.Destination.Backend, backendCfg.Type, strings.Join(secretstore.Types(), ", "))
			}
			fmt.Fprintf(out, "Destination: %s (%s)\n", rf.Destination.Backend, b.Description)
			fmt.Fprintln(out, "Configuration looks good.")
			return nil
		},
	}
	c.Flags().StringVar(&globalConfigPath, "backends", "", "path to the backends file (default ~/.keyscrub/config.yaml)")
	return c
}

func newFilterCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter-command",
		Short: "Print the git filter-branch command that runs the scrub on every commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate keyscrub binary: %w", err)
			}
			abs := ""
			if rulesPath != "" {
				if _, err := LoadRulesFile(rulesPath); err != nil {
					return err
				}
				abs, err = filepath.Abs(rulesPath)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), filterBranchCommand(exe, abs))
			return nil
		},
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the secret backend types migrate can write to",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, t := range secretstore.Types() {
				b, _ := secretstore.Lookup(t)
				fmt.Fprintf(out, "%-20s %s (requires: %s)\n", b.Type, b.Description, strings.Join(b.RequiredFields, ", "))
			}
			return nil
		},
	}
}

func commandLogger() (*zap.Logger, error) {
	return newLogger(verbose, zapcore.WarnLevel)
}
