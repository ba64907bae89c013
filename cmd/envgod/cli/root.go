// Package cli implements the envgod command-line interface using Cobra.
// It loads secret bundles into child processes, exports them, manages the
// runtime key in the OS keychain and diagnoses configuration problems.
package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rusamer/envgod"
	"github.com/rusamer/envgod/internal/config"
	"github.com/rusamer/envgod/internal/credential/keyring"
	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/log"
)

// debugRetentionDays bounds how long debug log files are kept.
const debugRetentionDays = 14

var (
	verbose bool
	jsonOut bool
	flags   overrideFlags
)

// overrideFlags mirrors config.Overrides for the persistent flags.
type overrideFlags struct {
	configFile  string
	apiURL      string
	runtimeKey  string
	org         string
	project     string
	environment string
	service     string
	timeout     time.Duration
}

func (f overrideFlags) overrides() config.Overrides {
	return config.Overrides{
		APIURL:      f.apiURL,
		RuntimeKey:  f.runtimeKey,
		Org:         f.org,
		Project:     f.project,
		Environment: f.environment,
		Service:     f.service,
		Timeout:     f.timeout,
		ConfigFile:  f.configFile,
	}
}

// ExitError carries a child process exit code back to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

var rootCmd = &cobra.Command{
	Use:   "envgod",
	Short: "envgod - load secret environment variables from the envgod control plane",
	Long: `envgod exchanges a runtime key for a short-lived token, fetches the
secret bundle for a project, environment and service, and hands it to
your process.

Settings come from flags, then ENVGOD_* environment variables, then
~/.envgod/config.yaml. The runtime key may also be stored in the OS
keychain with "envgod key set".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      filepath.Join(config.Dir(""), "debug"),
			RetentionDays: debugRetentionDays,
		}); err != nil {
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newClient returns an SDK client writing to sink, with keychain fallback
// for the runtime key.
func newClient(sink environ.Sink) *envgod.Client {
	envgod.Version = version
	return envgod.New(
		envgod.WithSink(sink),
		envgod.WithStore(keyring.New()),
	)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&jsonOut, "json", false, "output logs in JSON format")
	pf.StringVar(&flags.configFile, "config", "", "config file (env: "+config.EnvConfigFile+")")
	pf.StringVar(&flags.apiURL, "api-url", "", "control plane URL (env: "+config.EnvAPIURL+")")
	pf.StringVar(&flags.runtimeKey, "runtime-key", "", "runtime key or secret reference (env: "+config.EnvRuntimeKey+")")
	pf.StringVar(&flags.org, "org", "", "organization (env: "+config.EnvOrg+")")
	pf.StringVarP(&flags.project, "project", "p", "", "project (env: "+config.EnvProject+")")
	pf.StringVarP(&flags.environment, "env", "e", "", "environment (env: "+config.EnvEnvironment+")")
	pf.StringVarP(&flags.service, "service", "s", "", "service (env: "+config.EnvService+")")
	pf.DurationVar(&flags.timeout, "timeout", 0, "per-request timeout (env: "+config.EnvTimeoutMS+" in ms)")
}
