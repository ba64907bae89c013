package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"

	"github.com/rusamer/envgod/internal/config"
	"github.com/rusamer/envgod/internal/credential/keyring"
	"github.com/rusamer/envgod/internal/doctor"
	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/loader"
	"github.com/rusamer/envgod/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check envgod configuration and credentials",
	Long: `Checks that configuration resolves, a runtime key can be found, the OS
keychain is reachable and, for awssm:// keys, that AWS credentials work.
With --online it also performs a full load against the control plane.

Secret values are never printed.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorOnline bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorOnline, "online", false, "also load the bundle from the control plane")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println(ui.Bold("envgod doctor"))
	fmt.Println()

	store := keyring.New()
	l := loader.New(loader.Options{Store: store, Sink: environ.NewMap(nil), UserAgent: "envgod-cli/" + version})
	cfg, cfgErr := l.ResolveConfig(flags.overrides())

	reg := doctor.NewRegistry()
	reg.Register(&configCheck{cfg: cfg, err: cfgErr})
	reg.Register(&keychainCheck{store: store})
	if cfgErr == nil {
		reg.Register(&credentialCheck{loader: l, cfg: cfg})
		if ref := rawRuntimeKey(cfg, environ.OS{}); strings.HasPrefix(ref, "awssm://") {
			reg.Register(&awsCheck{identity: callerIdentity})
		}
		if doctorOnline {
			reg.Register(&controlPlaneCheck{loader: l})
		}
	}

	if failed := reg.Run(cmd.Context(), os.Stdout); failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// rawRuntimeKey returns the configured key or reference before
// dereferencing, or "" when it would come from the keychain.
func rawRuntimeKey(cfg *config.Config, env environ.Source) string {
	if cfg.RuntimeKey != "" {
		return cfg.RuntimeKey
	}
	v, _ := env.Lookup(config.EnvRuntimeKey)
	return v
}

type configCheck struct {
	cfg *config.Config
	err error
}

func (c *configCheck) Name() string { return "Configuration" }

func (c *configCheck) Run(context.Context) doctor.Result {
	if c.err != nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Summary: "configuration is incomplete",
			Detail:  strings.Split(c.err.Error(), "\n"),
		}
	}
	org := c.cfg.Org
	if org == "" {
		org = ui.Dim("(none)")
	}
	return doctor.Result{
		Summary: "configuration resolved",
		Detail: []string{
			"API URL:     " + c.cfg.APIURL,
			"Org:         " + org,
			"Project:     " + c.cfg.Project,
			"Environment: " + c.cfg.Environment,
			"Service:     " + c.cfg.Service,
			"Timeout:     " + c.cfg.Timeout.String(),
		},
	}
}

type keychainCheck struct {
	store *keyring.Store
}

func (c *keychainCheck) Name() string { return "Keychain" }

func (c *keychainCheck) Run(context.Context) doctor.Result {
	if err := c.store.Available(); err != nil {
		return doctor.Result{
			Status:  doctor.StatusWarn,
			Summary: "keychain unavailable; set " + config.EnvRuntimeKey + " instead",
			Detail:  []string{err.Error()},
		}
	}
	return doctor.Result{Summary: "keychain reachable"}
}

type credentialCheck struct {
	loader *loader.Loader
	cfg    *config.Config
}

func (c *credentialCheck) Name() string { return "Runtime key" }

func (c *credentialCheck) Run(ctx context.Context) doctor.Result {
	_, source, err := c.loader.ResolveKey(ctx, c.cfg)
	if err != nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Summary: "no usable runtime key",
			Detail:  strings.Split(err.Error(), "\n"),
		}
	}
	return doctor.Result{Summary: fmt.Sprintf("runtime key found (source: %s)", source)}
}

func callerIdentity(ctx context.Context) (*sts.GetCallerIdentityOutput, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}

type awsCheck struct {
	identity func(ctx context.Context) (*sts.GetCallerIdentityOutput, error)
}

func (c *awsCheck) Name() string { return "AWS credentials" }

func (c *awsCheck) Run(ctx context.Context) doctor.Result {
	out, err := c.identity(ctx)
	if err != nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Summary: "AWS credentials not usable for awssm:// runtime key",
			Detail:  []string{err.Error(), "Configure credentials with: aws configure (or aws sso login)"},
		}
	}
	return doctor.Result{
		Summary: "AWS credentials valid",
		Detail: []string{
			"Account: " + aws.ToString(out.Account),
			"ARN:     " + aws.ToString(out.Arn),
		},
	}
}

type controlPlaneCheck struct {
	loader *loader.Loader
}

func (c *controlPlaneCheck) Name() string { return "Control plane" }

func (c *controlPlaneCheck) Run(ctx context.Context) doctor.Result {
	vars, err := c.loader.Load(ctx, flags.overrides())
	if err != nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Summary: "load failed",
			Detail:  strings.Split(err.Error(), "\n"),
		}
	}
	return doctor.Result{Summary: fmt.Sprintf("loaded %d variable(s)", len(vars))}
}
