package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/log"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run a command with the secret bundle in its environment",
	Long: `Loads the secret bundle and runs the command with every variable added
to its environment. The parent environment is inherited; bundle values
win on conflict. The command's exit status is returned.

Examples:
  envgod run -- node server.js
  envgod run -p billing -e prod -s api -- ./bin/api`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	bundle := environ.NewMap(nil)
	if _, err := newClient(bundle).LoadEnv(cmd.Context(), flags.overrides()); err != nil {
		return err
	}

	child := exec.Command(args[0], args[1:]...)
	child.Env = mergeEnv(os.Environ(), bundle.Snapshot())
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", args[0], err)
	}
	log.Debug("started child process", "command", args[0], "pid", child.Process.Pid, "vars", len(bundle.Snapshot()))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for sig := range sigs {
			_ = child.Process.Signal(sig)
		}
	}()

	err := child.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
		}
		return &ExitError{Code: code}
	}
	return err
}

// mergeEnv returns base with vars applied, replacing existing entries for
// the same name.
func mergeEnv(base []string, vars map[string]string) []string {
	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		name, _, _ := cutEnv(kv)
		if _, ok := vars[name]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range sortedKeys(vars) {
		out = append(out, k+"="+vars[k])
	}
	return out
}

func cutEnv(kv string) (name, value string, ok bool) {
	for i := 1; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return kv, "", false
}
