package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rusamer/envgod/internal/config"
	"github.com/rusamer/envgod/internal/credential/keyring"
	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/ui"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the runtime key stored in the OS keychain",
	Long: `Stores or removes the runtime key in the OS keychain. Keys are stored
per control plane URL, organization, project, environment and service, so
set those (flags, environment or config file) before running these
commands.

The stored value may be a secret reference such as op://vault/item/field
or awssm:///name, which is resolved on each token exchange.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the runtime key (read from a prompt or stdin)",
	Args:  cobra.NoArgs,
	RunE:  runKeySet,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored runtime key",
	Args:  cobra.NoArgs,
	RunE:  runKeyDelete,
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keySetCmd, keyDeleteCmd)
}

// keyScope resolves the configuration that names the keychain entry. The
// key itself is not required.
func keyScope() (*config.Config, error) {
	return config.Resolve(flags.overrides(), environ.OS{}, config.WithKeyOptional())
}

func runKeySet(cmd *cobra.Command, args []string) error {
	cfg, err := keyScope()
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Runtime key: ")
	}
	key, err := readRuntimeKey(os.Stdin)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("reading runtime key: %w", err)
	}

	store := keyring.New()
	if err := store.Save(cfg.StoreKey(), key); err != nil {
		return err
	}
	ui.Infof("Runtime key stored in %s for %s", store.Name(), cfg.StoreKey())
	return nil
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	cfg, err := keyScope()
	if err != nil {
		return err
	}
	store := keyring.New()
	if err := store.Delete(cfg.StoreKey()); err != nil {
		return err
	}
	ui.Infof("Runtime key removed from %s for %s", store.Name(), cfg.StoreKey())
	return nil
}

// readRuntimeKey reads the key without echo from a terminal, or the first
// line of piped input.
func readRuntimeKey(in *os.File) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return nonEmptyKey(string(b))
	}
	return readKeyLine(in)
}

func readKeyLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return nonEmptyKey(line)
}

func nonEmptyKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty runtime key")
	}
	return s, nil
}
