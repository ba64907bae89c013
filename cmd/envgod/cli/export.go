package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/ui"
)

var (
	exportFormat string
	exportForce  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the secret bundle to stdout",
	Long: `Loads the secret bundle and prints it in the requested format.

Formats:
  dotenv  KEY="value" lines (default)
  shell   export KEY='value' lines, for eval
  json    a single JSON object

Refuses to print to a terminal unless --force is given.

Examples:
  envgod export --format dotenv > .env
  eval "$(envgod export --format shell)"`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "dotenv", "output format: dotenv, shell, json")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "print secrets even when stdout is a terminal")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := formatterFor(exportFormat)
	if err != nil {
		return err
	}
	if ui.IsTerminal(os.Stdout) && !exportForce {
		return fmt.Errorf("refusing to print secrets to a terminal; redirect stdout or pass --force")
	}

	vars, err := newClient(environ.NewMap(nil)).LoadEnv(cmd.Context(), flags.overrides())
	if err != nil {
		return err
	}
	return format(os.Stdout, vars)
}

type formatter func(w io.Writer, vars map[string]string) error

func formatterFor(name string) (formatter, error) {
	switch name {
	case "dotenv", "":
		return writeDotenv, nil
	case "shell":
		return writeShell, nil
	case "json":
		return writeJSON, nil
	}
	return nil, fmt.Errorf("unknown format %q (expected dotenv, shell or json)", name)
}

func sortedKeys(vars map[string]string) []string {
	return slices.Sorted(maps.Keys(vars))
}

// exportName matches names that are safe as shell and dotenv identifiers.
var exportName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkNames rejects the bundle if any name could break out of an
// assignment in dotenv or shell output.
func checkNames(vars map[string]string) error {
	for _, k := range sortedKeys(vars) {
		if !exportName.MatchString(k) {
			return fmt.Errorf("refusing to export variable %q: name must match %s", k, exportName)
		}
	}
	return nil
}

var dotenvEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, `$`, `\$`)

func writeDotenv(w io.Writer, vars map[string]string) error {
	if err := checkNames(vars); err != nil {
		return err
	}
	for _, k := range sortedKeys(vars) {
		if _, err := fmt.Fprintf(w, "%s=\"%s\"\n", k, dotenvEscaper.Replace(vars[k])); err != nil {
			return err
		}
	}
	return nil
}

func writeShell(w io.Writer, vars map[string]string) error {
	if err := checkNames(vars); err != nil {
		return err
	}
	for _, k := range sortedKeys(vars) {
		if _, err := fmt.Fprintf(w, "export %s=%s\n", k, shellescape.Quote(vars[k])); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, vars map[string]string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(vars)
}
