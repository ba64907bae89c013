package secrets

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

const onePasswordBackend = "1Password"

// OnePasswordResolver resolves op:// references with the op CLI.
type OnePasswordResolver struct {
	// run executes the op CLI; nil means exec.
	run func(ctx context.Context, args ...string) (stdout, stderr []byte, err error)
}

// Scheme returns "op".
func (r *OnePasswordResolver) Scheme() string {
	return "op"
}

// Resolve reads the field with `op read <reference>`.
func (r *OnePasswordResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Count(strings.TrimPrefix(reference, "op://"), "/") < 2 {
		return "", &InvalidReferenceError{Reference: reference, Reason: "expected op://vault/item/field"}
	}

	run := r.run
	if run == nil {
		if _, err := exec.LookPath("op"); err != nil {
			return "", &BackendError{
				Backend:   onePasswordBackend,
				Reference: reference,
				Reason:    "op CLI not found in PATH",
				Fix:       "Install from https://1password.com/downloads/command-line/ and run: op signin",
				Err:       err,
			}
		}
		run = execOp
	}

	stdout, stderr, err := run(ctx, "read", "--no-newline", reference)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", parseOpError(stderr, reference)
	}
	return strings.TrimRight(string(stdout), "\r\n"), nil
}

func execOp(ctx context.Context, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, "op", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// parseOpError maps op CLI stderr to an actionable error.
func parseOpError(stderr []byte, reference string) error {
	msg := strings.TrimSpace(string(stderr))

	switch {
	case strings.Contains(msg, "not currently signed in"), strings.Contains(msg, "not signed in"):
		return &BackendError{
			Backend:   onePasswordBackend,
			Reference: reference,
			Reason:    "not signed in",
			Fix:       "Run: eval $(op signin)\n  For services, set OP_SERVICE_ACCOUNT_TOKEN.",
		}
	case strings.Contains(msg, "isn't an item"), strings.Contains(msg, "could not be found"):
		return &NotFoundError{Reference: reference, Backend: onePasswordBackend}
	case strings.Contains(msg, "isn't a vault"):
		vault, _, _ := strings.Cut(strings.TrimPrefix(reference, "op://"), "/")
		return &BackendError{
			Backend:   onePasswordBackend,
			Reference: reference,
			Reason:    "vault not found or not accessible",
			Fix:       "Vault \"" + vault + "\" not found. List vaults with: op vault list",
		}
	}
	return &BackendError{
		Backend:   onePasswordBackend,
		Reference: reference,
		Reason:    msg,
	}
}

func init() {
	Register(&OnePasswordResolver{})
}
