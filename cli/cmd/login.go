package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	lcfg "dopahiyaa/cli/internal/config"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token (and optionally the endpoint) in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lcfg.Load(opts.path)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), "Enter token: ")
			token, err := readToken(cmd.InOrStdin())
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			if token == "" {
				return fmt.Errorf("no token provided")
			}
			if strings.Count(token, ".") != 2 {
				warnColor.Fprintln(cmd.ErrOrStderr(), "Warning: token does not look like a JWT")
			}

			cfg.Token = token
			if endpoint != "" {
				cfg.Endpoint = strings.TrimRight(endpoint, "/")
			}
			if err := lcfg.Save(cfg, opts.path); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", opts.path)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "set-endpoint", "", "also store this service URL")
	return cmd
}

// readToken reads without echo from a terminal, or one line otherwise.
func readToken(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		b, err := term.ReadPassword(int(f.Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
