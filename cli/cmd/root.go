package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dopahiyaa/cli/internal/client"
	lcfg "dopahiyaa/cli/internal/config"
)

type rootOptions struct {
	cfgFile  string
	endpoint string
	token    string
	output   string
	timeout  time.Duration
	getenv   func(string) string

	resolved lcfg.Config
	path     string
}

// NewRootCmd returns the root command for leadctl.
func NewRootCmd() *cobra.Command {
	return newRootCmd(os.Getenv)
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &rootOptions{getenv: getenv}

	rootCmd := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operator tool for the leads service",
		Long:          "leadctl quotes filter packs, unlocks leads and works the reconciliation queue of the leads service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.leadctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "leads service base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.output, "output", "", "output format: json|text (default: text)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(newQuoteCmd(opts))
	rootCmd.AddCommand(newUnlockCmd(opts))
	rootCmd.AddCommand(newReconcileCmd(opts))
	rootCmd.AddCommand(newTokenCmd(opts))
	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (o *rootOptions) load() error {
	path := o.cfgFile
	if path == "" {
		p, err := lcfg.Path()
		if err != nil {
			return fmt.Errorf("locate config: %w", err)
		}
		path = p
	}
	cfg, err := lcfg.Load(path)
	if err != nil {
		return err
	}
	o.path = path
	o.resolved = lcfg.Resolve(cfg, lcfg.Overrides{Endpoint: o.endpoint, Token: o.token, Output: o.output}, o.getenv)
	switch o.resolved.Output {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q (want json or text)", o.resolved.Output)
	}
	return nil
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.resolved.Endpoint, o.resolved.Token, o.timeout)
}

func (o *rootOptions) requireToken() error {
	if o.resolved.Token == "" {
		return fmt.Errorf("no token configured; run 'leadctl token --save' or set LEADCTL_TOKEN")
	}
	return nil
}
