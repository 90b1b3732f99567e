package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	lcfg "dopahiyaa/cli/internal/config"
	"dopahiyaa/pkg/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID, role, phone, email, secret string
		ttl                                time.Duration
		save                               bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		Long: `Mint an HS256 token for local development. The secret must match the
service's JWT_SECRET. With --save the token is written to the config file.`,
		Example: `  leadctl token --user dealer-1 --role dealer --secret dev --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = opts.resolved.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("--secret is required (or set LEADCTL_JWT_SECRET)")
			}
			if err := validRole(role); err != nil {
				return err
			}
			tok, err := auth.GenerateJWT(userID, role, phone, email, []byte(secret), ttl)
			if err != nil {
				return err
			}
			if save {
				cfg, err := lcfg.Load(opts.path)
				if err != nil {
					return err
				}
				cfg.Token = tok
				if err := lcfg.Save(cfg, opts.path); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				okColor.Fprintf(cmd.ErrOrStderr(), "Token saved to %s\n", opts.path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", auth.RoleDealer, "buyer|dealer|admin")
	cmd.Flags().StringVar(&phone, "phone", "", "phone claim")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the config file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func validRole(role string) error {
	switch role {
	case auth.RoleBuyer, auth.RoleDealer, auth.RoleAdmin:
		return nil
	default:
		return fmt.Errorf("unknown role %q (want buyer, dealer or admin)", role)
	}
}
