package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/design-copilot/internal/middleware"
)

func newTokenCmd(st *rootState) *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Long: `Sign a JWT for the owner with the configured JWT_SECRET and JWT_ISSUER.
Intended for local development and smoke tests.

Examples:
  copilotctl token --owner user-42
  curl -H "Authorization: Bearer $(copilotctl token --owner user-42)" localhost:3001/api/v1/documents`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := st.requireOwner()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = st.cfg.JWTTTL()
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			token, err := middleware.GenerateJWT(owner, email, role, middleware.JWTConfig{
				Secret:    st.cfg.JWTSecret,
				Issuer:    st.cfg.JWTIssuer,
				ExpiresIn: ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "designer", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_EXPIRATION_HOURS)")
	return cmd
}
