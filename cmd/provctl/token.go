package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/StorefrontProvenance/internal/identity"
)

var (
	tokenKeyFile string
	tokenIssuer  string
	tokenActor   string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an actor token with the server's signing key",
	Long: `Token signs an actor token locally with the server's RSA key file.
The issuer must match the server's base URL:

  provctl token --key-file data/signing.key --issuer http://localhost:8080 \
      --actor buyer_7 --role buyer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := identity.LoadOrCreateKey(tokenKeyFile)
		if err != nil {
			return err
		}
		tok, err := identity.NewActorTokenIssuer(key, tokenIssuer, tokenTTL).Issue(tokenActor, identity.Role(tokenRole))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenKeyFile, "key-file", "data/signing.key", "RSA signing key (created if missing)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "http://localhost:8080", "issuer; the server's base URL")
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor ID")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "creator, buyer or fulfiller")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
