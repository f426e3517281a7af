package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/workhours/overtime/api"
)

var (
	tokenUID   string
	tokenEmail string

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("OVERTIME_AUTH_SECRET is not set")
			}
			token, err := api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer).Issue(tokenUID, tokenEmail, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUID, "uid", "", "subject of the token")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.MarkFlagRequired("uid") // nolint: errcheck
}
