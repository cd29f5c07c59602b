package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spec-kit/evaluation-service/internal/auth"
	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/domain"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Access tokens for local testing"}

	var (
		subject string
		role    string
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access token with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(strings.ToUpper(role))
			switch r {
			case domain.RoleAdmin, domain.RoleHRManager, domain.RoleEmployee:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(subject, r)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"accessToken": token, "expiresAt": expiresAt})
			}
			fmt.Println(token)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "subject id (required)")
	issue.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "ADMIN, HR_MANAGER or EMPLOYEE")
	_ = issue.MarkFlagRequired("subject")
	cmd.AddCommand(issue)
	return cmd
}
