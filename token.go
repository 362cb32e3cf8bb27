package main

import (
	"fmt"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	authUsecase "foratask-backend/internal/auth/usecase"
	"foratask-backend/pkg/config"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		userID    string
		companyID string
		admin     bool
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := authdomain.Actor{
				ID:        userID,
				CompanyID: companyID,
				Role:      authdomain.RoleUser,
			}
			if admin {
				actor.Role = authdomain.RoleAdmin
			}

			token, err := authUsecase.NewAuthUsecase(nil, config.Load()).IssueToken(actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().StringVarP(&companyID, "company", "c", "", "company id")
	cmd.Flags().BoolVar(&admin, "admin", false, "issue an admin token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
