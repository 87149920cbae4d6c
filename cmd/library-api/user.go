package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/library-api/internal/models"
	"github.com/noah-isme/library-api/internal/repository"
	"github.com/noah-isme/library-api/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage staff accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a staff account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		auth := service.NewAuthService(repository.NewUserRepository(db), nil, logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		})
		info, err := auth.CreateUser(cmd.Context(), service.CreateUserRequest{
			Email:    email,
			FullName: name,
			Password: password,
			Role:     models.UserRole(strings.ToUpper(role)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", info.Email, info.Role, info.ID)
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("email", "", "login email")
	userAddCmd.Flags().String("name", "", "full name")
	userAddCmd.Flags().String("password", "", "initial password, at least 8 characters")
	userAddCmd.Flags().String("role", string(models.RoleLibrarian), "ADMIN or LIBRARIAN")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("name")
	_ = userAddCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userAddCmd)
}
