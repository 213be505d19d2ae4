package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories/postgres"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/credentials"
	"github.com/coinkrazygaming/coinkrazy2-sub002/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newUserInput is a bootstrap account created from the command line
type newUserInput struct {
	Username string `validate:"required,min=3,max=32,username"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=72"`
	Admin    bool
	Staff    bool
}

func (c *cli) usersCmd() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage local accounts",
	}
	users.AddCommand(c.usersCreateCmd())
	return users
}

func (c *cli) usersCreateCmd() *cobra.Command {
	var (
		input     newUserInput
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a local account, typically the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromStdin {
				password, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				input.Password = password
			}

			factory, err := postgres.NewRepositoryFactory(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			user, err := createUser(cmd.Context(), factory.NewRepositories().Users, input, credentials.DefaultBcryptCost)
			if err != nil {
				return err
			}

			c.logger.Info("user created",
				zap.Int64("user_id", user.ID),
				zap.String("username", user.Username),
				zap.Bool("is_admin", user.IsAdmin),
				zap.Bool("is_staff", user.IsStaff))
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Username, "username", "", "Username of the account")
	cmd.Flags().StringVar(&input.Email, "email", "", "Email address of the account")
	cmd.Flags().StringVar(&input.Password, "password", "", "Password (use --stdin to keep it out of shell history)")
	cmd.Flags().BoolVar(&input.Admin, "admin", false, "Grant the admin role")
	cmd.Flags().BoolVar(&input.Staff, "staff", false, "Grant the staff role")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the password from stdin")
	return cmd
}

func createUser(ctx context.Context, users repositories.UserRepository, input newUserInput, cost int) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	if err := utils.ValidateStruct(input); err != nil {
		if utils.IsValidationError(err) {
			return nil, fmt.Errorf("invalid user: %v", utils.GetValidationFields(err))
		}
		return nil, err
	}

	hash, err := credentials.HashPassword(input.Password, cost)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(input.Username, input.Email, &hash)
	user.IsAdmin = input.Admin
	user.IsStaff = input.Staff

	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func readPassword(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", fmt.Errorf("no password on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
