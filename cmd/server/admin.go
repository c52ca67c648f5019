package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/app"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/auth"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store/sqlite"
)

// newTokenCmd issues a session token for an existing user. The marketplace
// issues tokens in production; this is for local testing and smoke runs.
func newTokenCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for a mirrored user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user-id is required")
			}
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			user, err := st.GetUserByID(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("load user: %w", err)
			}
			token, err := auth.NewService(st, app.JWTConfig(cfg)).IssueToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "marketplace user id")
	return cmd
}

func newUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the local user mirror",
	}

	var u store.User
	add := &cobra.Command{
		Use:   "add",
		Short: "Create or update a mirrored user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if u.ID == "" || u.Name == "" {
				return errors.New("--id and --name are required")
			}
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			if err := st.UpsertUser(cmd.Context(), &u); err != nil {
				return err
			}
			logger.Info().Str("user_id", u.ID).Msg("user saved")
			return nil
		},
	}
	add.Flags().StringVar(&u.ID, "id", "", "marketplace user id")
	add.Flags().StringVar(&u.Name, "name", "", "display name")
	add.Flags().StringVar(&u.Email, "email", "", "email address")

	cmd.AddCommand(add)
	return cmd
}
