package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"
	"github.com/vibast-solutions/ms-go-menu-auth/app/metrics"
	"github.com/vibast-solutions/ms-go-menu-auth/app/service"
	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Support desk operations on accounts",
}

var accountResendVerificationCmd = &cobra.Command{
	Use:   "resend-verification <email>",
	Short: "Resend the verification email for an unverified account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCredentialService(func(credentials service.CredentialService) error {
			return runResendVerification(cmd.Context(), credentials, cmd.OutOrStdout(), args[0])
		})
	},
}

var accountVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Mark the account holding a verification token as verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCredentialService(func(credentials service.CredentialService) error {
			return runVerify(cmd.Context(), credentials, cmd.OutOrStdout(), args[0])
		})
	},
}

var accountForgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password <email>",
	Short: "Send a password reset email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCredentialService(func(credentials service.CredentialService) error {
			return runForgotPassword(cmd.Context(), credentials, cmd.OutOrStdout(), args[0])
		})
	},
}

var accountCreateAdminPassword string

var accountCreateAdminCmd = &cobra.Command{
	Use:   "create-admin <email> <username>",
	Short: "Register an Admin account; the public register endpoint refuses this role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCredentialService(func(credentials service.CredentialService) error {
			return runCreateAdmin(cmd.Context(), credentials, cmd.OutOrStdout(), args[0], args[1], accountCreateAdminPassword)
		})
	},
}

func init() {
	accountCreateAdminCmd.Flags().StringVar(&accountCreateAdminPassword, "password", "", "initial password for the admin account")
	_ = accountCreateAdminCmd.MarkFlagRequired("password")

	accountCmd.AddCommand(accountResendVerificationCmd)
	accountCmd.AddCommand(accountVerifyCmd)
	accountCmd.AddCommand(accountForgotPasswordCmd)
	accountCmd.AddCommand(accountCreateAdminCmd)
	rootCmd.AddCommand(accountCmd)
}

func runResendVerification(ctx context.Context, credentials service.CredentialService, out io.Writer, email string) error {
	ok, err := credentials.ResendVerification(ctx, email)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyVerified) {
			return fmt.Errorf("account %q is already verified", email)
		}
		return err
	}
	if !ok {
		return fmt.Errorf("no account registered with email %q", email)
	}

	fmt.Fprintf(out, "verification email sent to %s\n", email)
	return nil
}

func runVerify(ctx context.Context, credentials service.CredentialService, out io.Writer, token string) error {
	ok, err := credentials.VerifyEmail(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("verification token not found")
	}

	fmt.Fprintln(out, "account verified")
	return nil
}

func runForgotPassword(ctx context.Context, credentials service.CredentialService, out io.Writer, email string) error {
	ok, err := credentials.ForgotPassword(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no account registered with email %q", email)
	}

	fmt.Fprintf(out, "password reset email sent to %s\n", email)
	return nil
}

func runCreateAdmin(ctx context.Context, credentials service.CredentialService, out io.Writer, email, username, password string) error {
	view, err := credentials.Register(ctx, service.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     entity.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, service.ErrDuplicateEmail) {
			return fmt.Errorf("email %q is already registered", email)
		}
		return err
	}

	fmt.Fprintf(out, "admin account %d created for %s, verification email sent\n", view.ID, view.Email)
	return nil
}

// withCredentialService runs fn against the configured database. Emails are
// sent before the command returns.
func withCredentialService(fn func(credentials service.CredentialService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err = configureLogging(cfg); err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	credentials := newCredentialService(cfg, db, metrics.Noop{},
		service.WithAsyncRunner(func(task func()) { task() }),
	)
	return fn(credentials)
}
