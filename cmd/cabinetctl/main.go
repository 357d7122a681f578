// Command cabinetctl runs administrative tasks against a Cabinet database:
// schema migrations, creating users and minting extension API keys.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
	"github.com/cabinet/cabinet/internal/service"
)

const commandTimeout = 30 * time.Second

type options struct {
	databaseURL string
	format      string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "cabinetctl",
		Short:         "Administrative commands for the Cabinet service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	root.PersistentFlags().StringVar(&opts.format, "format", "plain", "Output format: plain or json")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateUserCmd(opts),
		newCreateKeyCmd(opts),
	)
	return root
}

func (o *options) validate() error {
	if o.databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch strings.ToLower(o.format) {
	case "plain", "json":
		return nil
	default:
		return fmt.Errorf("invalid format %q; use plain or json", o.format)
	}
}

func (o *options) connect(ctx context.Context) (*repository.Repository, error) {
	repo, err := repository.New(ctx, o.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return repo, nil
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			version, err := repository.Migrate(opts.databaseURL)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), fmt.Sprintf("schema at version %d", version),
				map[string]uint{"version": version})
		},
	}
}

func newCreateUserCmd(opts *options) *cobra.Command {
	var (
		email     string
		name      string
		password  string
		jwtSecret string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			if jwtSecret == "" {
				return errors.New("JWT_SECRET is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			repo, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := service.NewAuthService(repo, auth.NewTokenIssuer(jwtSecret, 24*time.Hour), nil)
			session, err := svc.Register(ctx, service.RegisterInput{
				Email:    email,
				Name:     name,
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			return opts.print(cmd.OutOrStdout(), session.User.ID, map[string]any{
				"user_id":    session.User.ID,
				"email":      session.User.Email,
				"token":      session.Token,
				"expires_at": session.ExpiresAt,
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", os.Getenv("CABINET_PASSWORD"), "Password (defaults to CABINET_PASSWORD)")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "Secret used to sign the session token")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newCreateKeyCmd(opts *options) *cobra.Command {
	var (
		email  string
		name   string
		scopes string
		env    string
	)

	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Mint an API key for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			parsed, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			if env != auth.EnvLive && env != auth.EnvTest {
				return fmt.Errorf("invalid env %q; use %s or %s", env, auth.EnvLive, auth.EnvTest)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			repo, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			user, err := repo.GetUserByEmail(ctx, email)
			if errors.Is(err, repository.ErrUserNotFound) {
				return fmt.Errorf("no user with email %s", email)
			}
			if err != nil {
				return fmt.Errorf("lookup user: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			created, err := service.NewAPIKeyService(repo, nil, env, logger).Create(ctx, user.ID, name, parsed)
			if err != nil {
				return fmt.Errorf("create api key: %w", err)
			}

			return opts.print(cmd.OutOrStdout(), created.Plaintext, map[string]any{
				"user_id":    user.ID,
				"email":      user.Email,
				"key_id":     created.Key.ID,
				"key":        created.Plaintext,
				"key_prefix": created.Key.KeyPrefix,
				"scopes":     created.Key.Scopes,
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email of the key owner")
	cmd.Flags().StringVar(&name, "name", "cabinetctl", "Key name")
	cmd.Flags().StringVar(&scopes, "scopes", model.ScopeExtension, "Comma-separated scopes (extension,read,admin)")
	cmd.Flags().StringVar(&env, "env", auth.EnvLive, "Key environment: live or test")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// print writes plain as a line, or v as indented JSON.
func (o *options) print(w io.Writer, plain string, v any) error {
	if strings.ToLower(o.format) == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, plain)
	return err
}

func parseScopes(input string) ([]string, error) {
	parts := strings.Split(input, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !isValidScope(scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeExtension}
	}
	return scopes, nil
}

func isValidScope(scope string) bool {
	for _, allowed := range model.ValidScopes {
		if scope == allowed {
			return true
		}
	}
	return false
}
