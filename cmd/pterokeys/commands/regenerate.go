package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systmms/pterokeys/internal/config"
	dserrors "github.com/systmms/pterokeys/internal/errors"
	"github.com/systmms/pterokeys/internal/store"
	"github.com/systmms/pterokeys/pkg/rotation"
)

// NewRegenerateCommand creates the regenerate command.
func NewRegenerateCommand(cfg *config.Config) *cobra.Command {
	var (
		userID        int64
		email         string
		operatorID    int64
		operatorEmail string
		showKey       bool
		format        string
	)

	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Regenerate the Pterodactyl client API key of an account",
		Long: `Create a new client API key for the account's Pterodactyl user, store it,
delete the previous key from the panel and record the regeneration in the
audit log.

The full key is only printed with --show-key.`,
		Example: `  # Regenerate by account id
  pterokeys regenerate --user 42 --operator-id 1 --operator-email admin@example.com

  # Regenerate by email and print the new key as JSON
  pterokeys regenerate --email player@example.com --operator-id 1 \
    --operator-email admin@example.com --show-key --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID > 0) == (email != "") {
				return dserrors.UserError{
					Message:    "Exactly one of --user or --email is required",
					Suggestion: "Identify the account with --user <id> or --email <address>",
				}
			}
			if operatorID <= 0 || operatorEmail == "" {
				return dserrors.UserError{
					Message:    "Operator identity is required",
					Suggestion: "Pass --operator-id and --operator-email for the audit log",
				}
			}
			if format != "text" && format != "json" {
				return dserrors.UserError{
					Message:    fmt.Sprintf("Invalid --format value: %s", format),
					Suggestion: "Valid values are: text, json",
				}
			}

			if err := loadConfig(cfg); err != nil {
				return err
			}

			ctx := commandContext(cmd)
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var account *rotation.Account
			if userID > 0 {
				account, err = a.accounts.GetAccount(ctx, userID)
			} else {
				account, err = a.accounts.GetAccountByEmail(ctx, email)
			}
			if err != nil {
				if errors.Is(err, store.ErrAccountNotFound) {
					return dserrors.UserError{
						Message:    "Account not found",
						Details:    err.Error(),
						Suggestion: "Check the account id or email",
					}
				}
				return fmt.Errorf("failed to load account: %w", err)
			}

			cfg.Logger.Debug("Regenerating API key: user_id=%d pterodactyl_user_id=%d", account.ID, account.PanelUserID)
			result := a.rotator.Rotate(ctx, account, rotation.Operator{ID: operatorID, Email: operatorEmail})

			payload := result.Payload()
			if !showKey {
				payload.FullKey = ""
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := writeJSON(out, payload); err != nil {
					return err
				}
			} else {
				writeResultText(out, account, result, payload)
			}

			return resultError(result)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Account id")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().Int64Var(&operatorID, "operator-id", 0, "Id of the operator performing the regeneration (required)")
	cmd.Flags().StringVar(&operatorEmail, "operator-email", "", "Email of the operator performing the regeneration (required)")
	cmd.Flags().BoolVar(&showKey, "show-key", false, "Print the full new key")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json")

	_ = cmd.MarkFlagRequired("operator-id")
	_ = cmd.MarkFlagRequired("operator-email")

	return cmd
}

func writeResultText(w io.Writer, account *rotation.Account, result rotation.Result, payload rotation.Payload) {
	fmt.Fprintf(w, "Account:  %s (id %d)\n", account.Email, account.ID)
	fmt.Fprintf(w, "Outcome:  %s\n", result.Outcome())
	fmt.Fprintf(w, "Message:  %s\n", payload.Message)
	if payload.MaskedKey != "" {
		fmt.Fprintf(w, "Key:      %s\n", payload.MaskedKey)
	}
	if payload.FullKey != "" {
		fmt.Fprintf(w, "Full key: %s\n", payload.FullKey)
	}
	if payload.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", payload.Error)
	}
}

// resultError turns a non-success result into an error so the process exits
// non-zero.
func resultError(result rotation.Result) error {
	switch r := result.(type) {
	case rotation.Success:
		return nil
	case rotation.NotLinked:
		return dserrors.UserError{
			Message:    "Account is not linked to a Pterodactyl user",
			Suggestion: "Link the account to a panel user before regenerating its key",
		}
	case rotation.ProvisioningFailed:
		return dserrors.UserError{
			Message:    "The panel refused to create a client API key",
			Suggestion: "Check the user's API key limit and the panel logs",
		}
	case rotation.UnexpectedError:
		return dserrors.UserError{
			Message:    "API key regeneration failed",
			Details:    r.Detail,
			Suggestion: "Run 'pterokeys doctor' to check panel and database connectivity",
		}
	default:
		return fmt.Errorf("unknown regeneration result %T", result)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
