package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/costguard-framework/costguard/internal/connections"
	"github.com/costguard-framework/costguard/internal/core"
)

// RegisterConnectionCommands adds provider connection commands to the root.
func RegisterConnectionCommands(root *cobra.Command) {
	connCmd := &cobra.Command{
		Use:     "connection",
		Aliases: []string{"conn"},
		Short:   "Manage provider connections and their credentials",
	}

	connCmd.AddCommand(newConnectionImportCmd())
	connCmd.AddCommand(newConnectionListCmd())
	connCmd.AddCommand(newConnectionVerifyCmd())
	connCmd.AddCommand(newConnectionRevokeCmd())

	root.AddCommand(connCmd)
}

func newConnectionImportCmd() *cobra.Command {
	var (
		provider  string
		label     string
		accountID string
		region    string
		secretKVs []string
		actor     string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a provider connection with its credentials",
		Long: `Import stores the connection record and seals its credential material in
the workspace vault. Secret fields are passed as repeated --secret key=value
flags; the keys a provider needs:

  aws:     access_key_id, secret_access_key, session_token (optional), region
  azure:   tenant_id, client_id, client_secret, subscription_id
  gcp:     project_id, service_account_json
  saas:    org, token
  license: vendor, api_key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := map[string]string{}
			for _, kv := range secretKVs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --secret %q, expected key=value", kv)
				}
				secret[k] = v
			}

			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			conn, err := svcs.Connections.Import(connections.ImportParams{
				Provider:  core.Provider(strings.ToLower(provider)),
				Label:     label,
				AccountID: accountID,
				Region:    region,
				Secret:    secret,
				CreatedBy: actor,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Connection imported: %s (%s)\n", conn.Label, shortUUID(conn.UUID))
			fmt.Printf("  Provider: %s\n", conn.Provider)
			fmt.Printf("  Status:   %s\n", conn.Status)
			fmt.Println("Run 'costguard connection verify' to check the credentials.")
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider (aws, azure, gcp, saas, license)")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable connection label (required)")
	cmd.Flags().StringVar(&accountID, "account-id", "", "Account, subscription, project, or org identifier")
	cmd.Flags().StringVar(&region, "region", "", "Default region for this connection")
	cmd.Flags().StringArrayVar(&secretKVs, "secret", nil, "Secret field as key=value (repeatable)")
	cmd.Flags().StringVar(&actor, "actor", "operator", "Actor recorded in the audit log")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("label")

	return cmd
}

func newConnectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provider connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			conns, err := svcs.Connections.List()
			if err != nil {
				return err
			}
			if len(conns) == 0 {
				fmt.Println("No connections. Import one with: costguard connection import")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tLABEL\tPROVIDER\tACCOUNT\tSTATUS\tVERIFIED")
			for _, c := range conns {
				verified := "never"
				if c.LastVerifiedAt != nil {
					verified = c.LastVerifiedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortUUID(c.UUID), c.Label, c.Provider, c.AccountID, c.Status, verified)
			}
			w.Flush()
			return nil
		},
	}
}

func newConnectionVerifyCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "verify <uuid|label>",
		Short: "Verify a connection's credentials against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			conn, err := svcs.Connections.Verify(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}

			fmt.Printf("Connection %s: %s\n", conn.Label, conn.Status)
			if conn.AccountID != "" {
				fmt.Printf("  Account: %s\n", conn.AccountID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "operator", "Actor recorded in the audit log")
	return cmd
}

func newConnectionRevokeCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "revoke <uuid|label>",
		Short: "Revoke a connection and destroy its stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			if err := svcs.Connections.Revoke(args[0], actor); err != nil {
				return err
			}
			fmt.Printf("Connection revoked: %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "operator", "Actor recorded in the audit log")
	return cmd
}
