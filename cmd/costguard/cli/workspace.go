package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/costguard-framework/costguard/internal/config"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/db"
)

// RegisterWorkspaceCommands adds workspace management commands to the root.
func RegisterWorkspaceCommands(root *cobra.Command) {
	wsCmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage tenant workspaces",
	}

	wsCmd.AddCommand(newWorkspaceNewCmd())
	wsCmd.AddCommand(newWorkspaceListCmd())
	wsCmd.AddCommand(newWorkspaceUseCmd())
	wsCmd.AddCommand(newWorkspaceInfoCmd())
	wsCmd.AddCommand(newWorkspaceSettingsCmd())

	root.AddCommand(wsCmd)
}

func newWorkspaceNewCmd() *cobra.Command {
	var (
		name        string
		description string
		tier        string
		region      string
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			passphrase, err := promptPassphrase("Enter vault passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}
			if len(passphrase) < 8 {
				return fmt.Errorf("passphrase must be at least 8 characters")
			}

			settings := core.DefaultWorkspaceSettings()
			if tier != "" {
				settings.Tier = tier
			}
			if region != "" {
				settings.DefaultAWSRegion = region
			}

			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			engine, err := core.InitWorkspace(cfg.WorkspacesDir, name, description, passphrase, settings)
			if err != nil {
				return fmt.Errorf("creating workspace: %w", err)
			}
			defer engine.Close()

			cfg.ActiveWorkspace = engine.Workspace.UUID
			if err := config.SaveGlobalConfig(cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Workspace created successfully.\n")
			fmt.Printf("  UUID: %s\n", engine.Workspace.UUID)
			fmt.Printf("  Name: %s\n", engine.Workspace.Name)
			fmt.Printf("  Tier: %s\n", settings.Tier)
			fmt.Printf("  Path: %s\n", engine.Workspace.Path)

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workspace name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Workspace description")
	cmd.Flags().StringVar(&tier, "tier", "", "Billing tier (standard, pro, enterprise)")
	cmd.Flags().StringVar(&region, "default-region", "", "Default AWS region for new requests")

	return cmd
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return err
			}

			indexDB, err := db.OpenMetadataDB(cfg.WorkspacesDir)
			if err != nil {
				fmt.Println("No workspaces found. Create one with: costguard workspace new --name <name>")
				return nil
			}
			defer indexDB.Close()

			workspaces, err := core.ListWorkspaces(indexDB)
			if err != nil {
				return err
			}
			if len(workspaces) == 0 {
				fmt.Println("No workspaces found. Create one with: costguard workspace new --name <name>")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tNAME\tOWNER\tTIER\tCREATED")
			for _, ws := range workspaces {
				active := ""
				if ws.UUID == cfg.ActiveWorkspace {
					active = " *"
				}
				fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\t%s\n",
					shortUUID(ws.UUID),
					ws.Name, active,
					ws.Owner,
					ws.Settings.Tier,
					ws.CreatedAt.Format("2006-01-02"),
				)
			}
			w.Flush()
			return nil
		},
	}
}

func newWorkspaceUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name|uuid>",
		Short: "Switch to a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return err
			}

			indexDB, err := db.OpenMetadataDB(cfg.WorkspacesDir)
			if err != nil {
				return fmt.Errorf("no workspaces found")
			}
			defer indexDB.Close()

			ws, err := core.LoadWorkspaceRecord(indexDB, args[0])
			if err != nil {
				return err
			}

			cfg.ActiveWorkspace = ws.UUID
			if err := config.SaveGlobalConfig(cfg); err != nil {
				return err
			}

			fmt.Printf("Switched to workspace: %s (%s)\n", ws.Name, shortUUID(ws.UUID))
			return nil
		},
	}
}

func newWorkspaceInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show current workspace details",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return err
			}
			if cfg.ActiveWorkspace == "" {
				return fmt.Errorf("no active workspace; use 'costguard workspace use <name>'")
			}

			indexDB, err := db.OpenMetadataDB(cfg.WorkspacesDir)
			if err != nil {
				return err
			}
			defer indexDB.Close()

			ws, err := core.LoadWorkspaceRecord(indexDB, cfg.ActiveWorkspace)
			if err != nil {
				return err
			}

			s := ws.Settings
			fmt.Printf("Workspace: %s\n", ws.Name)
			fmt.Printf("  UUID:        %s\n", ws.UUID)
			fmt.Printf("  Description: %s\n", ws.Description)
			fmt.Printf("  Owner:       %s\n", ws.Owner)
			fmt.Printf("  Created:     %s\n", ws.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
			fmt.Printf("  Path:        %s\n", ws.Path)
			fmt.Printf("  Settings:\n")
			fmt.Printf("    Tier:                 %s\n", s.Tier)
			fmt.Printf("    Default AWS region:   %s\n", s.DefaultAWSRegion)
			fmt.Printf("    Grace period:         %dh\n", s.GracePeriodHours)
			fmt.Printf("    License reclaim:      %dd\n", s.LicenseReclaimDays)
			fmt.Printf("    Escalation role:      %s\n", s.EscalationRole)
			fmt.Printf("    Remediation paused:   %t\n", s.RemediationPaused)
			if s.MaxMonthlySavings > 0 {
				fmt.Printf("    Monthly savings cap:  $%.2f\n", s.MaxMonthlySavings)
			} else {
				fmt.Printf("    Monthly savings cap:  (disabled)\n")
			}
			fmt.Printf("  Policy:\n")
			fmt.Printf("    Enabled:                     %t\n", s.Policy.Enabled)
			fmt.Printf("    Block prod destructive:      %t\n", s.Policy.BlockProductionDestructive)
			fmt.Printf("    Require GPU override:        %t\n", s.Policy.RequireGPUOverride)
			fmt.Printf("    Low-confidence warn below:   %.2f\n", s.Policy.LowConfidenceWarnThreshold)

			return nil
		},
	}
}

func newWorkspaceSettingsCmd() *cobra.Command {
	var (
		tier          string
		region        string
		graceHours    int
		reclaimDays   int
		escalation    string
		maxSavings    float64
		pause         bool
		resume        bool
		policyOn      bool
		policyOff     bool
		warnThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Update workspace remediation settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadActiveEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			s, err := engine.Settings()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("tier") {
				s.Tier = tier
			}
			if cmd.Flags().Changed("default-region") {
				s.DefaultAWSRegion = region
			}
			if cmd.Flags().Changed("grace-hours") {
				s.GracePeriodHours = graceHours
			}
			if cmd.Flags().Changed("license-reclaim-days") {
				s.LicenseReclaimDays = reclaimDays
			}
			if cmd.Flags().Changed("escalation-role") {
				s.EscalationRole = escalation
			}
			if cmd.Flags().Changed("max-monthly-savings") {
				s.MaxMonthlySavings = maxSavings
			}
			if pause {
				s.RemediationPaused = true
			}
			if resume {
				s.RemediationPaused = false
			}
			if policyOn {
				s.Policy.Enabled = true
			}
			if policyOff {
				s.Policy.Enabled = false
			}
			if cmd.Flags().Changed("warn-threshold") {
				s.Policy.LowConfidenceWarnThreshold = warnThreshold
			}

			if err := engine.UpdateSettings(s); err != nil {
				return fmt.Errorf("updating settings: %w", err)
			}

			fmt.Println("Settings updated.")
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", "", "Billing tier (standard, pro, enterprise)")
	cmd.Flags().StringVar(&region, "default-region", "", "Default AWS region for new requests")
	cmd.Flags().IntVar(&graceHours, "grace-hours", 0, "Grace period before scheduled execution, in hours")
	cmd.Flags().IntVar(&reclaimDays, "license-reclaim-days", 0, "Grace period for license seat reclaims, in days")
	cmd.Flags().StringVar(&escalation, "escalation-role", "", "Role allowed to approve escalated requests")
	cmd.Flags().Float64Var(&maxSavings, "max-monthly-savings", 0, "Monthly completed-savings cap in dollars (0 disables)")
	cmd.Flags().BoolVar(&pause, "pause", false, "Pause all remediation (kill switch)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume remediation")
	cmd.Flags().BoolVar(&policyOn, "policy-on", false, "Enable the policy engine")
	cmd.Flags().BoolVar(&policyOff, "policy-off", false, "Disable the policy engine")
	cmd.Flags().Float64Var(&warnThreshold, "warn-threshold", 0, "Confidence score below which requests get a WARN")

	return cmd
}
