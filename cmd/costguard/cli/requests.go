package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/remediation"
)

// RegisterRequestCommands adds remediation request lifecycle commands to the root.
func RegisterRequestCommands(root *cobra.Command) {
	reqCmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Manage remediation requests",
	}

	reqCmd.AddCommand(newRequestCreateCmd())
	reqCmd.AddCommand(newRequestListCmd())
	reqCmd.AddCommand(newRequestShowCmd())
	reqCmd.AddCommand(newRequestApproveCmd())
	reqCmd.AddCommand(newRequestRejectCmd())
	reqCmd.AddCommand(newRequestExecuteCmd())
	reqCmd.AddCommand(newRequestSavingsCmd())

	root.AddCommand(reqCmd)
}

func newRequestCreateCmd() *cobra.Command {
	var (
		resourceID     string
		resourceType   string
		provider       string
		connection     string
		region         string
		action         string
		savings        float64
		confidence     string
		explainability string
		backup         bool
		retentionDays  int
		backupCost     float64
		requestedBy    string
		paramKVs       []string
		environment    string
		criticality    string
		production     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a remediation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			for _, kv := range paramKVs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, expected key=value", kv)
				}
				params[k] = v
			}

			pc := core.PolicyContext{
				Source:      "cli",
				Environment: environment,
				Criticality: criticality,
			}
			if cmd.Flags().Changed("production") {
				pc.IsProduction = &production
			}

			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			req, err := svcs.Requests.CreateRequest(remediation.CreateParams{
				ResourceID:          resourceID,
				ResourceType:        resourceType,
				Provider:            core.Provider(strings.ToLower(provider)),
				ConnectionUUID:      connection,
				Region:              region,
				Action:              core.Action(action),
				EstimatedSavings:    savings,
				ConfidenceScore:     confidence,
				Explainability:      explainability,
				CreateBackup:        backup,
				BackupRetentionDays: retentionDays,
				BackupCostEstimate:  backupCost,
				RequestedBy:         requestedBy,
				ActionParams:        params,
				PolicyContext:       pc,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Request created: %s\n", req.UUID)
			fmt.Printf("  Resource: %s (%s)\n", req.ResourceID, req.Provider)
			fmt.Printf("  Action:   %s\n", req.Action)
			fmt.Printf("  Region:   %s\n", req.Region)
			fmt.Printf("  Status:   %s\n", req.Status)
			fmt.Printf("  Savings:  $%.2f/mo estimated\n", req.EstimatedSavings)
			return nil
		},
	}

	cmd.Flags().StringVar(&resourceID, "resource", "", "Provider resource identifier (required)")
	cmd.Flags().StringVar(&resourceType, "resource-type", "", "Resource type label, e.g. 'EC2 Instance'")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider (aws, azure, gcp, saas, license, platform, hybrid)")
	cmd.Flags().StringVar(&connection, "connection", "", "Connection UUID to execute with")
	cmd.Flags().StringVar(&region, "region", "", "Resource region; defaults from workspace settings for AWS")
	cmd.Flags().StringVar(&action, "action", "", "Remediation action, e.g. stop_instance (required)")
	cmd.Flags().Float64Var(&savings, "savings", 0, "Estimated monthly savings in dollars")
	cmd.Flags().StringVar(&confidence, "confidence", "", "Recommendation confidence score, 0..1")
	cmd.Flags().StringVar(&explainability, "why", "", "Human-readable rationale for the recommendation")
	cmd.Flags().BoolVar(&backup, "backup", false, "Create a backup before acting")
	cmd.Flags().IntVar(&retentionDays, "backup-retention-days", 0, "Backup retention in days")
	cmd.Flags().Float64Var(&backupCost, "backup-cost", 0, "Estimated backup cost in dollars")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "operator", "Requesting actor")
	cmd.Flags().StringArrayVar(&paramKVs, "param", nil, "Action parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&environment, "environment", "", "Resource environment (prod, staging, dev)")
	cmd.Flags().StringVar(&criticality, "criticality", "", "Resource criticality label")
	cmd.Flags().BoolVar(&production, "production", false, "Mark the resource as production")
	cmd.MarkFlagRequired("resource")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("action")

	return cmd
}

func newRequestListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List remediation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			reqs, err := svcs.Requests.List(core.RequestStatus(strings.ToLower(status)))
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				fmt.Println("No requests.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tRESOURCE\tPROVIDER\tACTION\tSTATUS\tSAVINGS\tCREATED")
			for _, r := range reqs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t$%.2f\t%s\n",
					shortUUID(r.UUID), r.ResourceID, r.Provider, r.Action, r.Status,
					r.EstimatedSavings, r.CreatedAt.Format("2006-01-02"))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, approved, scheduled, completed, ...)")
	return cmd
}

func newRequestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <uuid>",
		Short: "Show a request in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			r, err := svcs.Requests.Get(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Request %s\n", r.UUID)
			fmt.Printf("  Resource:   %s (%s)\n", r.ResourceID, r.ResourceType)
			fmt.Printf("  Provider:   %s\n", r.Provider)
			fmt.Printf("  Action:     %s\n", r.Action)
			fmt.Printf("  Region:     %s\n", r.Region)
			fmt.Printf("  Status:     %s\n", r.Status)
			fmt.Printf("  Savings:    $%.2f/mo estimated\n", r.EstimatedSavings)
			if r.ConfidenceScore != "" {
				fmt.Printf("  Confidence: %s\n", r.ConfidenceScore)
			}
			if r.Explainability != "" {
				fmt.Printf("  Rationale:  %s\n", r.Explainability)
			}
			fmt.Printf("  Requested:  %s by %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.RequestedBy)
			if r.ReviewedBy != "" {
				fmt.Printf("  Reviewed:   %s", r.ReviewedBy)
				if r.ReviewNotes != "" {
					fmt.Printf(" — %s", r.ReviewNotes)
				}
				fmt.Println()
			}
			if r.EscalationRequired {
				fmt.Printf("  Escalation: %s\n", r.EscalationReason)
			}
			if r.ScheduledExecutionAt != nil {
				fmt.Printf("  Scheduled:  %s\n", r.ScheduledExecutionAt.Format("2006-01-02 15:04:05"))
			}
			if r.ExecutedAt != nil {
				fmt.Printf("  Executed:   %s\n", r.ExecutedAt.Format("2006-01-02 15:04:05"))
			}
			if r.BackupResourceID != "" {
				fmt.Printf("  Backup:     %s\n", r.BackupResourceID)
			}
			if r.ExecutionError != "" {
				fmt.Printf("  Error:      %s\n", r.ExecutionError)
			}
			if len(r.ActionParams) > 0 {
				fmt.Printf("  Params:\n")
				for k, v := range r.ActionParams {
					fmt.Printf("    %s = %s\n", k, v)
				}
			}
			return nil
		},
	}
}

func newRequestApproveCmd() *cobra.Command {
	var (
		reviewer string
		role     string
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "approve <uuid>",
		Short: "Approve a pending or escalated request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			req, err := svcs.Requests.Approve(args[0], reviewer, notes, role)
			if errors.Is(err, remediation.ErrInsufficientRole) {
				return fmt.Errorf("role %q cannot approve an escalated request: %w", role, err)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Request approved: %s (%s %s)\n", shortUUID(req.UUID), req.Action, req.ResourceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", "operator", "Reviewing actor")
	cmd.Flags().StringVar(&role, "role", "member", "Reviewer role (member, admin, owner)")
	cmd.Flags().StringVar(&notes, "notes", "", "Review notes")
	return cmd
}

func newRequestRejectCmd() *cobra.Command {
	var (
		reviewer string
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "reject <uuid>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			req, err := svcs.Requests.Reject(args[0], reviewer, notes)
			if err != nil {
				return err
			}
			fmt.Printf("Request rejected: %s\n", shortUUID(req.UUID))
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", "operator", "Reviewing actor")
	cmd.Flags().StringVar(&notes, "notes", "", "Rejection reason")
	return cmd
}

func newRequestExecuteCmd() *cobra.Command {
	var (
		actor  string
		bypass bool
	)

	cmd := &cobra.Command{
		Use:   "execute <uuid>",
		Short: "Execute an approved request (schedules unless --now)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			req, err := svcs.Requests.Execute(cmd.Context(), args[0], actor, bypass)
			if err != nil {
				return err
			}

			switch req.Status {
			case core.StatusScheduled:
				fmt.Printf("Request scheduled: %s will run after %s\n",
					shortUUID(req.UUID), req.ScheduledExecutionAt.Format("2006-01-02 15:04:05"))
			case core.StatusPendingApproval:
				fmt.Printf("Request escalated: %s\n", req.EscalationReason)
			case core.StatusCompleted:
				fmt.Printf("Request completed: %s %s\n", req.Action, req.ResourceID)
				if req.BackupResourceID != "" {
					fmt.Printf("  Backup: %s\n", req.BackupResourceID)
				}
			case core.StatusFailed:
				fmt.Printf("Request failed: %s\n", req.ExecutionError)
			default:
				fmt.Printf("Request %s: %s\n", shortUUID(req.UUID), req.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "operator", "Executing actor")
	cmd.Flags().BoolVar(&bypass, "now", false, "Bypass the grace period and execute immediately")
	return cmd
}

func newRequestSavingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "savings",
		Short: "Summarize estimated savings by request status",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			summary, err := svcs.Requests.SavingsSummary()
			if err != nil {
				return err
			}
			if len(summary) == 0 {
				fmt.Println("No requests.")
				return nil
			}

			order := []core.RequestStatus{
				core.StatusCompleted, core.StatusScheduled, core.StatusApproved,
				core.StatusPendingApproval, core.StatusPending, core.StatusExecuting,
				core.StatusFailed, core.StatusRejected,
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tEST. MONTHLY SAVINGS")
			for _, s := range order {
				if v, ok := summary[s]; ok {
					fmt.Fprintf(w, "%s\t$%.2f\n", s, v)
				}
			}
			w.Flush()
			return nil
		},
	}
}
