package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/costguard-framework/costguard/internal/audit"
)

// RegisterAuditCommands adds audit log commands to the root.
func RegisterAuditCommands(root *cobra.Command) {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and verify the audit log",
	}

	auditCmd.AddCommand(newAuditVerifyCmd())
	auditCmd.AddCommand(newAuditListCmd())

	root.AddCommand(auditCmd)
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadActiveEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ok, count, err := audit.Verify(engine.AuditDB, engine.Workspace.UUID)
			if err != nil {
				return fmt.Errorf("audit chain verification failed: %w", err)
			}
			if !ok {
				return fmt.Errorf("audit chain verification failed after %d records", count)
			}
			fmt.Printf("Audit chain intact: %d records verified.\n", count)
			return nil
		},
	}
}

func newAuditListCmd() *cobra.Command {
	var (
		limit       int
		requestUUID string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadActiveEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			query := `SELECT timestamp, event_type, actor, request_uuid, resource_id, success, error
				  FROM audit_log WHERE workspace_uuid = ?`
			qargs := []any{engine.Workspace.UUID}
			if requestUUID != "" {
				query += " AND request_uuid = ?"
				qargs = append(qargs, requestUUID)
			}
			query += " ORDER BY id DESC LIMIT ?"
			qargs = append(qargs, limit)

			rows, err := engine.AuditDB.Query(query, qargs...)
			if err != nil {
				return err
			}
			defer rows.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tEVENT\tACTOR\tREQUEST\tRESOURCE\tOK\tERROR")
			for rows.Next() {
				var ts, event, actor, reqID, resID, errMsg string
				var success int
				if err := rows.Scan(&ts, &event, &actor, &reqID, &resID, &success, &errMsg); err != nil {
					return err
				}
				okMark := "yes"
				if success == 0 {
					okMark = "no"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					ts, event, actor, shortUUID(reqID), resID, okMark, errMsg)
			}
			w.Flush()
			return rows.Err()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum events to show")
	cmd.Flags().StringVar(&requestUUID, "request", "", "Filter by request UUID")
	return cmd
}
