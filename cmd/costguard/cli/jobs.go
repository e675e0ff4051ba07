package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RegisterJobCommands adds scheduled-execution queue commands to the root.
func RegisterJobCommands(root *cobra.Command) {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage the scheduled execution queue",
	}

	jobsCmd.AddCommand(newJobsListCmd())
	jobsCmd.AddCommand(newJobsRunDueCmd())

	root.AddCommand(jobsCmd)
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued and completed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			jobList, err := svcs.Jobs.List()
			if err != nil {
				return err
			}
			if len(jobList) == 0 {
				fmt.Println("No jobs.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tREQUEST\tSCHEDULED FOR\tSTATUS\tERROR")
			for _, j := range jobList {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					shortUUID(j.UUID), shortUUID(j.RequestUUID),
					j.ScheduledFor.Format("2006-01-02 15:04:05"), j.Status, j.LastError)
			}
			w.Flush()
			return nil
		},
	}
}

func newJobsRunDueCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "run-due",
		Short: "Execute every scheduled request whose grace period has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			ran, err := svcs.Requests.RunDue(cmd.Context(), actor)
			if err != nil {
				return err
			}
			fmt.Printf("Ran %d due job(s).\n", ran)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "scheduler", "Actor recorded in the audit log")
	return cmd
}
