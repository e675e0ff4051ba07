package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RegisterNotificationCommands adds the notification inbox command to the root.
func RegisterNotificationCommands(root *cobra.Command) {
	var limit int

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List operator notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			items, err := svcs.Notifier.List(limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No notifications.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tKIND\tREQUEST\tSUBJECT")
			for _, n := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					n.CreatedAt.Format("2006-01-02 15:04"), n.Kind, shortUUID(n.RequestUUID), n.Subject)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum notifications to show")
	root.AddCommand(cmd)
}
