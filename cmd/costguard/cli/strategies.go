package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/gcp"
	"github.com/costguard-framework/costguard/internal/saas"
	"github.com/costguard-framework/costguard/internal/strategy"

	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/azure"
)

// RegisterStrategyCommands adds the strategy catalog command to the root.
func RegisterStrategyCommands(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "strategies",
		Short: "List the registered remediation strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The catalog is static; no workspace needed.
			builder := strategy.NewBuilder()
			strategy.RegisterBuiltinStrategies(builder,
				awsadapter.NewClientFactory(zerolog.Nop()),
				azure.NewClientFactory(),
				gcp.NewClientFactory(),
				saas.NewClientFactory(),
			)
			registry := builder.Build()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tACTION\tFEATURE\tDESTRUCTIVE\tDESCRIPTION")
			for _, m := range registry.List() {
				destructive := ""
				if m.Destructive {
					destructive = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Provider, m.Action, m.RequiredFeature, destructive, m.Description)
			}
			w.Flush()
			return nil
		},
	})
}
