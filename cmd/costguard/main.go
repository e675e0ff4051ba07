// CostGuard — cloud cost-saving remediation engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/costguard-framework/costguard/cmd/costguard/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "costguard",
		Short: "CostGuard — cloud cost-saving remediation engine",
		Long: `CostGuard executes cost-saving remediation actions against cloud, SaaS,
and license resources. Every action flows through a policy gate, an approval
lifecycle, and a grace-period scheduler, with an append-only audit trail.`,
		Version:      version,
		SilenceUsage: true,
	}

	cli.RegisterWorkspaceCommands(rootCmd)
	cli.RegisterConnectionCommands(rootCmd)
	cli.RegisterRequestCommands(rootCmd)
	cli.RegisterPolicyCommands(rootCmd)
	cli.RegisterJobCommands(rootCmd)
	cli.RegisterStrategyCommands(rootCmd)
	cli.RegisterAuditCommands(rootCmd)
	cli.RegisterNotificationCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
