package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/costguard-framework/costguard/internal/policy"
)

// RegisterPolicyCommands adds policy inspection commands to the root.
func RegisterPolicyCommands(root *cobra.Command) {
	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the policy engine configuration and decisions",
	}

	policyCmd.AddCommand(newPolicyShowCmd())
	policyCmd.AddCommand(newPolicyCheckCmd())

	root.AddCommand(policyCmd)
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the workspace policy configuration",
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

			fmt.Printf("Policy engine: enabled=%t\n", s.Policy.Enabled)
			fmt.Printf("  %s: %t\n", policy.RuleProtectProductionDestructive, s.Policy.BlockProductionDestructive)
			fmt.Printf("  %s: %t\n", policy.RuleGPURequiresOverride, s.Policy.RequireGPUOverride)
			fmt.Printf("  %s: warn below %.2f\n", policy.RuleLowConfidence, s.Policy.LowConfidenceWarnThreshold)
			fmt.Printf("  %s: always on\n", policy.RuleInvalidConfidence)
			return nil
		},
	}
}

func newPolicyCheckCmd() *cobra.Command {
	var forceProduction bool

	cmd := &cobra.Command{
		Use:   "check <request-uuid>",
		Short: "Dry-run the policy engine against an existing request",
		Long: `Check evaluates the current policy configuration against a request without
mutating it. The decision printed here is advisory: execution re-evaluates
policy fresh on every attempt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := loadServices()
			if err != nil {
				return err
			}
			defer svcs.Engine.Close()

			req, err := svcs.Requests.Get(args[0])
			if err != nil {
				return err
			}
			settings, err := svcs.Engine.Settings()
			if err != nil {
				return err
			}

			eval := policy.Evaluate(req, settings.Policy, forceProduction)

			fmt.Printf("Decision: %s\n", eval.Decision)
			fmt.Printf("  Destructive:     %t\n", policy.IsDestructive(req))
			fmt.Printf("  Production-like: %t\n", policy.IsProductionLike(req))
			if len(eval.Hits) == 0 {
				fmt.Printf("  %s\n", policy.NoRulesTriggered)
				return nil
			}
			for _, hit := range eval.Hits {
				fmt.Printf("  [%s] %s: %s\n", hit.Decision, hit.RuleID, hit.Message)
				for k, v := range hit.Evidence {
					fmt.Printf("      %s = %s\n", k, v)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceProduction, "force-production", false, "Evaluate as if the resource were production")
	return cmd
}
