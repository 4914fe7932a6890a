package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"netpol-verify/internal/scenario"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse and validate scenario files without touching a cluster",
	Long: `Validate checks scenario YAML for parse errors and reference integrity
(pods referencing declared namespaces, probes referencing declared pods,
known protocols and expectations). Nothing is created in any cluster.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenariosPath, _ := cmd.Flags().GetString("scenarios")

		scenarios, err := scenario.LoadPath(scenariosPath)
		if err != nil {
			return err
		}

		for _, s := range scenarios {
			fmt.Printf("✅ %s: %d namespace(s), %d pod(s), %d policy(ies), %d probe(s)\n",
				s.ID, len(s.Namespaces), len(s.Pods), len(s.Policies), len(s.Probes))
		}
		fmt.Printf("%d scenario(s) valid\n", len(scenarios))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("scenarios", "s", "scenarios", "scenario YAML file or directory")
}
