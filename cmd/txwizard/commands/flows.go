package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"txwizard/domain/fee"
)

func flowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Print the built-in flows and their steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := catalogFor(engine, fee.NewLive(engine.Schedule))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range catalog.Names() {
				def, err := catalog.Get(name)
				if err != nil {
					return err
				}
				priced := "unpriced"
				if def.Pricing != nil {
					priced = fmt.Sprintf("priced, fees gate step %d", def.PricingGate()+1)
				}
				fmt.Fprintf(out, "%s (%s)\n", name, priced)
				for i, st := range def.Steps {
					fmt.Fprintf(out, "  %d. %-10s %s\n", i+1, st.Name, strings.Join(st.Fields, ", "))
				}
			}
			return nil
		},
	}
	return cmd
}
