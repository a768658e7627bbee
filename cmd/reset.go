package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/cogtest/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear local progress for the selected variant",
	Long: "Removes the saved checkpoint, restart markers, last-activity time and flow\n" +
		"acceptances stored on this machine. Attempt counts on the server are not affected.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, v, err := commandSetup(cmd)
		if err != nil {
			return err
		}
		return withFacade(cfg, v, func(f *store.Facade) error {
			f.Reset()
			if f.Degraded() {
				return fmt.Errorf("local progress could not be cleared")
			}
			fmt.Printf("Local progress for %q cleared.\n", v.Name)
			return nil
		})
	},
}
