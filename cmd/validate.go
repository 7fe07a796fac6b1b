package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/alain/internal/colab"
	"github.com/abhisek/alain/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run validators against existing notebooks",
}

var validateColabCmd = &cobra.Command{
	Use:   "colab <notebook.ipynb>",
	Short: "Check a notebook for Colab hazards and write a fixed copy if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var events store.EventRepo
		if cfg.Colab.Model != "" && !cfg.Store.Disabled {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			events = s.EventRepo()
		}

		res, fixedPath, err := colabValidator(cmd.Context(), events).ValidateFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Print(colab.Report(res))
		if fixedPath != "" {
			fmt.Println(dimStyle.Render("Fixed notebook written to " + fixedPath))
		}
		if !res.Compatible {
			return fmt.Errorf("%s is not Colab compatible", args[0])
		}
		return nil
	},
}

func init() {
	validateCmd.AddCommand(validateColabCmd)
}
