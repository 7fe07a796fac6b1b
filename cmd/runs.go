package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past generation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.RunRepo().ListRuns(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No generation runs found.")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %-10s  %-5s  %-5s  %-8s  %s\n",
			"ID", "Started", "Status", "Sects", "QA", "Semantic", "Subject")
		fmt.Println(strings.Repeat("─", 110))
		for _, r := range runs {
			fmt.Printf("%-36s  %-19s  %-10s  %-5d  %-5s  %-8s  %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Sections,
				orDash(r.QAStatus),
				orDash(r.SemanticStatus),
				truncate(r.Subject, 40),
			)
		}
		return nil
	},
}

var runsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the outcome of a generation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		r, err := s.RunRepo().GetRun(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		if r == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		heading(orDash(r.OutlineTitle))
		fmt.Printf("ID:          %s\n", r.ID)
		fmt.Printf("Subject:     %s\n", r.Subject)
		fmt.Printf("Model:       %s\n", r.Model)
		fmt.Printf("Difficulty:  %s\n", r.Difficulty)
		fmt.Printf("Status:      %s\n", statusBadge(runStatus(r.Status)))
		fmt.Printf("Started:     %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if !r.FinishedAt.IsZero() {
			fmt.Printf("Duration:    %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}
		fmt.Printf("Sections:    %d (%d fallback)\n", r.Sections, r.FallbackSections)
		fmt.Printf("Colab:       %v\n", r.ColabCompatible)
		fmt.Printf("QA:          %s\n", orDash(r.QAStatus))
		fmt.Printf("Semantic:    %s\n", orDash(r.SemanticStatus))
		if r.OutputPath != "" {
			fmt.Printf("Output:      %s\n", r.OutputPath)
		}
		if r.ErrorMessage != "" {
			fmt.Printf("Error:       %s\n", r.ErrorMessage)
		}
		fmt.Println(dimStyle.Render("Fingerprint: " + r.Fingerprint))
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runStatus(s string) string {
	switch s {
	case "succeeded":
		return "pass"
	case "running":
		return "warn"
	}
	return "fail"
}

func init() {
	runsListCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsViewCmd)
}
