package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/alain/internal/colab"
	"github.com/abhisek/alain/internal/outline"
	"github.com/abhisek/alain/internal/pipeline"
	"github.com/abhisek/alain/internal/section"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a notebook for a subject and run every quality check",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringP("subject", "s", "", "Subject or model the notebook teaches (required)")
	generateCmd.Flags().StringP("difficulty", "d", "", "beginner, intermediate or advanced (default from config)")
	generateCmd.Flags().StringP("out", "o", "notebook.ipynb", "Where to write the notebook")
	generateCmd.Flags().String("context-file", "", "File with source material to shape the outline")
	generateCmd.Flags().String("model-reference", "", "Model the sections reference (default: subject)")
	generateCmd.Flags().Int("max-sections", 0, "Generate at most this many sections (0 = all)")
	generateCmd.Flags().String("report", "", "Also write the full run report to this file")
	generateCmd.Flags().String("report-format", "yaml", "Report format: yaml or json")
	generateCmd.Flags().Bool("strict", false, "Exit non-zero when QA or semantic review fails")
	_ = generateCmd.MarkFlagRequired("subject")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	subject, _ := cmd.Flags().GetString("subject")
	difficulty, _ := cmd.Flags().GetString("difficulty")
	out, _ := cmd.Flags().GetString("out")
	contextFile, _ := cmd.Flags().GetString("context-file")
	modelRef, _ := cmd.Flags().GetString("model-reference")
	maxSections, _ := cmd.Flags().GetInt("max-sections")
	reportPath, _ := cmd.Flags().GetString("report")
	reportFormat, _ := cmd.Flags().GetString("report-format")
	strict, _ := cmd.Flags().GetBool("strict")

	if difficulty != "" {
		cfg.Generation.Difficulty = strings.ToLower(difficulty)
	}
	var source string
	if contextFile != "" {
		data, err := os.ReadFile(contextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}
		source = string(data)
	}

	d, err := buildDeps(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	in := pipeline.Input{
		Subject:        subject,
		Difficulty:     cfg.Generation.Difficulty,
		Context:        source,
		ModelReference: modelRef,
		MaxSections:    maxSections,
		OutputPath:     out,
		Custom: &outline.CustomPrompt{
			Title:        cfg.Generation.Title,
			SystemPrompt: cfg.Generation.SystemPrompt,
			Temperature:  cfg.Generation.Temperature,
			MaxTokens:    cfg.Generation.MaxTokens,
		},
		SectionCustom: &section.CustomPrompt{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.SectionMaxTokens,
		},
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("Generating %q (%s)...", subject, in.Difficulty)))
	res, err := newRunner(ctx, d).Run(ctx, in)
	if err != nil {
		var incomplete *outline.CompletenessError
		if errors.As(err, &incomplete) && cfg.Review.Dir != "" {
			fmt.Fprintf(os.Stderr, "Outline artifacts saved under %s\n", cfg.Review.Dir)
		}
		return err
	}

	printRunSummary(res, out)

	if reportPath != "" {
		if err := writeReport(reportPath, reportFormat, res); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("Report written to " + reportPath))
	}

	if strict && !res.Publishable() {
		return fmt.Errorf("notebook did not pass quality review")
	}
	return nil
}

func printRunSummary(res *pipeline.Result, out string) {
	heading(res.Outline.Title)

	colabStatus := "compatible"
	if !res.Colab.Compatible {
		colabStatus = "fail"
	}
	lines := []string{
		fmt.Sprintf("Run:       %s", res.RunID),
		fmt.Sprintf("Notebook:  %s", out),
		fmt.Sprintf("Sections:  %d (%d fallback, %d resumed)", len(res.Sections), len(res.Fallbacks), len(res.Resumed)),
		fmt.Sprintf("Colab:     %s", statusBadge(colabStatus)),
		fmt.Sprintf("QA gate:   %s", statusBadge(string(res.QA.OverallStatus))),
	}
	if res.Semantic != nil {
		lines = append(lines, fmt.Sprintf("Semantic:  %s", statusBadge(string(res.Semantic.Status))))
	}
	lines = append(lines, fmt.Sprintf("Time:      %.1fs", float64(res.Timings.TotalMs)/1000))
	card(strings.Join(lines, "\n"))

	if len(res.Colab.Repaired) > 0 {
		fmt.Println()
		fmt.Print(colab.Report(res.Colab))
	}
	if res.QA.OverallStatus != "pass" {
		fmt.Println()
		fmt.Println("QA: " + res.QA.Summary)
	}
	if res.Semantic != nil {
		for _, issue := range res.Semantic.Issues {
			fmt.Println("Semantic: " + issue)
		}
	}
}

func writeReport(path, format string, v any) error {
	var data []byte
	var err error
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(v, "", "  ")
	case "yaml", "yml":
		data, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unknown report format %q: must be yaml or json", format)
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
