package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/outline"
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Generate and validate an outline only, printed as JSON",
	RunE:  runOutline,
}

func init() {
	outlineCmd.Flags().StringP("subject", "s", "", "Subject or model the notebook teaches (required)")
	outlineCmd.Flags().StringP("difficulty", "d", "", "beginner, intermediate or advanced (default from config)")
	outlineCmd.Flags().String("context-file", "", "File with source material to shape the outline")
	outlineCmd.Flags().StringP("out", "o", "", "Write the outline here instead of stdout")
	_ = outlineCmd.MarkFlagRequired("subject")
}

func runOutline(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	difficulty, _ := cmd.Flags().GetString("difficulty")
	contextFile, _ := cmd.Flags().GetString("context-file")
	out, _ := cmd.Flags().GetString("out")

	if difficulty == "" {
		difficulty = cfg.Generation.Difficulty
	}
	var source string
	if contextFile != "" {
		data, err := os.ReadFile(contextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}
		source = string(data)
	}

	d, err := buildDeps(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := llm.WithRunID(cmd.Context(), uuid.New().String())
	o, err := d.outlines.Generate(ctx, outline.Request{
		Subject:    subject,
		Difficulty: strings.ToLower(difficulty),
		Context:    source,
		Custom: &outline.CustomPrompt{
			Title:        cfg.Generation.Title,
			SystemPrompt: cfg.Generation.SystemPrompt,
			Temperature:  cfg.Generation.Temperature,
			MaxTokens:    cfg.Generation.MaxTokens,
		},
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	if out == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(out, append(data, '\n'), 0o644)
}
