package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/alain/internal/notebook"
	"github.com/abhisek/alain/internal/qa"
	"github.com/abhisek/alain/internal/semantic"
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Run the QA gate (and optionally semantic review) on saved outline and sections",
	Long: `Run the structural QA gate over an outline JSON file and its sections.

--sections takes either a JSON array of sections or a checkpoint directory
holding 1.json, 2.json, ... as written by generate.`,
	RunE: runQA,
}

func init() {
	qaCmd.Flags().String("outline", "", "Outline JSON file (required)")
	qaCmd.Flags().String("sections", "", "Sections JSON array file or checkpoint directory (required)")
	qaCmd.Flags().String("notebook", "", "Assembled notebook, used for its title in semantic review")
	qaCmd.Flags().Bool("semantic", false, "Also run the semantic review")
	qaCmd.Flags().String("format", "yaml", "Output format: yaml or json")
	_ = qaCmd.MarkFlagRequired("outline")
	_ = qaCmd.MarkFlagRequired("sections")
}

type qaOutput struct {
	QA       *qa.Report       `json:"qa" yaml:"qa"`
	Semantic *semantic.Report `json:"semantic,omitempty" yaml:"semantic,omitempty"`
}

func runQA(cmd *cobra.Command, args []string) error {
	outlinePath, _ := cmd.Flags().GetString("outline")
	sectionsPath, _ := cmd.Flags().GetString("sections")
	nbPath, _ := cmd.Flags().GetString("notebook")
	withSemantic, _ := cmd.Flags().GetBool("semantic")
	format, _ := cmd.Flags().GetString("format")

	raw, err := os.ReadFile(outlinePath)
	if err != nil {
		return fmt.Errorf("read outline: %w", err)
	}
	o, err := notebook.ParseOutline(string(raw))
	if err != nil {
		return fmt.Errorf("parse outline %s: %w", outlinePath, err)
	}
	sections, err := loadSections(sectionsPath)
	if err != nil {
		return err
	}

	out := qaOutput{QA: qa.New(qa.WithLogger(logger)).Evaluate(o, sections)}

	if withSemantic {
		var nb *notebook.Notebook
		if nbPath != "" {
			if nb, err = notebook.Load(nbPath); err != nil {
				return err
			}
		}
		sv := semantic.New(semantic.Endpoint{
			BaseURL: cfg.QA.BaseURL,
			APIKey:  cfg.QA.APIKey,
			Model:   cfg.QA.Model,
			Timeout: cfg.Teacher.Timeout,
		}, semantic.WithLogger(logger))
		out.Semantic = sv.Evaluate(cmd.Context(), semantic.Input{Outline: o, Sections: sections, Notebook: nb})
	}

	if err := writeReport("-", format, out); err != nil {
		return err
	}
	if out.QA.OverallStatus == qa.Fail {
		return fmt.Errorf("QA gate failed")
	}
	return nil
}

// loadSections reads a JSON array file or a directory of N.json files in
// section order.
func loadSections(path string) ([]*notebook.Section, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read sections: %w", err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sections: %w", err)
		}
		var sections []*notebook.Section
		if err := json.Unmarshal(data, &sections); err != nil {
			return nil, fmt.Errorf("decode sections %s: %w", path, err)
		}
		return sections, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read sections dir: %w", err)
	}
	type numbered struct {
		n    int
		name string
	}
	var files []numbered
	for _, e := range entries {
		name := e.Name()
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if e.IsDir() || !strings.HasSuffix(name, ".json") || err != nil {
			continue
		}
		files = append(files, numbered{n: n, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	sections := make([]*notebook.Section, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(path, f.name))
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", f.name, err)
		}
		var s notebook.Section
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode section %s: %w", f.name, err)
		}
		sections = append(sections, &s)
	}
	return sections, nil
}
