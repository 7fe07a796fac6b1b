package colab

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/alain/internal/llm"
	"github.com/abhisek/alain/internal/notebook"
)

func nbWith(sources ...string) *notebook.Notebook {
	nb := &notebook.Notebook{NBFormat: 4, NBFormatMinor: 4, Metadata: map[string]any{}}
	nb.Cells = append(nb.Cells, notebook.NewCell(notebook.CellMarkdown, "# Title"))
	for _, s := range sources {
		nb.Cells = append(nb.Cells, notebook.NewCell(notebook.CellCode, s))
	}
	return nb
}

const pipCell = `import subprocess, sys
subprocess.check_call([sys.executable, "-m", "pip", "install", "torch"])`

func TestDetectIssues_SubprocessPip(t *testing.T) {
	issues := DetectIssues(nbWith(pipCell))
	require.Len(t, issues, 1)
	assert.Equal(t, SubprocessPip, issues[0].Type)
	assert.Equal(t, Critical, issues[0].Severity)
	assert.Equal(t, 1, issues[0].CellIndex)
	assert.True(t, issues[0].AutoFixable)
}

func TestDetectIssues_GuardedCellsNotFlagged(t *testing.T) {
	guarded := []string{
		`if IN_COLAB:
    %pip install -q torch
else:
    subprocess.check_call([sys.executable, "-m", "pip", "install", "torch"])`,
		`if IN_COLAB:
    get_ipython().run_line_magic('pip', 'install torch')
else:
    subprocess.check_call([sys.executable, '-m', 'pip', 'install', 'torch'])`,
		`if IN_COLAB:
    from getpass import getpass
    os.environ["HF_TOKEN"] = getpass('Enter HF_TOKEN: ')
else:
    os.environ["HF_TOKEN"] = "YOUR_HF_TOKEN"`,
	}
	for _, src := range guarded {
		assert.Empty(t, DetectIssues(nbWith(src)), src)
	}
}

func TestDetectIssues_Table(t *testing.T) {
	tests := []struct {
		src      string
		kind     string
		severity Severity
	}{
		{`os.environ["HF_TOKEN"] = "YOUR_HF_TOKEN"`, HardcodedToken, Critical},
		{`os.environ['OPENAI_API_KEY'] = 'YOUR_OPENAI_KEY'`, HardcodedToken, Critical},
		{`model = AutoModel.from_pretrained(name, device_map="auto")`, DeviceMapping, Warning},
	}
	for _, tt := range tests {
		issues := DetectIssues(nbWith(tt.src))
		require.Len(t, issues, 1, tt.src)
		assert.Equal(t, tt.kind, issues[0].Type)
		assert.Equal(t, tt.severity, issues[0].Severity)
	}

	assert.Empty(t, DetectIssues(nbWith(`print("pip install is a shell command")`)))
}

func TestValidate_AcceptedWithinTolerance(t *testing.T) {
	nb := nbWith(`x = load(device_map="auto")`)
	res := New().Validate(context.Background(), nb)
	assert.True(t, res.Compatible)
	assert.Nil(t, res.Fixed)
	require.Len(t, res.Issues, 1)

	res = New(WithTolerance(1)).Validate(context.Background(), nbWith(pipCell))
	assert.True(t, res.Compatible)
	assert.Nil(t, res.Fixed)
}

func TestValidate_FixesAndCertifies(t *testing.T) {
	nb := nbWith(pipCell, "def login():\n    os.environ[\"HF_TOKEN\"] = \"YOUR_HF_TOKEN\"\n    return True", `m = load(device_map="auto")`)
	before := nb.Cells[1].Text()

	res := New().Validate(context.Background(), nb)
	require.NotNil(t, res.Fixed)
	assert.True(t, res.Compatible)
	assert.Len(t, res.Repaired, 3)
	assert.Equal(t, 0, CriticalCount(res.Issues))
	assert.Equal(t, before, nb.Cells[1].Text(), "input notebook must not change")

	fixed := res.Fixed
	require.Len(t, fixed.Cells, len(nb.Cells)+1)
	assert.Contains(t, fixed.Cells[0].Text(), "IN_COLAB = ")

	pip := fixed.Cells[2].Text()
	assert.Contains(t, pip, `cmd = [sys.executable, "-m", "pip", "install", "torch"]`)
	assert.Contains(t, pip, "run_line_magic('pip'")

	token := fixed.Cells[3].Text()
	assert.Contains(t, token, "    if IN_COLAB:\n        from getpass import getpass\n")
	assert.Contains(t, token, `    else:`+"\n"+`        os.environ["HF_TOKEN"] = "YOUR_HF_TOKEN"`)

	device := fixed.Cells[4].Text()
	assert.Contains(t, device, `device_map="cuda:0" if torch.cuda.is_available() else "cpu"`)

	// Re-validating the fixed notebook finds nothing left to do.
	assert.Empty(t, DetectIssues(fixed))
	again := New().Validate(context.Background(), fixed)
	assert.True(t, again.Compatible)
	assert.Nil(t, again.Fixed)
}

func TestValidate_FixesPipWithExtras(t *testing.T) {
	src := `import subprocess, sys
subprocess.check_call([sys.executable, "-m", "pip", "install", "transformers[torch]", 'peft[dev]'])`
	res := New().Validate(context.Background(), nbWith(src))
	require.NotNil(t, res.Fixed)
	assert.True(t, res.Compatible)
	assert.Equal(t, 0, CriticalCount(res.Issues))

	pip := res.Fixed.Cells[2].Text()
	assert.Contains(t, pip, `cmd = [sys.executable, "-m", "pip", "install", "transformers[torch]", 'peft[dev]']`)
	assert.Contains(t, pip, "run_line_magic('pip'")
	assert.Empty(t, DetectIssues(res.Fixed))
}

func TestValidate_BuiltNotebookIsClean(t *testing.T) {
	o := &notebook.Outline{
		Title:       "T",
		Setup:       notebook.Setup{Requirements: []string{"torch>=2.0"}},
		Assessments: []notebook.Assessment{{Question: "q", Options: []string{"a", "b"}}},
	}
	nb := notebook.Build(o, nil)
	assert.Empty(t, DetectIssues(nb))
}

func TestApplyFixes_ReusesExistingEnvCell(t *testing.T) {
	nb := nbWith(notebook.EnvCellSource, pipCell)
	issues := DetectIssues(nb)
	require.Len(t, issues, 1)

	fixed := New().ApplyFixes(context.Background(), nb, issues)
	require.Len(t, fixed.Cells, len(nb.Cells))
	assert.Contains(t, fixed.Cells[2].Text(), "cmd = [sys.executable")
}

func TestValidate_ModelReview(t *testing.T) {
	caps := llm.ResolveCapabilities(llm.ProviderOpenAICompatible, "http://localhost:1234", "m", nil)

	t.Run("accepted", func(t *testing.T) {
		reviewed := "if IN_COLAB:\\n    %pip install -q torch\\nelse:\\n    subprocess.check_call([sys.executable, '-m', 'pip', 'install', 'torch'])\\n"
		mock := llm.NewMockProvider(llm.MockResponse{Content: `{"fixed": "` + reviewed + `"}`})
		res := New(WithReviewer(mock, caps)).Validate(context.Background(), nbWith(pipCell))
		require.NotNil(t, res.Fixed)
		assert.True(t, res.Compatible)
		assert.True(t, strings.HasPrefix(res.Fixed.Cells[2].Text(), "if IN_COLAB:\n    %pip install -q torch"))

		req := mock.LastRequest()
		assert.Equal(t, reviewSystemPrompt, req.System)
		assert.True(t, strings.HasPrefix(req.Messages[0].Content, "Issue type: subprocess_pip\n---\n"))
		assert.Same(t, reviewSchema, req.Schema)
	})

	t.Run("hazardous reply rejected", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Content: `{"fixed": "subprocess.check_call([sys.executable, '-m', 'pip', 'install', 'torch'])"}`})
		res := New(WithReviewer(mock, caps)).Validate(context.Background(), nbWith(pipCell))
		assert.True(t, res.Compatible)
		assert.Contains(t, res.Fixed.Cells[2].Text(), "cmd = [sys.executable")
	})

	t.Run("failure keeps deterministic fix", func(t *testing.T) {
		mock := llm.NewMockProvider()
		res := New(WithReviewer(mock, caps)).Validate(context.Background(), nbWith(pipCell))
		assert.True(t, res.Compatible)
		assert.Contains(t, res.Fixed.Cells[2].Text(), "cmd = [sys.executable")
	})

	t.Run("unparseable reply", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Content: "here you go"})
		res := New(WithReviewer(mock, caps)).Validate(context.Background(), nbWith(pipCell))
		assert.Contains(t, res.Fixed.Cells[2].Text(), "cmd = [sys.executable")
	})
}

func TestValidate_UnfixableStaysIncompatible(t *testing.T) {
	// The call form is not one the rewrite understands.
	src := `subprocess.check_call(["pip", "install", "torch"])`
	res := New().Validate(context.Background(), nbWith(src))
	require.NotNil(t, res.Fixed)
	assert.False(t, res.Compatible)
	assert.Equal(t, 1, CriticalCount(res.Issues))
	assert.Contains(t, Report(res), "Manual review required")
}

func TestReport(t *testing.T) {
	res := New().Validate(context.Background(), nbWith(pipCell))
	out := Report(res)
	assert.Contains(t, out, "# Colab Compatibility Report")
	assert.Contains(t, out, "**Status: Compatible**")
	assert.Contains(t, out, "**Critical Issues: 0**")
	assert.Contains(t, out, "## Auto-fixed")
	assert.Contains(t, out, "1. subprocess_pip (critical) in cell 1")
	assert.Contains(t, out, "Auto-fixes applied")

	clean := Report(&Result{Compatible: true})
	assert.Contains(t, clean, "Ready for Colab deployment!")
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lesson.ipynb")
	require.NoError(t, nbWith(pipCell).Save(path))

	res, out, err := New().ValidateFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, res.Compatible)
	assert.Equal(t, filepath.Join(dir, "lesson.colab.ipynb"), out)

	written, err := notebook.Load(out)
	require.NoError(t, err)
	assert.Empty(t, DetectIssues(written))

	clean := filepath.Join(dir, "clean.ipynb")
	require.NoError(t, nbWith("print(1)").Save(clean))
	res, out, err = New().ValidateFile(context.Background(), clean)
	require.NoError(t, err)
	assert.True(t, res.Compatible)
	assert.Empty(t, out)
}
