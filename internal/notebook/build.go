package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EnvCellSource defines IN_COLAB for every later cell.
const EnvCellSource = `# Environment detection
import sys
import os

IN_COLAB = 'google.colab' in sys.modules
print(f"Environment: {'Google Colab' if IN_COLAB else 'Local'}")
`

const widgetsCellSource = `# Interactive questions need ipywidgets
try:
    import ipywidgets  # type: ignore
except ImportError:
    if IN_COLAB:
        %pip install -q 'ipywidgets>=8.0.0'
    else:
        import subprocess
        subprocess.check_call([sys.executable, '-m', 'pip', 'install', '-q', 'ipywidgets>=8.0.0'])
`

const mcqHelperSource = `# MCQ helper (ipywidgets)
import ipywidgets as widgets
from IPython.display import display, Markdown

def render_mcq(question, options, correct_index, explanation):
    rb = widgets.RadioButtons(options=[f'{chr(65+i)}. ' + opt for i, opt in enumerate(options)], description='')
    grade_btn = widgets.Button(description='Grade', button_style='primary')
    feedback = widgets.HTML(value='')

    def on_grade(_):
        sel = rb.index
        if sel is None:
            feedback.value = '<p>Please select an option.</p>'
            return
        if sel == correct_index:
            feedback.value = '<p>Correct!</p>'
        else:
            feedback.value = f'<p>Incorrect. The correct answer is {chr(65+correct_index)}.</p>'
        feedback.value += f'<div><em>Explanation:</em> {explanation}</div>'

    grade_btn.on_click(on_grade)
    display(Markdown('### ' + question))
    display(rb)
    display(grade_btn)
    display(feedback)
`

const troubleshootingSource = `## Troubleshooting

1. **Out of memory**
   - Enable a GPU: Runtime > Change runtime type > GPU
   - Restart the runtime and re-run from the top
2. **Package installation issues**
   - Restart the runtime after installing packages
   - Use ` + "`%pip install -q`" + ` for quiet installs
3. **Model loading fails**
   - Check the internet connection
   - Verify authentication tokens
   - Fall back to CPU if the GPU is unavailable
`

// Build assembles the notebook for an outline and its sections. Sections
// are emitted in the order given.
func Build(o *Outline, sections []*Section) *Notebook {
	b := &builder{}

	b.code(EnvCellSource)
	b.markdown(fmt.Sprintf("# %s\n\n%s", o.Title, o.Overview))

	if len(o.Objectives) > 0 {
		var sb strings.Builder
		sb.WriteString("## Learning Objectives\n\nBy the end of this notebook you will be able to:\n\n")
		for i, obj := range o.Objectives {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, obj)
		}
		b.markdown(sb.String())
	}

	if len(o.Prerequisites) > 0 {
		b.markdown("## Prerequisites\n\n" + bullets(o.Prerequisites))
	}

	b.setup(o.Setup)

	for _, s := range sections {
		if s == nil {
			continue
		}
		for _, c := range s.Content {
			b.cells = append(b.cells, NewCell(c.CellType, string(c.Source)))
		}
	}

	if len(o.Assessments) > 0 {
		b.markdown("## Knowledge Check\n\nSelect an answer and click Grade to see feedback.\n")
		b.code(widgetsCellSource)
		b.code(mcqHelperSource)
		for _, a := range o.Assessments {
			b.code(fmt.Sprintf("render_mcq(%s, %s, %d, %s)\n",
				pyLiteral(a.Question), pyLiteral(a.Options), a.CorrectIndex, pyLiteral(a.Explanation)))
		}
	}

	b.wrapUp(o)
	b.markdown(troubleshootingSource)

	return &Notebook{
		Cells: b.cells,
		Metadata: map[string]any{
			"kernelspec": map[string]any{
				"display_name": "Python 3",
				"language":     "python",
				"name":         "python3",
			},
			"language_info": map[string]any{"name": "python"},
		},
		NBFormat:      4,
		NBFormatMinor: 4,
	}
}

type builder struct {
	cells []NotebookCell
}

func (b *builder) markdown(src string) { b.cells = append(b.cells, NewCell(CellMarkdown, src)) }
func (b *builder) code(src string)     { b.cells = append(b.cells, NewCell(CellCode, src)) }

func (b *builder) setup(s Setup) {
	if len(s.Requirements) == 0 && len(s.Environment) == 0 && len(s.Commands) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString("## Setup\n\nInstall the required packages and prepare the environment.\n")
	if len(s.Environment) > 0 {
		sb.WriteString("\n**Environment**\n\n")
		sb.WriteString(bullets(s.Environment))
	}
	if len(s.Commands) > 0 {
		sb.WriteString("\n**Commands**\n\n```bash\n")
		sb.WriteString(strings.Join(s.Commands, "\n"))
		sb.WriteString("\n```\n")
	}
	b.markdown(sb.String())

	if len(s.Requirements) == 0 {
		return
	}
	b.code(fmt.Sprintf(`# Install packages
if IN_COLAB:
    %%pip install -q %s
else:
    import subprocess
    subprocess.check_call([sys.executable, '-m', 'pip', 'install', '-q'] + %s)
print('Packages installed')
`, shellWords(s.Requirements), pyLiteral(s.Requirements)))
}

func (b *builder) wrapUp(o *Outline) {
	if o.Summary == "" && o.NextSteps == "" && len(o.References) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString("## Summary\n\n")
	sb.WriteString(o.Summary)
	sb.WriteString("\n")
	if o.NextSteps != "" {
		sb.WriteString("\n### Next Steps\n\n")
		sb.WriteString(o.NextSteps)
		sb.WriteString("\n")
	}
	if len(o.References) > 0 {
		sb.WriteString("\n### References\n\n")
		sb.WriteString(bullets(o.References))
	}
	b.markdown(sb.String())
}

func bullets(items []string) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return sb.String()
}

// shellWords single-quotes each requirement so version specifiers such as
// ">=" survive the shell %pip runs through.
func shellWords(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "'" + strings.ReplaceAll(it, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// pyLiteral renders v as JSON, which Python reads as an equivalent str or
// list literal.
func pyLiteral(v any) string {
	if s, ok := v.([]string); ok && s == nil {
		return "[]"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "None"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
