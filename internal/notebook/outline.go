// Package notebook holds the typed outline and section records produced by
// the generators, the parse boundary that turns teacher replies into them,
// and the .ipynb document they are assembled into.
package notebook

// Step types an outline step may declare.
const (
	StepSetup          = "setup"
	StepConcept        = "concept"
	StepImplementation = "implementation"
	StepExercise       = "exercise"
	StepDeployment     = "deployment"
)

// Outline is the table of contents a notebook is generated from.
type Outline struct {
	Title                string        `json:"title"`
	Overview             string        `json:"overview"`
	Objectives           []string      `json:"objectives"`
	Prerequisites        []string      `json:"prerequisites"`
	Setup                Setup         `json:"setup"`
	Steps                []OutlineStep `json:"outline"`
	Exercises            []Exercise    `json:"exercises"`
	Assessments          []Assessment  `json:"assessments"`
	Summary              string        `json:"summary"`
	NextSteps            string        `json:"next_steps"`
	References           []string      `json:"references"`
	EstimatedTotalTokens int           `json:"estimated_total_tokens"`
	TargetReadingTime    string        `json:"target_reading_time,omitempty"`
}

// Setup lists what the learner installs before the first section.
type Setup struct {
	Requirements []string `json:"requirements"`
	Environment  []string `json:"environment"`
	Commands     []string `json:"commands"`
}

// OutlineStep is one planned section. Step is 1-based and matches the
// step's position in Outline.Steps.
type OutlineStep struct {
	Step            int    `json:"step"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	EstimatedTokens int    `json:"estimated_tokens"`
	ContentType     string `json:"content_type"`
}

// Exercise is a hands-on challenge listed in the outline.
type Exercise struct {
	Title           string `json:"title"`
	Difficulty      string `json:"difficulty"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// Assessment is a multiple choice question.
type Assessment struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// Clone returns a deep copy of o.
func (o *Outline) Clone() *Outline {
	if o == nil {
		return nil
	}
	c := *o
	c.Objectives = cloneStrings(o.Objectives)
	c.Prerequisites = cloneStrings(o.Prerequisites)
	c.Setup = Setup{
		Requirements: cloneStrings(o.Setup.Requirements),
		Environment:  cloneStrings(o.Setup.Environment),
		Commands:     cloneStrings(o.Setup.Commands),
	}
	c.Steps = append([]OutlineStep(nil), o.Steps...)
	c.Exercises = append([]Exercise(nil), o.Exercises...)
	if o.Assessments != nil {
		c.Assessments = make([]Assessment, len(o.Assessments))
		for i, a := range o.Assessments {
			a.Options = cloneStrings(a.Options)
			c.Assessments[i] = a
		}
	}
	c.References = cloneStrings(o.References)
	return &c
}

// StepTitle returns the declared title of the 1-based step n, or
// "Section n" when the outline has no such step.
func (o *Outline) StepTitle(n int) string {
	if o != nil && n >= 1 && n <= len(o.Steps) && o.Steps[n-1].Title != "" {
		return o.Steps[n-1].Title
	}
	return "Section " + itoa(n)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
