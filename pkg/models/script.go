package models

// Command is a single recorded step inside a Test.
type Command struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Target  string `json:"target"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// Test is an ordered sequence of Command belonging to a Project.
type Test struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Commands []Command `json:"commands"`
}

// Suite is an ordered list of test ids plus execution metadata.
//
// Parallel is advisory only: the dispatcher always runs a suite's tests
// sequentially (see DESIGN.md, Open Question: suite-level parallel flag).
type Suite struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Tests          []string `json:"tests"`
	PersistSession bool     `json:"persistSession"`
	Parallel       bool     `json:"parallel"`
	Timeout        *int     `json:"timeout,omitempty"`
}

// Project is the immutable tree produced by the Script Loader from an
// already-rendered .side document.
type Project struct {
	ID     string
	Name   string
	URL    string
	Tests  map[string]Test
	Suites []Suite
}

// GetSuite resolves a suite by name, or the first declared suite when name
// is empty. It never returns a suite that wasn't declared on the project.
func (p *Project) GetSuite(name string) (Suite, bool) {
	if name == "" {
		if len(p.Suites) == 0 {
			return Suite{}, false
		}
		return p.Suites[0], true
	}
	for _, s := range p.Suites {
		if s.Name == name {
			return s, true
		}
	}
	return Suite{}, false
}

// GetTestByName resolves a test by its exact, case-sensitive display name.
func (p *Project) GetTestByName(name string) (Test, bool) {
	for _, t := range p.Tests {
		if t.Name == name {
			return t, true
		}
	}
	return Test{}, false
}

// TestsForSuite resolves a suite's test-id references into Test values, in
// the suite's declared order. Every id is guaranteed to resolve by the
// loader's InvalidReference check, so this never silently drops a test.
func (p *Project) TestsForSuite(s Suite) []Test {
	tests := make([]Test, 0, len(s.Tests))
	for _, id := range s.Tests {
		if t, ok := p.Tests[id]; ok {
			tests = append(tests, t)
		}
	}
	return tests
}
