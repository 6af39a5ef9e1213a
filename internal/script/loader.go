// Package script parses an already-rendered Selenium IDE document into the
// pkg/models value tree (spec.md §4.1). Parsing is total over the schema:
// every key the Selenium IDE format defines is mapped or ignored, and
// unknown command names are left for the executor to reject at run time.
package script

import (
	"encoding/json"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/pkg/models"
)

type rawCommand struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Target  string `json:"target"`
	Value   string `json:"value"`
	Comment string `json:"comment"`
}

type rawTest struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Commands []rawCommand `json:"commands"`
}

type rawSuite struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Tests          []string `json:"tests"`
	PersistSession bool     `json:"persistSession"`
	Parallel       bool     `json:"parallel"`
	Timeout        *int     `json:"timeout"`
}

type rawProject struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	URL    string     `json:"url"`
	Tests  []rawTest  `json:"tests"`
	Suites []rawSuite `json:"suites"`
}

// Load parses rendered into a *models.Project, or fails with a
// MalformedScript or InvalidReference apperr.Error.
func Load(rendered []byte) (*models.Project, error) {
	var raw rawProject
	if err := json.Unmarshal(rendered, &raw); err != nil {
		return nil, apperr.Wrap(apperr.MalformedScript, err, "invalid JSON")
	}

	tests := make(map[string]models.Test, len(raw.Tests))
	for _, t := range raw.Tests {
		tests[t.ID] = buildTest(t)
	}

	suites := make([]models.Suite, 0, len(raw.Suites))
	for _, s := range raw.Suites {
		suites = append(suites, buildSuite(s))
	}

	if len(suites) == 0 {
		return nil, apperr.New(apperr.MalformedScript, "project %q has no suites", raw.ID)
	}

	for _, s := range suites {
		for _, testID := range s.Tests {
			if _, ok := tests[testID]; !ok {
				return nil, apperr.New(
					apperr.InvalidReference,
					"suite %q references unknown test id %q", s.Name, testID,
				)
			}
		}
	}

	return &models.Project{
		ID:     raw.ID,
		Name:   raw.Name,
		URL:    raw.URL,
		Tests:  tests,
		Suites: suites,
	}, nil
}

func buildTest(raw rawTest) models.Test {
	commands := make([]models.Command, 0, len(raw.Commands))
	for _, c := range raw.Commands {
		commands = append(commands, models.Command{
			ID:      c.ID,
			Command: c.Command,
			Target:  c.Target,
			Value:   c.Value,
			Comment: c.Comment,
		})
	}
	return models.Test{ID: raw.ID, Name: raw.Name, Commands: commands}
}

func buildSuite(raw rawSuite) models.Suite {
	return models.Suite{
		ID:             raw.ID,
		Name:           raw.Name,
		Tests:          append([]string(nil), raw.Tests...),
		PersistSession: raw.PersistSession,
		Parallel:       raw.Parallel,
		Timeout:        raw.Timeout,
	}
}
