// Package scenariotest parses and drives the markdown scenario files
// under cmd/ply/testdata/scenarios: a YAML setup block describing
// fixture files, followed by a `$`-prefixed shell transcript whose
// output is checked, line for line, against a Go text/template block.
package scenariotest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	commandRegex = regexp.MustCompile(`^\$ `)
	commentRegex = regexp.MustCompile(`^\$ #`)
)

// Scenario is one parsed end-to-end test file.
type Scenario struct {
	Name        string
	Description string
	Setup       map[string]string
	Script      []Step
}

// Step is one item of a scenario's script: either a command with its
// expected output, or a bare comment (narration only, no execution).
type Step struct {
	IsCommand      bool
	Content        string
	ExpectedOutput string
}

// ParseFile reads and parses a scenario file from disk.
func ParseFile(filename string) (*Scenario, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseContent(string(content))
}

// ParseContent parses scenario content from a string.
func ParseContent(content string) (*Scenario, error) {
	s := &Scenario{
		Setup:  make(map[string]string),
		Script: make([]Step, 0),
	}

	lines := strings.Split(content, "\n")
	var currentSection string
	var inTestBlock, inSetupBlock bool
	var yamlBuffer, outputBuffer, cmdBuffer strings.Builder
	var currentStep *Step

	finalizeStep := func() {
		if currentStep != nil && currentStep.IsCommand {
			currentStep.ExpectedOutput = strings.TrimSuffix(outputBuffer.String(), "\n")
			s.Script = append(s.Script, *currentStep)
		}
		outputBuffer.Reset()
		currentStep = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			switch {
			case inSetupBlock:
				if err := yaml.Unmarshal([]byte(yamlBuffer.String()), &s.Setup); err != nil {
					return nil, fmt.Errorf("failed to parse setup YAML: %w", err)
				}
				inSetupBlock = false
			case inTestBlock:
				finalizeStep()
				inTestBlock = false
			case currentSection == "setup":
				inSetupBlock = true
				yamlBuffer.Reset()
			case currentSection == "test":
				inTestBlock = true
			}
			continue
		}

		if inSetupBlock {
			yamlBuffer.WriteString(line + "\n")
			continue
		}

		if inTestBlock {
			if commandRegex.MatchString(line) {
				finalizeStep()
				if commentRegex.MatchString(line) {
					s.Script = append(s.Script, Step{
						IsCommand: false,
						Content:   strings.TrimSpace(strings.TrimPrefix(line, "$ #")),
					})
				} else {
					cmdContent := strings.TrimSpace(strings.TrimPrefix(line, "$"))
					if strings.HasSuffix(cmdContent, "»") {
						cmdContent = strings.TrimSuffix(cmdContent, "»")
						currentStep = &Step{IsCommand: true, Content: cmdContent}
					} else {
						cmdBuffer.WriteString(cmdContent + "\n")
						currentStep = &Step{IsCommand: true}
					}
				}
			} else if currentStep != nil && currentStep.IsCommand {
				if currentStep.Content == "" {
					cmdBuffer.WriteString(line + "\n")
					if strings.HasSuffix(line, "»") {
						fullCmd := strings.TrimSuffix(cmdBuffer.String(), "»\n")
						currentStep.Content = fullCmd
						cmdBuffer.Reset()
					}
				} else {
					outputBuffer.WriteString(line + "\n")
				}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "# ") && s.Name == "":
			s.Name = strings.TrimSpace(strings.TrimPrefix(line, "# "))
		case s.Name != "" && s.Description == "" && strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "**"):
			s.Description = strings.TrimSpace(line)
		case strings.HasPrefix(line, "**Setup:**"):
			currentSection = "setup"
		case strings.HasPrefix(line, "**Test:**"):
			currentSection = "test"
		}
	}

	return s, nil
}
