// Package prompts holds the LLM prompt templates used for test case
// generation.
package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// contextSnippetLength bounds how much of each reference document is
// embedded into the prompt.
const contextSnippetLength = 500

// IssueInput carries the issue fields rendered into the prompt.
type IssueInput struct {
	Number int
	Title  string
	Body   string
}

// ContextInput is one reference document rendered into the prompt.
type ContextInput struct {
	IssueNumber int
	Content     string
}

// testCaseGenerationTemplate instructs the model to produce structured
// Markdown test cases, optionally seeded with similar historical documents.
const testCaseGenerationTemplate = `You are an expert software testing engineer. Your task is to generate comprehensive test cases based on a GitHub issue.

## GitHub Issue

**Issue #{{ .Issue.Number }}: {{ .Issue.Title }}**

{{ .Issue.Body }}
{{ if .Context }}
## Similar Test Cases for Reference

The following test cases were previously generated for similar issues. Use them as inspiration for structure, coverage, and best practices:

{{ range $i, $doc := .Context }}### Reference {{ inc $i }}: Issue #{{ $doc.IssueNumber }}
{{ snippet $doc.Content }}...

{{ end }}{{ end }}
## Your Task

Generate comprehensive test cases in Markdown format following this structure:

# Test Cases: {{ .Issue.Title }}

## Overview
Brief description of what is being tested (2-3 sentences).

## Prerequisites
List any setup requirements, test data, or environment configuration needed.

## Test Scenarios

### Scenario 1: [Happy Path - Normal Flow]
**Given**: Initial conditions and setup
**When**: User action or system event
**Then**: Expected outcome with specific assertions

**Test Steps**:
1. Step-by-step instructions
2. Include specific data values
3. Verify expected results

---

### Scenario 2: [Edge Case - Boundary Conditions]
**Given**: Edge case setup
**When**: Action at boundary
**Then**: Expected handling

---

### Scenario 3: [Error Handling - Invalid Input]
**Given**: Invalid or missing input
**When**: Error condition triggered
**Then**: Appropriate error response

---

### Scenario 4: [Performance/Load]
**Given**: Performance baseline
**When**: High load or stress condition
**Then**: Performance within acceptable limits

---

## Test Data

Provide sample test data needed for the scenarios.

## Acceptance Criteria

- [ ] All happy path scenarios pass
- [ ] Edge cases handled correctly
- [ ] Error messages are clear and actionable
- [ ] Performance meets requirements
- [ ] Security considerations addressed

## Notes

Any additional context, assumptions, or considerations for testers.

---

**Important Guidelines**:
1. **Be Specific**: Include exact values, not placeholders
2. **Be Comprehensive**: Cover happy path, edge cases, errors, and performance
3. **Be Practical**: Tests should be executable by a QA engineer
4. **Be Clear**: Use clear language and structured format
5. **Reference Context**: If similar test cases exist, incorporate their patterns and best practices

Now generate the test cases:
`

var generationTemplate = template.Must(template.New("test_case_generation").
	Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
		"snippet": func(content string) string {
			// Cut on rune boundaries so multibyte text stays valid UTF-8
			runes := []rune(content)
			if len(runes) > contextSnippetLength {
				return string(runes[:contextSnippetLength])
			}
			return content
		},
	}).
	Parse(testCaseGenerationTemplate))

// RenderTestCasePrompt renders the generation prompt for an issue, seeded
// with any retrieved reference documents.
func RenderTestCasePrompt(issue IssueInput, context []ContextInput) (string, error) {
	var buf strings.Builder
	data := struct {
		Issue   IssueInput
		Context []ContextInput
	}{Issue: issue, Context: context}

	if err := generationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// ContextSources extracts the source issue numbers from the rendered
// context in order.
func ContextSources(context []ContextInput) []int {
	sources := make([]int, len(context))
	for i, doc := range context {
		sources[i] = doc.IssueNumber
	}
	return sources
}
