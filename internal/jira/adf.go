package jira

import (
	"encoding/json"
	"strings"
)

// adfNode is the minimal slice of the Atlassian Document Format this
// client reads and writes.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Version int       `json:"version,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// commentPayload converts plain comment text into an ADF document with
// one paragraph, preserving line breaks as hardBreak nodes. Returns nil
// for blank comments so the field can be omitted entirely.
func commentPayload(comment string) *adfNode {
	if strings.TrimSpace(comment) == "" {
		return nil
	}

	lines := strings.Split(comment, "\n")
	var content []adfNode
	for i, line := range lines {
		if line != "" {
			content = append(content, adfNode{Type: "text", Text: line})
		}
		if i != len(lines)-1 {
			content = append(content, adfNode{Type: "hardBreak"})
		}
	}
	if len(content) == 0 {
		content = append(content, adfNode{Type: "text", Text: ""})
	}

	return &adfNode{
		Type:    "doc",
		Version: 1,
		Content: []adfNode{
			{Type: "paragraph", Content: content},
		},
	}
}

// flattenADF extracts the plain text of an ADF document for terminal
// display. Non-ADF (plain string) descriptions pass through unchanged.
func flattenADF(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}

	var b strings.Builder
	flattenNode(&b, doc)
	return strings.TrimSpace(b.String())
}

func flattenNode(b *strings.Builder, n adfNode) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
	case "hardBreak":
		b.WriteString("\n")
	}
	for _, child := range n.Content {
		flattenNode(b, child)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem":
		b.WriteString("\n")
	}
}
