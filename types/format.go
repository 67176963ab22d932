package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

type MessagePair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ToolRequest is the context handed to LLM backed parsers.
type ToolRequest struct {
	Form        string      `json:"form"`
	Phase       Phase       `json:"phase"`
	Slots       Slots       `json:"slots"`
	Fields      []FieldInfo `json:"fields,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	MessagePair MessagePair `json:"message_pair"`
}

func (r *ToolRequest) ToPromptMessage() (string, error) {
	return FormatToolRequest(r)
}

func formatFieldsSection(fields []FieldInfo, slots Slots) string {
	if len(fields) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Form fields:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Slot", "Field", "Value")
	for _, field := range fields {
		value, ok := slots.Get(field.Slot)
		if !ok {
			value = "-"
		}
		_ = table.Append(field.Slot, field.DisplayName, value)
	}
	_ = table.Render()
	return buf.String()
}

func formatExtraSlotsSection(fields []FieldInfo, slots Slots) string {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Slot] = true
	}
	var names []string
	for name := range slots {
		if !known[name] && slots.Has(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	var buf strings.Builder
	buf.WriteString("# Conversation slots:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Slot", "Value")
	for _, name := range names {
		_ = table.Append(name, slots.String(name))
	}
	_ = table.Render()
	return buf.String()
}

func FormatToolRequest(req *ToolRequest) (string, error) {
	slotsJSON, err := sonic.MarshalString(req.Slots.Plain())
	if err != nil {
		return "", err
	}
	sections := []string{
		fmt.Sprintf("# Form:\n%s", req.Form),
		fmt.Sprintf("# Slots JSON:\n```json\n%s\n```", slotsJSON),
	}
	if req.Phase != "" {
		sections = append(sections, fmt.Sprintf("# Current Phase:\n%s", req.Phase))
	}
	if req.Summary != "" {
		sections = append(sections, fmt.Sprintf("# Pending confirmation:\n%s", req.Summary))
	}
	if req.MessagePair.Question != "" || req.MessagePair.Answer != "" {
		sections = append(sections, "# Latest Dialogue:")
		if req.MessagePair.Question != "" {
			sections = append(sections, fmt.Sprintf("## Assistant Question:\n%s", req.MessagePair.Question))
		}
		if req.MessagePair.Answer != "" {
			sections = append(sections, fmt.Sprintf("## User Answer:\n%s", req.MessagePair.Answer))
		}
	}
	if s := formatFieldsSection(req.Fields, req.Slots); s != "" {
		sections = append(sections, s)
	}
	if s := formatExtraSlotsSection(req.Fields, req.Slots); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n"), nil
}
