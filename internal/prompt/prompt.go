// Package prompt renders the instruction templates sent to the language model.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// TemplateError is returned when a template cannot be rendered, most commonly
// because a placeholder has no corresponding variable.
type TemplateError struct {
	Template string // template name
	Name     string // missing placeholder, empty for parse errors
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("template %q: missing variable %q", e.Template, e.Name)
	}
	return fmt.Sprintf("template %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Render fills the {{.name}} placeholders of tmpl with vars.
// Values are inserted verbatim, no escaping is applied.
func Render(name, tmpl string, vars map[string]any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", &TemplateError{Template: name, Err: err}
	}

	if t.Tree != nil {
		for _, field := range placeholders(t.Tree.Root) {
			if _, ok := vars[field]; !ok {
				return "", &TemplateError{Template: name, Name: field}
			}
		}
	}

	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", &TemplateError{Template: name, Err: err}
	}
	return b.String(), nil
}

// placeholders lists the top-level field names referenced by a parse tree
func placeholders(root *parse.ListNode) []string {
	seen := make(map[string]struct{})
	var walk func(n parse.Node)
	walk = func(n parse.Node) {
		switch node := n.(type) {
		case *parse.ListNode:
			if node == nil {
				return
			}
			for _, child := range node.Nodes {
				walk(child)
			}
		case *parse.ActionNode:
			walk(node.Pipe)
		case *parse.PipeNode:
			if node == nil {
				return
			}
			for _, cmd := range node.Cmds {
				for _, arg := range cmd.Args {
					walk(arg)
				}
			}
		case *parse.FieldNode:
			if len(node.Ident) > 0 {
				seen[node.Ident[0]] = struct{}{}
			}
		case *parse.IfNode:
			walk(node.Pipe)
			walk(node.List)
			walk(node.ElseList)
		}
	}
	walk(root)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
