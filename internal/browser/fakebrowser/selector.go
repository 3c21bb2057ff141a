package fakebrowser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// query evaluates a selector list below root (root itself is never matched).
// Supported: CSS (cascadia), the text="..." engine, and a trailing
// :has-text("...") pseudo-class on a compound selector.
func query(root *html.Node, selector string, order map[*html.Node]int) ([]*html.Node, error) {
	parts := splitSelectorList(selector)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty selector")
	}

	seen := make(map[*html.Node]bool)
	var out []*html.Node
	for _, part := range parts {
		matches, err := queryOne(root, part)
		if err != nil {
			return nil, err
		}
		for _, n := range matches {
			if n == root || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sortByOrder(out, order)
	return out, nil
}

func queryOne(root *html.Node, part string) ([]*html.Node, error) {
	if strings.HasPrefix(part, "text=") {
		return textEngine(root, strings.TrimPrefix(part, "text="))
	}

	base, needle, ok, err := splitHasText(part)
	if err != nil {
		return nil, err
	}
	if !ok {
		return css(root, part)
	}
	if strings.TrimSpace(base) == "" {
		base = "*"
	}
	candidates, err := css(root, base)
	if err != nil {
		return nil, err
	}
	needle = strings.ToLower(normalizeSpace(needle))
	var out []*html.Node
	for _, n := range candidates {
		if strings.Contains(strings.ToLower(normalizeSpace(nodeText(n))), needle) {
			out = append(out, n)
		}
	}
	return out, nil
}

func css(root *html.Node, selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel.MatchAll(root), nil
}

// textEngine matches the innermost elements whose normalized text equals a
// quoted value (case-sensitive) or contains an unquoted one (case-insensitive).
func textEngine(root *html.Node, raw string) ([]*html.Node, error) {
	raw = strings.TrimSpace(raw)
	exact := false
	value := raw
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		exact = true
		value = raw[1 : len(raw)-1]
		if raw[0] == '"' {
			unquoted, err := strconv.Unquote(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid text selector %q: %w", raw, err)
			}
			value = unquoted
		}
	}
	value = normalizeSpace(value)

	match := func(n *html.Node) bool {
		text := normalizeSpace(nodeText(n))
		if exact {
			return text == value
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(value))
	}

	var candidates []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head, atom.Script, atom.Style, atom.Noscript:
				return
			}
			if n != root && match(n) {
				candidates = append(candidates, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	// Keep only the innermost matches.
	inner := make(map[*html.Node]bool, len(candidates))
	for _, n := range candidates {
		inner[n] = true
	}
	for _, n := range candidates {
		for p := n.Parent; p != nil; p = p.Parent {
			delete(inner, p)
		}
	}
	var out []*html.Node
	for _, n := range candidates {
		if inner[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// splitHasText splits `base:has-text("needle")`.
func splitHasText(part string) (base, needle string, ok bool, err error) {
	const marker = ":has-text("
	idx := strings.Index(part, marker)
	if idx < 0 {
		return "", "", false, nil
	}
	rest := part[idx+len(marker):]
	if !strings.HasSuffix(rest, ")") {
		return "", "", false, fmt.Errorf("unsupported selector %q: :has-text must end the selector", part)
	}
	quoted := strings.TrimSpace(rest[:len(rest)-1])
	switch {
	case strings.HasPrefix(quoted, `"`):
		needle, err = strconv.Unquote(quoted)
		if err != nil {
			return "", "", false, fmt.Errorf("invalid :has-text argument in %q: %w", part, err)
		}
	case len(quoted) >= 2 && quoted[0] == '\'' && quoted[len(quoted)-1] == '\'':
		needle = quoted[1 : len(quoted)-1]
	default:
		needle = quoted
	}
	return part[:idx], needle, true, nil
}

// splitSelectorList splits on top-level commas, respecting quotes and parens.
func splitSelectorList(selector string) []string {
	var parts []string
	var quote byte
	depth := 0
	start := 0
	for i := 0; i < len(selector); i++ {
		ch := selector[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '(' || ch == '[':
			depth++
		case ch == ')' || ch == ']':
			depth--
		case ch == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(selector[start:i]))
			start = i + 1
		}
	}
	parts = append(parts, strings.TrimSpace(selector[start:]))

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isVisible treats hidden, display:none, visibility:hidden and
// input[type=hidden] on the element or any ancestor as invisible.
func isVisible(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if cur.DataAtom == atom.Head {
			return false
		}
		for _, a := range cur.Attr {
			switch a.Key {
			case "hidden":
				return false
			case "style":
				style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
				if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
					return false
				}
			case "type":
				if cur.DataAtom == atom.Input && strings.EqualFold(a.Val, "hidden") {
					return false
				}
			}
		}
	}
	return true
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func sortByOrder(nodes []*html.Node, order map[*html.Node]int) {
	sort.SliceStable(nodes, func(i, j int) bool { return order[nodes[i]] < order[nodes[j]] })
}
