// Package canonicalize reorders a GoCD cruise configuration into a stable,
// diffable form without changing its semantics. The server does not
// guarantee child ordering for collections like environment variables or
// authorization roles, so a textual diff of raw configurations is noisy;
// sorting the order-insensitive collections first makes the diff meaningful.
package canonicalize

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/savaki/gocd-pipelines/internal/gocd"
)

// sortKey extracts the value a parent tag sorts its children by. Children
// of tags without a rule keep their document order, which matters for
// stages and tasks.
type sortKey func(e *gocd.Element) string

var rules = map[string]sortKey{
	"admins":               byText,
	"agents":               byAttr("uuid"),
	"artifacts":            byAttr("src"),
	"authorization":        byTag,
	"cruise":               byTagThenAttr("group"),
	"environmentvariables": byAttr("name"),
	"jobs":                 byAttr("name"),
	"materials":            byTagThenAttr("materialName"),
	"pipelines":            byTagThenAttr("name"),
	"roles":                byAttr("name"),
	"security":             byTag,
	"users":                byText,
}

func byText(e *gocd.Element) string { return e.Text }

func byTag(e *gocd.Element) string { return e.Tag }

func byAttr(name string) sortKey {
	return func(e *gocd.Element) string { return e.Attr(name) }
}

func byTagThenAttr(name string) sortKey {
	return func(e *gocd.Element) string { return e.Tag + "\x00" + e.Attr(name) }
}

// Element returns a canonical deep copy of the element: children are
// canonicalized recursively, and reordered where the parent tag has a sort
// rule.
func Element(e *gocd.Element) *gocd.Element {
	canon := &gocd.Element{
		Tag:   e.Tag,
		Text:  e.Text,
		Attrs: append([]gocd.Attr(nil), e.Attrs...),
	}
	for _, child := range e.Children {
		canon.Children = append(canon.Children, Element(child))
	}
	if key, ok := rules[e.Tag]; ok {
		sort.SliceStable(canon.Children, func(i, j int) bool {
			return key(canon.Children[i]) < key(canon.Children[j])
		})
	}
	return canon
}

// Diff canonicalizes both configuration trees and returns a line-based
// unified diff of their XML renderings. An empty string means the trees
// are semantically identical.
func Diff(before, after *gocd.Element) string {
	beforeXML := Element(before).XMLString()
	afterXML := Element(after).XMLString()
	if beforeXML == afterXML {
		return ""
	}

	dmp := diffmatchpatch.New()
	lineBefore, lineAfter, lines := dmp.DiffLinesToChars(beforeXML, afterXML)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(lineBefore, lineAfter, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffEqual:
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
