package gocd

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is a single XML attribute. Order is preserved so that rendered
// configuration stays stable across runs.
type Attr struct {
	Name  string
	Value string
}

// Element is a generic XML element. The typed configuration model renders
// into Elements, and configuration fetched from the GoCD server is parsed
// into Elements so that the parts this tool does not manage (server config,
// agents, templates) pass through untouched.
type Element struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []*Element
}

// NewElement creates an element with the given tag.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

// SetAttr sets an attribute, replacing any existing attribute of the same name.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// Attr returns the value of the named attribute, or "" if absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// Append adds children to the element and returns the element for chaining.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Child returns the first child with the given tag, or nil.
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FindAll returns all direct children with the given tag.
func (e *Element) FindAll(tag string) []*Element {
	var found []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			found = append(found, c)
		}
	}
	return found
}

// Remove deletes the given child, comparing by pointer identity.
func (e *Element) Remove(child *Element) {
	for i, c := range e.Children {
		if c == child {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of the element.
func (e *Element) Clone() *Element {
	clone := &Element{
		Tag:  e.Tag,
		Text: e.Text,
	}
	clone.Attrs = append([]Attr(nil), e.Attrs...)
	for _, c := range e.Children {
		clone.Children = append(clone.Children, c.Clone())
	}
	return clone
}

// ParseXML decodes an XML document into an Element tree. Whitespace-only
// character data between elements is discarded. Namespace declarations and
// prefixed attributes survive the round trip; the cruise root carries an
// xsi:noNamespaceSchemaLocation that must be posted back unchanged.
func ParseXML(r io.Reader) (*Element, error) {
	decoder := xml.NewDecoder(r)

	var root *Element
	var stack []*Element

	// The decoder resolves attribute prefixes to namespace URIs; remember
	// each declared prefix so prefixed attributes render as fetched.
	prefixes := map[string]string{}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse xml: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			element := NewElement(t.Name.Local)
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns":
					prefixes[a.Value] = a.Name.Local
					element.SetAttr("xmlns:"+a.Name.Local, a.Value)
				case a.Name.Local == "xmlns":
					element.SetAttr("xmlns", a.Value)
				case a.Name.Space != "":
					if prefix, ok := prefixes[a.Name.Space]; ok {
						element.SetAttr(prefix+":"+a.Name.Local, a.Value)
					} else {
						element.SetAttr(a.Name.Local, a.Value)
					}
				default:
					element.SetAttr(a.Name.Local, a.Value)
				}
			}
			if len(stack) == 0 {
				root = element
			} else {
				stack[len(stack)-1].Append(element)
			}
			stack = append(stack, element)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			text := string(t)
			if strings.TrimSpace(text) == "" {
				continue
			}
			stack[len(stack)-1].Text += strings.TrimSpace(text)
		}
	}

	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

// WriteXML renders the element tree as indented XML.
func (e *Element) WriteXML(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return e.write(w, 0)
}

// XMLString renders the element tree as an indented XML string.
func (e *Element) XMLString() string {
	var buf bytes.Buffer
	_ = e.WriteXML(&buf)
	return buf.String()
}

func (e *Element) write(w io.Writer, depth int) error {
	indent := strings.Repeat("  ", depth)

	var open bytes.Buffer
	open.WriteString(indent)
	open.WriteString("<")
	open.WriteString(e.Tag)
	for _, a := range e.Attrs {
		fmt.Fprintf(&open, ` %s="%s"`, a.Name, escapeAttr(a.Value))
	}

	if len(e.Children) == 0 && e.Text == "" {
		open.WriteString(" />\n")
		_, err := w.Write(open.Bytes())
		return err
	}

	if len(e.Children) == 0 {
		fmt.Fprintf(&open, ">%s</%s>\n", escapeText(e.Text), e.Tag)
		_, err := w.Write(open.Bytes())
		return err
	}

	open.WriteString(">\n")
	if _, err := w.Write(open.Bytes()); err != nil {
		return err
	}
	for _, c := range e.Children {
		if err := c.write(w, depth+1); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s</%s>\n", indent, e.Tag)
	return err
}

func escapeText(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func escapeAttr(s string) string {
	// xml.EscapeText escapes newlines and tabs too, which is fine for
	// attribute values; quotes must not survive unescaped.
	return strings.ReplaceAll(escapeText(s), `"`, "&quot;")
}
