package xmlstate

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/lanprobe/internal/logging"
)

// State identifies a grammar state. Grammars define their own constants.
type State int

// ElementTable maps element names, or attribute paths of the forms
// "element/@attribute" and "@attribute", to parse steps.
type ElementTable map[string]Step

// StateTable maps each state to the elements it accepts.
type StateTable map[State]ElementTable

// NamespaceTable maps namespace URIs to state tables. The empty string
// matches elements without a namespace.
type NamespaceTable map[string]StateTable

type stepKind int

const (
	stepNone stepKind = iota
	stepTransition
	stepParse
	stepHandler
)

// Step is a single grammar action. Steps are built with Transition,
// Assign, Append, Handle and their variants.
type Step struct {
	kind   stepKind
	next   State
	enter  func()
	parse  func(text string) error
	handle func(p *Parser) error
}

// Transition enters the given state on the matching start tag. The state
// is left again on the corresponding end tag.
func Transition(next State) Step {
	return Step{kind: stepTransition, next: next}
}

// TransitionInto behaves like Transition but first calls enter, which
// typically appends a fresh element to a list so that subsequent
// assignments target the new element.
func TransitionInto(next State, enter func()) Step {
	return Step{kind: stepTransition, next: next, enter: enter}
}

// Handle invokes fn on the matching start tag. The handler must consume
// the element including its end tag, usually via Parser.ParseElement.
func Handle(fn func(p *Parser) error) Step {
	return Step{kind: stepHandler, handle: fn}
}

// ParseError reports a grammar violation or conversion failure with the
// position of the offending input.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Parser drives a grammar over a streaming XML decoder.
type Parser struct {
	dec *xml.Decoder
}

// NewParser returns a parser reading from dec.
func NewParser(dec *xml.Decoder) *Parser {
	return &Parser{dec: dec}
}

func (p *Parser) errorf(format string, args ...any) error {
	line, column := p.dec.InputPos()
	return &ParseError{Line: line, Column: column, Message: fmt.Sprintf(format, args...)}
}

// Parse processes a whole document against the grammar, starting in the
// initial state. It returns nil once the input is exhausted after at
// least one element.
func (p *Parser) Parse(initial State, namespaces NamespaceTable) error {
	return p.run(initial, namespaces, false)
}

// ParseElement processes the children of the element whose start tag was
// just consumed, returning once the matching end tag is reached. It is
// the entry point for recursive sub-grammars invoked from Handle steps.
func (p *Parser) ParseElement(initial State, namespaces NamespaceTable) error {
	return p.run(initial, namespaces, true)
}

func (p *Parser) run(initial State, namespaces NamespaceTable, inElement bool) error {
	stack := []State{initial}
	seenElement := false

	for {
		tok, err := p.dec.Token()
		if errors.Is(err, io.EOF) {
			if inElement || !seenElement {
				return p.errorf("unexpected end of document")
			}
			return nil
		}
		if err != nil {
			return p.errorf("%s", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seenElement = true
			if err := p.startElement(t, &stack, namespaces); err != nil {
				return err
			}

		case xml.EndElement:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return nil
			}
		}
	}
}

func (p *Parser) startElement(t xml.StartElement, stack *[]State, namespaces NamespaceTable) error {
	states, ok := namespaces[t.Name.Space]
	if !ok {
		line, column := p.dec.InputPos()
		logging.Debug("Ignoring element in unknown namespace",
			zap.String("element", t.Name.Local),
			zap.String("namespace", t.Name.Space),
			zap.Int("line", line),
			zap.Int("column", column),
		)
		return p.dec.Skip()
	}

	state := (*stack)[len(*stack)-1]
	step, ok := states[state][t.Name.Local]
	if !ok {
		return p.errorf("unexpected element <%s>", t.Name.Local)
	}

	switch step.kind {
	case stepTransition:
		if step.enter != nil {
			step.enter()
		}
		*stack = append(*stack, step.next)
		return p.parseAttributes(t, step.next, states, namespaces)

	case stepParse:
		if err := p.parseAttributes(t, state, states, namespaces); err != nil {
			return err
		}
		text, err := p.readElementText(t.Name)
		if err != nil {
			return err
		}
		return p.applyStep(step, text)

	case stepHandler:
		return step.handle(p)

	default:
		return p.errorf("unexpected element <%s>", t.Name.Local)
	}
}

// parseAttributes resolves each attribute against the state's table,
// trying the full "element/@attribute" path before the bare "@attribute"
// path. Namespace declarations and xml: attributes are transparent;
// attributes in undeclared namespaces are skipped.
func (p *Parser) parseAttributes(t xml.StartElement, state State, current StateTable, namespaces NamespaceTable) error {
	for _, attr := range t.Attr {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" || attr.Name.Space == "xml" {
			continue
		}

		table := current
		if attr.Name.Space != "" && attr.Name.Space != t.Name.Space {
			nsTable, ok := namespaces[attr.Name.Space]
			if !ok {
				logging.Debug("Ignoring attribute in unknown namespace",
					zap.String("attribute", attr.Name.Local),
					zap.String("namespace", attr.Name.Space),
				)
				continue
			}
			table = nsTable
		}

		step, ok := table[state][t.Name.Local+"/@"+attr.Name.Local]
		if !ok {
			step, ok = table[state]["@"+attr.Name.Local]
		}
		if !ok || step.kind != stepParse {
			return p.errorf("unexpected attribute %s for element <%s>", attr.Name.Local, t.Name.Local)
		}

		if err := p.applyStep(step, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) applyStep(step Step, text string) error {
	if err := step.parse(text); err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return err
		}
		return p.errorf("%s", err)
	}
	return nil
}

// readElementText collects the character data of the current element up
// to its end tag. Child elements inside a value element violate the
// grammar.
func (p *Parser) readElementText(name xml.Name) (string, error) {
	var b strings.Builder
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return "", p.errorf("unterminated element <%s>", name.Local)
		}

		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			return "", p.errorf("unexpected element <%s>", t.Name.Local)
		case xml.EndElement:
			return b.String(), nil
		}
	}
}
