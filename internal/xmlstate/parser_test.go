package xmlstate

import (
	"encoding/xml"
	"errors"
	"net/url"
	"strings"
	"testing"
)

// The test grammar mirrors a small icon catalog document covering the
// transition and assignment steps: transitions, list transitions, field and attribute
// assignment, flags, appends, enums and version segments.

const (
	stateDocument State = iota
	stateRoot
	stateVersion
	stateIconList
	stateIcon
)

type option uint

const (
	optionA option = 1 << iota
	optionB
	optionC
	optionD
	optionE
)

type direction int

const (
	directionNone direction = iota
	directionInput
	directionOutput
)

var directionValues = map[string]direction{
	"in":  directionInput,
	"out": directionOutput,
}

type testIcon struct {
	id        string
	mimeType  string
	width     int
	height    int
	iconURL   *url.URL
	urlID     string
	topics    []string
	options   option
	direction direction
	dataType  string
}

type testResult struct {
	version Version
	icons   []testIcon
	urls    []*url.URL
}

func testGrammar(result *testResult) StateTable {
	icon := func() *testIcon { return &result.icons[len(result.icons)-1] }
	setOption := func(bit option) func(bool) {
		return func(enabled bool) {
			if enabled {
				icon().options |= bit
			} else {
				icon().options &^= bit
			}
		}
	}

	return StateTable{
		stateDocument: {
			"root": Transition(stateRoot),
		},
		stateRoot: {
			"version": Transition(stateVersion),
			"icons":   Transition(stateIconList),
			"url":     Append(&result.urls),
		},
		stateVersion: {
			"major": AssignVersion(&result.version, SegmentMajor),
			"minor": AssignVersion(&result.version, SegmentMinor),
		},
		stateIconList: {
			"icon": TransitionInto(stateIcon, func() {
				result.icons = append(result.icons, testIcon{})
			}),
		},
		stateIcon: {
			"@id":       Assign(func(s string) { icon().id = s }),
			"mimetype":  Assign(func(s string) { icon().mimeType = s }),
			"width":     Assign(func(n int) { icon().width = n }),
			"height":    Assign(func(n int) { icon().height = n }),
			"url":       Assign(func(u *url.URL) { icon().iconURL = u }),
			"url/@id":   Assign(func(s string) { icon().urlID = s }),
			"topic":     Assign(func(s string) { icon().topics = append(icon().topics, s) }),
			"option1":   AssignFlag(setOption(optionA)),
			"option2":   AssignFlag(setOption(optionB)),
			"option3":   AssignFlag(setOption(optionC)),
			"option4":   AssignFlag(setOption(optionD)),
			"option5":   AssignFlag(setOption(optionE)),
			"direction": AssignEnum(directionValues, func(d direction) { icon().direction = d }),
			"type": AssignEnumOpportunistic(map[string]string{"KnownType": "known"},
				func(s string) { icon().dataType = s },
				func(s string) { icon().dataType = "raw:" + s }),
		},
	}
}

const validXML = `<?xml version="1.0"?>
<root>
  <version>
    <major>1</major>
    <minor>2</minor>
  </version>

  <icons>
    <icon id="icon-a">
      <mimetype>image/png</mimetype>
      <width>384</width>
      <height>256</height>
      <url id="url-a">/icons/test.png</url>
      <option1/>
      <option2>false</option2>
      <option3>yes</option3>
      <option4>OFF</option4>
      <option5>1</option5>
      <direction>in</direction>
      <type>KnownType</type>
    </icon>

    <icon id="icon-b">
      <mimetype>image/webp</mimetype>
      <width>768</width>
      <height>512</height>
      <url id="url-b">/icons/test.webp</url>
      <topic>test</topic>
      <option2>true</option2>
      <option3>no</option3>
      <option4>on</option4>
      <option5>0</option5>
      <direction>out</direction>
      <type>UnknownType</type>
    </icon>
  </icons>

  <url>https://ecosia.org/</url>
  <url>https://mission-lifeline.de/en/</url>
</root>`

func parseTestDocument(t *testing.T, document, namespace string) (*testResult, error) {
	t.Helper()

	var result testResult
	grammar := testGrammar(&result)

	parser := NewParser(xml.NewDecoder(strings.NewReader(document)))
	err := parser.Parse(stateDocument, NamespaceTable{namespace: grammar})
	return &result, err
}

func TestParseValidDocument(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		namespace string
	}{
		{name: "no namespace", document: validXML, namespace: ""},
		{
			name:      "with namespace",
			document:  strings.Replace(validXML, "<root>", `<root xmlns="urn:test">`, 1),
			namespace: "urn:test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseTestDocument(t, tt.document, tt.namespace)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}

			if got, want := result.version.String(), "1.2"; got != want {
				t.Errorf("version = %s, want %s", got, want)
			}
			if got := len(result.icons); got != 2 {
				t.Fatalf("icon count = %d, want 2", got)
			}

			a := result.icons[0]
			if a.id != "icon-a" || a.mimeType != "image/png" || a.width != 384 || a.height != 256 {
				t.Errorf("icon a = %+v", a)
			}
			if a.iconURL == nil || a.iconURL.String() != "/icons/test.png" || a.urlID != "url-a" {
				t.Errorf("icon a url = %v (%s)", a.iconURL, a.urlID)
			}
			if want := optionA | optionC | optionE; a.options != want {
				t.Errorf("icon a options = %04b, want %04b", a.options, want)
			}
			if a.direction != directionInput {
				t.Errorf("icon a direction = %d, want input", a.direction)
			}
			if a.dataType != "known" {
				t.Errorf("icon a type = %q, want known", a.dataType)
			}

			b := result.icons[1]
			if want := optionB | optionD; b.options != want {
				t.Errorf("icon b options = %04b, want %04b", b.options, want)
			}
			if b.direction != directionOutput {
				t.Errorf("icon b direction = %d, want output", b.direction)
			}
			if b.dataType != "raw:UnknownType" {
				t.Errorf("icon b type = %q, want raw:UnknownType", b.dataType)
			}
			if len(b.topics) != 1 || b.topics[0] != "test" {
				t.Errorf("icon b topics = %v, want [test]", b.topics)
			}

			if got := len(result.urls); got != 2 {
				t.Fatalf("url count = %d, want 2", got)
			}
			if result.urls[0].String() != "https://ecosia.org/" {
				t.Errorf("url 0 = %s", result.urls[0])
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := parseTestDocument(t, "", ""); err == nil {
		t.Error("empty document parsed without error")
	}
}

func TestUnknownNamespaceSkipped(t *testing.T) {
	document := strings.Replace(validXML,
		"<url>https://ecosia.org/</url>",
		`<x:extra xmlns:x="urn:other"><x:whatever deep="true"/></x:extra><url>https://ecosia.org/</url>`,
		1)

	result, err := parseTestDocument(t, document, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := len(result.urls); got != 2 {
		t.Errorf("url count = %d, want 2", got)
	}
}

func TestUnexpectedElementFails(t *testing.T) {
	document := `<root><nonsense>1</nonsense></root>`

	_, err := parseTestDocument(t, document, "")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if parseErr.Line == 0 {
		t.Error("parse error has no line number")
	}
	if !strings.Contains(parseErr.Message, "nonsense") {
		t.Errorf("message = %q, want element name", parseErr.Message)
	}
}

func TestUnexpectedAttributeFails(t *testing.T) {
	document := `<root><icons><icon surprise="1"/></icons></root>`

	_, err := parseTestDocument(t, document, "")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if !strings.Contains(parseErr.Message, "surprise") {
		t.Errorf("message = %q, want attribute name", parseErr.Message)
	}
}

func TestConversionFailureAbortsParse(t *testing.T) {
	document := `<root><icons><icon><width>not-a-number</width></icon></icons></root>`

	result, err := parseTestDocument(t, document, "")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if len(result.icons) == 1 && result.icons[0].width != 0 {
		t.Errorf("width = %d, want untouched zero", result.icons[0].width)
	}
}
