package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"html"
	"io"

	"github.com/logflow/ptalign/pkg/errors"
)

// XML element names
var (
	xmlLog    = []byte("log")
	xmlTrace  = []byte("trace")
	xmlEvent  = []byte("event")
	xmlString = []byte("string")
	xmlDate   = []byte("date")
	xmlInt    = []byte("int")
	xmlFloat  = []byte("float")
	xmlBool   = []byte("boolean")
	xmlID     = []byte("id")

	attrKey   = []byte(`key="`)
	attrValue = []byte(`value="`)
)

// xesState tracks where the scanner is in the document.
type xesState uint8

const (
	stateInit xesState = iota
	stateLog
	stateTrace
	stateEvent
)

// ReadXES reads an XES log with a streaming tag scanner. Nested attribute
// lists are flattened; only the innermost key/value pairs are kept.
func ReadXES(ctx context.Context, r io.Reader) (*Log, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	l := &Log{}

	state := stateInit
	var trace *Trace
	var event *Event
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "xes read canceled")
		}

		tag, err := reader.ReadBytes('>')
		offset += len(tag)
		if err != nil && err != io.EOF {
			return nil, errors.ParseError("xes", offset, err)
		}
		if len(tag) == 0 && err == io.EOF {
			break
		}

		// Text between tags is not used by XES.
		if i := bytes.IndexByte(tag, '<'); i > 0 {
			tag = tag[i:]
		}
		tag = bytes.TrimSpace(tag)

		switch {
		case len(tag) == 0:
		case isOpenTag(tag, xmlLog):
			state = stateLog

		case isOpenTag(tag, xmlTrace):
			state = stateTrace
			l.Traces = append(l.Traces, Trace{})
			trace = &l.Traces[len(l.Traces)-1]

		case isCloseTag(tag, xmlTrace):
			if trace != nil && trace.CaseID == "" {
				trace.CaseID = caseName(len(l.Traces) - 1)
			}
			state = stateLog
			trace = nil

		case isOpenTag(tag, xmlEvent):
			if trace == nil {
				return nil, errors.ParseError("xes", offset, errors.New(errors.CodeInvalidFormat, "event outside of trace"))
			}
			state = stateEvent
			trace.Events = append(trace.Events, Event{})
			event = &trace.Events[len(trace.Events)-1]
			if isSelfClosing(tag) {
				state = stateTrace
				event = nil
			}

		case isCloseTag(tag, xmlEvent):
			state = stateTrace
			event = nil

		case isAttributeTag(tag):
			key, value := extractAttribute(tag)
			if key == "" {
				break
			}
			switch state {
			case stateTrace:
				if key == KeyActivity {
					trace.CaseID = value
					break
				}
				if trace.Attributes == nil {
					trace.Attributes = make(map[string]string)
				}
				trace.Attributes[key] = value
			case stateEvent:
				setEventAttribute(event, key, value)
			}
		}

		if err == io.EOF {
			break
		}
	}

	return l, nil
}

func setEventAttribute(e *Event, key, value string) {
	switch key {
	case KeyActivity:
		e.Activity = value
	case KeyTimestamp:
		if ts, err := ParseTimestamp(value); err == nil {
			e.Timestamp = ts
		}
	case KeyResource:
		e.Resource = value
	default:
		if e.Attributes == nil {
			e.Attributes = make(map[string]string)
		}
		e.Attributes[key] = value
	}
}

// isOpenTag checks if tag opens the given element.
func isOpenTag(tag, element []byte) bool {
	if len(tag) < len(element)+2 || tag[0] != '<' {
		return false
	}
	if !bytes.HasPrefix(tag[1:], element) {
		return false
	}
	c := tag[1+len(element)]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/'
}

// isCloseTag checks if tag closes the given element.
func isCloseTag(tag, element []byte) bool {
	if len(tag) < len(element)+3 || tag[0] != '<' || tag[1] != '/' {
		return false
	}
	rest := tag[2+len(element):]
	return bytes.HasPrefix(tag[2:], element) && len(rest) > 0 && (rest[0] == '>' || rest[0] == ' ')
}

func isSelfClosing(tag []byte) bool {
	return len(tag) >= 2 && tag[len(tag)-2] == '/'
}

// isAttributeTag checks if tag is an XES attribute element.
func isAttributeTag(tag []byte) bool {
	for _, el := range [][]byte{xmlString, xmlDate, xmlInt, xmlFloat, xmlBool, xmlID} {
		if isOpenTag(tag, el) {
			return true
		}
	}
	return false
}

// extractAttribute extracts key and value from an XES attribute element.
func extractAttribute(tag []byte) (key, value string) {
	return attrString(tag, attrKey), attrString(tag, attrValue)
}

func attrString(tag, prefix []byte) string {
	idx := bytes.Index(tag, prefix)
	if idx < 0 {
		return ""
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(tag[start:], '"')
	if end < 0 {
		return ""
	}
	return html.UnescapeString(string(tag[start : start+end]))
}
