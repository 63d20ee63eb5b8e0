package testutils

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Exchange is one scripted step: the command expected from the host and the
// helper's reply lines. An empty Send queues the reply up front.
type Exchange struct {
	Send  string   `yaml:"send"`
	Reply []string `yaml:"reply"`
}

// Transcript is an ordered helper conversation, usually kept as YAML:
//
//	- send: "conn 11:22:33:44:55:66 public"
//	  reply:
//	    - "rsp=$stat\x1estate=$tryconn"
//	    - "rsp=$stat\x1estate=$conn"
type Transcript []Exchange

// ParseTranscript decodes a YAML transcript
func ParseTranscript(doc string) (Transcript, error) {
	var tr Transcript
	if err := yaml.Unmarshal([]byte(doc), &tr); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	return tr, nil
}

// LoadTranscript reads a YAML transcript relative to the project root
func LoadTranscript(relPath string) (Transcript, error) {
	doc, err := LoadScript(relPath)
	if err != nil {
		return nil, err
	}
	return ParseTranscript(doc)
}

// Apply scripts every exchange on f
func (tr Transcript) Apply(f *FakeTransport) *FakeTransport {
	for _, ex := range tr {
		if ex.Send == "" {
			f.Queue(ex.Reply...)
			continue
		}
		f.On(ex.Send, ex.Reply...)
	}
	return f
}

// Commands lists the sends in order
func (tr Transcript) Commands() []string {
	var out []string
	for _, ex := range tr {
		if ex.Send != "" {
			out = append(out, ex.Send)
		}
	}
	return out
}

// NewScriptedTransport builds a FakeTransport from a YAML transcript, panicking on bad input
func NewScriptedTransport(doc string) *FakeTransport {
	tr, err := ParseTranscript(doc)
	if err != nil {
		panic(err)
	}
	return tr.Apply(NewFakeTransport())
}
