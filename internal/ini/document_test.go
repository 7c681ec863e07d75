package ini

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := `
; leading comment
[encoding]
facebook/scheme=xor
  facebook/key = K   ; trailing comment
empty=

[encodedkeys]
facebook/client_id=AAECAw==
url=http://example.com/a;b
`
	doc, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := &Document{Sections: []*Section{
		{Name: "encoding", Entries: []Entry{
			{Key: "facebook/scheme", Value: "xor"},
			{Key: "facebook/key", Value: "K"},
			{Key: "empty", Value: ""},
		}},
		{Name: "encodedkeys", Entries: []Entry{
			{Key: "facebook/client_id", Value: "AAECAw=="},
			{Key: "url", Value: "http://example.com/a;b"},
		}},
	}}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("Parse() = %+v, want %+v", doc, want)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
		line  int
	}{
		{name: "missing equals", input: "[a]\nkeyWithNoEquals\n", want: ErrSyntax, line: 2},
		{name: "unterminated section", input: "[unterminated\nk=v\n", want: ErrSyntax, line: 1},
		{name: "empty section name", input: "[]\n", want: ErrSyntax, line: 1},
		{name: "empty key", input: "[a]\n=value\n", want: ErrSyntax, line: 2},
		{name: "entry too short", input: "[s]\na=\n", want: ErrSyntax, line: 2},
		{name: "entry too short after comment", input: "[s]\nab=1\na= ; note\n", want: ErrSyntax, line: 3},
		{name: "entry before section", input: "k=v\n[a]\n", want: ErrSyntax, line: 1},
		{name: "line too long", input: "[a]\nk=" + strings.Repeat("x", MaxLineSize) + "\n", want: ErrLineTooLong, line: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.input))
			if doc != nil {
				t.Errorf("expected no document on error, got %+v", doc)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.want)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Line != tt.line {
				t.Errorf("ParseError.Line = %d, want %d", pe.Line, tt.line)
			}
		})
	}
}

func TestParse_LongestLineAccepted(t *testing.T) {
	line := "k=" + strings.Repeat("x", MaxLineSize-2)
	doc, err := Parse(strings.NewReader("[a]\n" + line + "\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v, _ := doc.Section("a").Lookup("k"); len(v) != MaxLineSize-2 {
		t.Errorf("value length = %d, want %d", len(v), MaxLineSize-2)
	}
}

func TestParse_RepeatedSectionIsMerged(t *testing.T) {
	doc, err := Parse(strings.NewReader("[a]\nx=1\n[b]\ny=2\n[a]\nz=3\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := doc.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Names() = %v", got)
	}
	if got := doc.Section("a").Keys(); !reflect.DeepEqual(got, []string{"x", "z"}) {
		t.Errorf("Keys(a) = %v, want [x z]", got)
	}
}

func TestDocument_Merge(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		section string
		updates []Entry
		want    string
	}{
		{
			name:    "append to existing section",
			input:   "[A]\nx=1\n[B]\ny=2\n",
			section: "B",
			updates: []Entry{{Key: "z", Value: "9"}},
			want:    "[A]\nx=1\n\n[B]\ny=2\nz=9\n",
		},
		{
			name:    "replace in place",
			input:   "[A]\nx=1\ny=2\nz=3\n",
			section: "A",
			updates: []Entry{{Key: "y", Value: "new"}},
			want:    "[A]\nx=1\ny=new\nz=3\n",
		},
		{
			name:    "first duplicate replaced only",
			input:   "[A]\nx=1\nx=2\n",
			section: "A",
			updates: []Entry{{Key: "x", Value: "3"}},
			want:    "[A]\nx=3\nx=2\n",
		},
		{
			name:    "new section at end",
			input:   "[A]\nx=1\n",
			section: "C",
			updates: []Entry{{Key: "k1", Value: "v1"}, {Key: "k2", Value: "v2"}},
			want:    "[A]\nx=1\n\n[C]\nk1=v1\nk2=v2\n",
		},
		{
			name:    "empty document",
			input:   "",
			section: "C",
			updates: []Entry{{Key: "key", Value: ""}},
			want:    "[C]\nkey=\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			doc.Merge(tt.section, tt.updates)

			var sb strings.Builder
			if _, err := doc.WriteTo(&sb); err != nil {
				t.Fatalf("WriteTo failed: %v", err)
			}
			if sb.String() != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", sb.String(), tt.want)
			}
		})
	}
}
