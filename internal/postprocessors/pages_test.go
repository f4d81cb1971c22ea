package postprocessors

import (
	"reflect"
	"testing"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Page
	}{
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "blank",
			text: " \n\n\t",
			want: nil,
		},
		{
			name: "no markers",
			text: "Hello world.\nSecond line.",
			want: []Page{{Number: 1, Text: "Hello world.\nSecond line."}},
		},
		{
			name: "plain markers",
			text: "PAGE 1\nalpha\nPAGE 2\nbeta",
			want: []Page{{Number: 1, Text: "alpha"}, {Number: 2, Text: "beta"}},
		},
		{
			name: "dashed and lower case markers",
			text: "--- PAGE 1 ---\nalpha\n  -- page 2 --  \nbeta",
			want: []Page{{Number: 1, Text: "alpha"}, {Number: 2, Text: "beta"}},
		},
		{
			name: "blank preamble dropped",
			text: "\n\nPAGE 3\ngamma",
			want: []Page{{Number: 3, Text: "gamma"}},
		},
		{
			name: "preamble kept as page one",
			text: "intro\nPAGE 2\nbeta",
			want: []Page{{Number: 1, Text: "intro"}, {Number: 2, Text: "beta"}},
		},
		{
			name: "empty page kept",
			text: "PAGE 1\nalpha\nPAGE 2\n\nPAGE 3\ngamma",
			want: []Page{{Number: 1, Text: "alpha"}, {Number: 2, Text: ""}, {Number: 3, Text: "gamma"}},
		},
		{
			name: "backward marker continues current page",
			text: "PAGE 1\nalpha\nPAGE 2\nbeta\nPAGE 1\nmore",
			want: []Page{{Number: 1, Text: "alpha"}, {Number: 2, Text: "beta\nmore"}},
		},
		{
			name: "out of order markers keep source order",
			text: "PAGE 2\nfirst\nPAGE 1\nsecond\nPAGE 2\nthird\nPAGE 3\nfourth",
			want: []Page{{Number: 2, Text: "first\nsecond\nthird"}, {Number: 3, Text: "fourth"}},
		},
		{
			name: "repeated marker continues page",
			text: "PAGE 1\nalpha\nPAGE 1\nbeta",
			want: []Page{{Number: 1, Text: "alpha\nbeta"}},
		},
		{
			name: "preamble then page one marker",
			text: "intro\nPAGE 1\nalpha",
			want: []Page{{Number: 1, Text: "intro\nalpha"}},
		},
		{
			name: "marker words inside a line are text",
			text: "see PAGE 4 for details",
			want: []Page{{Number: 1, Text: "see PAGE 4 for details"}},
		},
		{
			name: "page zero is text",
			text: "PAGE 0\nalpha",
			want: []Page{{Number: 1, Text: "PAGE 0\nalpha"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePages(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePages() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
