package markdown

import (
	"strings"
	"testing"
)

func TestToTerminalText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
		not  []string
	}{
		{
			name: "empty",
			in:   "",
			want: nil,
		},
		{
			name: "emphasis stripped",
			in:   "This is **bold** and *italic*.",
			want: []string{"This is bold and italic."},
			not:  []string{"<b>", "<strong>", "**"},
		},
		{
			name: "list becomes bullets",
			in:   "- first\n- second",
			want: []string{"• first", "• second"},
			not:  []string{"<li>", "<ul>"},
		},
		{
			name: "code block indented",
			in:   "```\nfmt.Println(\"hi\")\n```",
			want: []string{"    fmt.Println(\"hi\")"},
			not:  []string{"<pre>", "&quot;"},
		},
		{
			name: "inline code backticked",
			in:   "run `go build` now",
			want: []string{"`go build`"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToTerminalText(tt.in)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("output %q does not contain %q", got, want)
				}
			}
			for _, not := range tt.not {
				if strings.Contains(got, not) {
					t.Errorf("output %q should not contain %q", got, not)
				}
			}
		})
	}
}
