package colloquy

import "testing"

func TestRender(t *testing.T) {
	values := map[string]any{
		"name":  "Ada",
		"count": 3.0,
		"price": 12.5,
		"ok":    true,
	}
	tests := []struct {
		template string
		want     string
	}{
		{"no placeholders", "no placeholders"},
		{"hello {name}", "hello Ada"},
		{"{name} and {name}", "Ada and Ada"},
		{"{count} items", "3 items"},
		{"total {price}", "total 12.5"},
		{"flag {ok}", "flag true"},
		{"missing {ghost} stays", "missing {ghost} stays"},
		{"literal {{braces}}", "literal {braces}"},
		{"unterminated {name", "unterminated {name"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Render(tt.template, values); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestRenderIntegralFloat(t *testing.T) {
	// JSON widens ints to float64; prompts must not grow a ".0" suffix.
	got := Render("party of {n}", map[string]any{"n": 4.0})
	if want := "party of 4"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
