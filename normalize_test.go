package colloquy

import "testing"

func TestDefaultNormalizer(t *testing.T) {
	n := DefaultNormalizer{}

	tests := []struct {
		name    string
		spec    SlotSpec
		raw     any
		want    any
		wantErr bool
	}{
		{name: "string trims", spec: SlotSpec{Type: "string"}, raw: "  Madrid  ", want: "Madrid"},
		{name: "untyped passes", spec: SlotSpec{}, raw: "x", want: "x"},
		{name: "date passes", spec: SlotSpec{Type: "date"}, raw: "2026-08-24", want: "2026-08-24"},
		{name: "number from string", spec: SlotSpec{Type: "number"}, raw: "42", want: 42.0},
		{name: "number decimal", spec: SlotSpec{Type: "number"}, raw: "12.5", want: 12.5},
		{name: "number passthrough", spec: SlotSpec{Type: "number"}, raw: 7.0, want: 7.0},
		{name: "number invalid", spec: SlotSpec{Type: "number"}, raw: "several", wantErr: true},
		{name: "bool true", spec: SlotSpec{Type: "bool"}, raw: "true", want: true},
		{name: "bool mixed case", spec: SlotSpec{Type: "bool"}, raw: "False", want: false},
		{name: "bool passthrough", spec: SlotSpec{Type: "bool"}, raw: true, want: true},
		{name: "bool invalid", spec: SlotSpec{Type: "bool"}, raw: "maybe", wantErr: true},
		{name: "non-string non-bool", spec: SlotSpec{Type: "bool"}, raw: 1.5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.spec, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%v) error = nil, want failure", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%v) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDefaultNormalizerNFC(t *testing.T) {
	// Decomposed e + combining acute normalizes to the composed form.
	in, want := "Montre\u0301al", "Montr\u00e9al"
	n := DefaultNormalizer{}
	got, err := n.Normalize(SlotSpec{Type: "string"}, in)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}
