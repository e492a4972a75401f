package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestCalculator(t *testing.T) {
	calc := NewCalculator()
	if calc.Definition().Name != "calculate" {
		t.Fatalf("unexpected name %q", calc.Definition().Name)
	}
	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{"(2+3)*4", "20", false},
		{"10/4", "2.5", false},
		{"-3 + 1", "-2", false},
		{"17 % 5", "2", false},
		{"2^3", "8", false},
		{"2 ** 3", "8", false},
		{"2 + 3 * 4 ^ 2", "50", false},
		{"sqrt(16)", "4", false},
		{"abs(-3)", "3", false},
		{"pow(2, 10)", "1024", false},
		{"round(2.6)", "3", false},
		{"floor(2.6)", "2", false},
		{"ceil(2.1)", "3", false},
		{"log(1)", "0", false},
		{"log(1024, 2)", "10", false},
		{"exp(0)", "1", false},
		{" 1 + 1 ", "2", false},
		{"1/0", "", true},
		{"sqrt(-1)", "", true},
		{"pow(2)", "", true},
		{"'a' + 'b'", "", true},
		{"os.Exit(1)", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			args, _ := json.Marshal(map[string]string{"expression": tt.expr})
			out, err := calc.Execute(context.Background(), args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", out)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := out.(map[string]any)["result"]; got != tt.want {
				t.Fatalf("got %v, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyMath(t *testing.T) {
	tests := []struct {
		input        string
		requiresTool bool
	}{
		{"2 + 2", false},
		{"7*8", false},
		{"10 / 2", true},
		{"123 + 4", true},
		{"1 + 2 + 3", true},
		{"what is five", true},
	}
	for _, tt := range tests {
		if got := ClassifyMath(tt.input); got.RequiresTool != tt.requiresTool {
			t.Errorf("ClassifyMath(%q) = %+v, want requiresTool=%v", tt.input, got, tt.requiresTool)
		}
	}
}
