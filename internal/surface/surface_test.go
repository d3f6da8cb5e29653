package surface

import (
	"context"
	"testing"

	"parley/internal/envelope"
)

func TestConvertInput(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		inputType string
		want      envelope.Result
		wantErr   bool
	}{
		{"text passthrough", "Alice", envelope.InputText, envelope.ValueResult("Alice"), false},
		{"integer", "42", envelope.InputInteger, envelope.ValueResult(int64(42)), false},
		{"integer with spaces", " 42 ", envelope.InputInteger, envelope.ValueResult(int64(42)), false},
		{"negative integer", "-7", envelope.InputInteger, envelope.ValueResult(int64(-7)), false},
		{"float", "3.5", envelope.InputFloat, envelope.ValueResult(3.5), false},
		{"integral float stays float", "4", envelope.InputFloat, envelope.ValueResult(float64(4)), false},
		{"bad integer", "forty", envelope.InputInteger, envelope.Result{}, true},
		{"bad float", "pi", envelope.InputFloat, envelope.Result{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertInput(tt.value, tt.inputType)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("convertInput failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("convertInput = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValidateInteger(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false}, // empty is allowed; it becomes a cancellation
		{"42", false},
		{"-1", false},
		{" 10 ", false},
		{"4.5", true},
		{"abc", true},
	}
	for _, tt := range tests {
		err := validateInteger(tt.input)
		if tt.wantErr && err == nil {
			t.Errorf("validateInteger(%q) should fail", tt.input)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("validateInteger(%q) failed: %v", tt.input, err)
		}
	}
}

func TestValidateFloat(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false},
		{"3.5", false},
		{"4", false},
		{"-0.25", false},
		{"three", true},
	}
	for _, tt := range tests {
		err := validateFloat(tt.input)
		if tt.wantErr && err == nil {
			t.Errorf("validateFloat(%q) should fail", tt.input)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("validateFloat(%q) failed: %v", tt.input, err)
		}
	}
}

func TestRun_RejectsUnknownKind(t *testing.T) {
	s := New()
	_, err := s.Run(context.Background(), envelope.Request{Kind: "popup"})
	if err == nil {
		t.Fatal("Expected error for unknown kind, got nil")
	}
}
