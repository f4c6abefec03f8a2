// Copyright Contributors to the KubeTask project

package paramvalidate

import (
	"testing"

	"github.com/kubetask/jobexpander/pkg/jexerr"
)

func ptrInt64(v int64) *int64 { return &v }
func ptrInt(v int) *int       { return &v }

func TestValidateInt(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		value   any
		want    any
		wantErr jexerr.Kind
	}{
		{"plain int", Definition{Type: "int"}, float64(7), int64(7), ""},
		{"numeric string", Definition{Type: "int"}, "42", int64(42), ""},
		{"leading zero rejected", Definition{Type: "int"}, "007", nil, jexerr.TypeMismatch},
		{"non integral float rejected", Definition{Type: "int"}, 3.5, nil, jexerr.TypeMismatch},
		{"below min", Definition{Type: "int", MinValue: ptrInt64(5)}, float64(1), nil, jexerr.OutOfRange},
		{"above max", Definition{Type: "int", MaxValue: ptrInt64(5)}, float64(9), nil, jexerr.OutOfRange},
		{"not allowed", Definition{Type: "int", AllowedValues: []any{float64(1), float64(2)}}, float64(3), nil, jexerr.OutOfRange},
		{"allowed", Definition{Type: "int", AllowedValues: []any{float64(1), float64(2)}}, float64(2), int64(2), ""},
		{"plus sign rejected", Definition{Type: "int"}, "+1", nil, jexerr.TypeMismatch},
		{"whitespace rejected", Definition{Type: "int"}, " 7 ", nil, jexerr.TypeMismatch},
		{"not a number", Definition{Type: "int"}, "abc", nil, jexerr.TypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate("p", tt.def, tt.value)
			if tt.wantErr != "" {
				assertKind(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		value   any
		want    any
		wantErr jexerr.Kind
	}{
		{"plain", Definition{Type: "string"}, "hello", "hello", ""},
		{"empty rejected", Definition{Type: "string"}, "", nil, jexerr.OutOfRange},
		{"too short", Definition{Type: "string", MinLength: ptrInt(3)}, "ab", nil, jexerr.OutOfRange},
		{"too long", Definition{Type: "string", MaxLength: ptrInt(3)}, "abcd", nil, jexerr.OutOfRange},
		{"not a string", Definition{Type: "string"}, float64(1), nil, jexerr.TypeMismatch},
		{"allowed", Definition{Type: "string", AllowedValues: []any{"a", "b"}}, "a", "a", ""},
		{"not allowed", Definition{Type: "string", AllowedValues: []any{"a", "b"}}, "c", nil, jexerr.OutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate("p", tt.def, tt.value)
			if tt.wantErr != "" {
				assertKind(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateBool(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    any
		wantErr jexerr.Kind
	}{
		{"native true", true, true, ""},
		{"native false", false, false, ""},
		{"string True", "True", true, ""},
		{"string FALSE", "FALSE", false, ""},
		{"invalid string", "yes", nil, jexerr.TypeMismatch},
		{"wrong type", float64(1), nil, jexerr.TypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate("p", Definition{Type: "bool"}, tt.value)
			if tt.wantErr != "" {
				assertKind(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefinitionFromDoc_UnsupportedType(t *testing.T) {
	_, err := DefinitionFromDoc(map[string]any{"type": "secureString"})
	assertKind(t, err, jexerr.Unsupported)
}

func assertKind(t *testing.T, err error, want jexerr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %s, got nil", want)
	}
	je, ok := err.(*jexerr.Error)
	if !ok {
		t.Fatalf("expected *jexerr.Error, got %T: %v", err, err)
	}
	if je.Kind != want {
		t.Errorf("error kind = %s, want %s (%v)", je.Kind, want, err)
	}
}
