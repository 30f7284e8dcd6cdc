package model

import (
	"testing"
)

func TestToInt(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    int
		wantErr bool
	}{
		{name: "int", in: 5, want: 5},
		{name: "int64", in: int64(7), want: 7},
		{name: "integral float", in: 3.0, want: 3},
		{name: "fractional float", in: 3.5, wantErr: true},
		{name: "string", in: "3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToInt(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ToInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToOptionalInt(t *testing.T) {
	for _, in := range []interface{}{nil, "none", "None"} {
		got, err := ToOptionalInt(in)
		if err != nil || got != -1 {
			t.Errorf("ToOptionalInt(%v) = %v, %v; want -1", in, got, err)
		}
	}
	if got, err := ToOptionalInt(12); err != nil || got != 12 {
		t.Errorf("ToOptionalInt(12) = %v, %v", got, err)
	}
}

func TestToFloatAndString(t *testing.T) {
	if f, err := ToFloat(10); err != nil || f != 10 {
		t.Errorf("ToFloat(10) = %v, %v", f, err)
	}
	if _, err := ToFloat("x"); err == nil {
		t.Error("ToFloat(string) should fail")
	}
	if s, err := ToString(nil); err != nil || s != "none" {
		t.Errorf("ToString(nil) = %q, %v", s, err)
	}
	if _, err := ToString(1); err == nil {
		t.Error("ToString(int) should fail")
	}
}

func TestFormatParams(t *testing.T) {
	got := FormatParams(map[string]interface{}{
		"gamma":     0.1,
		"C":         1.0,
		"max_depth": nil,
	})
	want := "C=1 gamma=0.1 max_depth=none"
	if got != want {
		t.Errorf("FormatParams() = %q, want %q", got, want)
	}
}
