package config

import (
	"testing"
)

func TestParseChannelSet(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"1", []int{1}, false},
		{"0,2,5", []int{0, 2, 5}, false},
		{" 1 , 2 ", []int{1, 2}, false},
		{"1,,3", []int{1, 3}, false},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseChannelSet(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseChannelSet(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseChannelSet(%q): %v", tt.input, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ParseChannelSet(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for _, idx := range tt.want {
			if !got[idx] {
				t.Errorf("ParseChannelSet(%q) missing %d", tt.input, idx)
			}
		}
	}
}

func TestParseChannelIndex(t *testing.T) {
	got, err := ParseChannelIndex("")
	if err != nil || got != nil {
		t.Fatalf("empty input = (%v, %v), want (nil, nil)", got, err)
	}

	got, err = ParseChannelIndex(" 4 ")
	if err != nil || got == nil || *got != 4 {
		t.Fatalf("ParseChannelIndex(\" 4 \") = (%v, %v)", got, err)
	}

	if _, err := ParseChannelIndex("nan"); err == nil {
		t.Fatal("expected error for non-numeric index")
	}
}
