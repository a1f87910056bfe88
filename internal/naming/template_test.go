package naming

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRenderFilename(t *testing.T) {
	tk := Tokens{
		SourceName: "A001C003_230101",
		Reel:       "A001",
		Timecode:   "01:00:10:05",
		FrameCount: 240,
		Width:      1920,
		Height:     1080,
		Codec:      "prores",
		Preset:     "h264-proxy",
		JobID:      "3f2b9c4e-1d2a-4b7e-9a61-0c5d8e7f1a2b",
		Time:       time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	tests := []struct {
		name     string
		template string
		tokens   Tokens
		want     string
	}{
		{"default template", "", tk, "A001C003_230101"},
		{"all tokens", "{reel}_{timecode}_{frame_count}_{dimensions}_{codec}_{preset}",
			tk, "A001_01-00-10-05_240_1920x1080_prores_h264-proxy"},
		{"width height", "{width}w{height}h", tk, "1920w1080h"},
		{"job and date", "{job_id}_{date}_{time}", tk, "3f2b9c4e_20260304_050607"},
		{"unknown token stays literal", "{source_name}_{unknown_token}", tk, "A001C003_230101_{unknown_token}"},
		{"known token without value stays literal", "{source_name}_{reel}", Tokens{SourceName: "clip"}, "clip_{reel}"},
		{"value is not re-expanded", "{source_name}", Tokens{SourceName: "x{codec}"}, "x{codec}"},
		{"unsafe characters replaced", "{source_name}", Tokens{SourceName: `a/b:c*d`}, "a_b_c_d"},
		{"separator in template replaced", "{source_name}/x", Tokens{SourceName: "a"}, "a_x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderFilename(tt.template, tt.tokens)
			if err != nil {
				t.Fatalf("RenderFilename: %v", err)
			}
			if got != tt.want {
				t.Errorf("RenderFilename(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestRenderFilename_UnknownTokenNeverDropped(t *testing.T) {
	got, err := RenderFilename("{source_name}_{unknown_token}", Tokens{SourceName: "clip"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "{unknown_token}") {
		t.Errorf("got %q, want literal {unknown_token}", got)
	}
}

func TestRenderFilename_Empty(t *testing.T) {
	_, err := RenderFilename("  ..  ", Tokens{})
	if !errors.Is(err, ErrEmptyFilename) {
		t.Errorf("err = %v, want ErrEmptyFilename", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverwritePolicy
		wantErr bool
	}{
		{"never", PolicyNever, false},
		{"ASK", PolicyAsk, false},
		{" increment ", PolicyIncrement, false},
		{"always", PolicyAlways, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}
