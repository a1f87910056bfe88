package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/backmassage/clipmaster/internal/preset"
)

func hasPair(args []string, key, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == key && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name   string
		params preset.ResolvedParams
		want   [][2]string
		absent []string
	}{
		{
			name: "h264 proxy with fit scale",
			params: preset.ResolvedParams{VideoCodec: preset.CodecH264, Container: preset.ContainerMP4, Quality: 23,
				ScaleMode: preset.ScaleFit, TargetWidth: 1280, TargetHeight: 720, AudioCodec: preset.AudioAAC, AudioBitrate: "128k"},
			want: [][2]string{{"-c:v", "libx264"}, {"-crf", "23"}, {"-c:a", "aac"}, {"-b:a", "128k"}, {"-movflags", "+faststart"},
				{"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2"}},
		},
		{
			name:   "prores proxy profile",
			params: preset.ResolvedParams{VideoCodec: preset.CodecProRes, Container: preset.ContainerMOV, CodecProfile: "proxy", ScaleMode: preset.ScaleNone, AudioCodec: preset.AudioPCM},
			want:   [][2]string{{"-c:v", "prores_ks"}, {"-profile:v", "0"}, {"-c:a", "pcm_s24le"}, {"-f", "mov"}},
			absent: []string{"-crf", "-vf", "-b:a"},
		},
		{
			name:   "dnxhr defaults to lb",
			params: preset.ResolvedParams{VideoCodec: preset.CodecDNxHR, Container: preset.ContainerMXF, ScaleMode: preset.ScaleNone, AudioCodec: preset.AudioNone},
			want:   [][2]string{{"-c:v", "dnxhd"}, {"-profile:v", "dnxhr_lb"}, {"-f", "mxf"}},
			absent: []string{"-c:a"},
		},
		{
			name: "vp9 crf without bitrate",
			params: preset.ResolvedParams{VideoCodec: preset.CodecVP9, Container: preset.ContainerWebM, Quality: 31,
				ScaleMode: preset.ScaleExact, TargetWidth: 640, TargetHeight: 360, AudioCodec: preset.AudioOpus},
			want: [][2]string{{"-c:v", "libvpx-vp9"}, {"-crf", "31"}, {"-b:v", "0"}, {"-vf", "scale=640:360"}, {"-c:a", "libopus"}},
		},
		{
			name:   "audio passthrough",
			params: preset.ResolvedParams{VideoCodec: preset.CodecHEVC, Container: preset.ContainerMKV, VideoBitrate: "8M", ScaleMode: preset.ScaleNone, AudioCodec: preset.AudioCopy, AudioBitrate: "320k"},
			want:   [][2]string{{"-c:v", "libx265"}, {"-b:v", "8M"}, {"-c:a", "copy"}, {"-f", "matroska"}},
			absent: []string{"-b:a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := Build("ffmpeg", "/in/clip.mov", "/out/clip.mp4", tt.params)
			if args[0] != "ffmpeg" {
				t.Errorf("args[0] = %q", args[0])
			}
			if args[len(args)-1] != "/out/clip.mp4" {
				t.Errorf("last arg = %q, want output path", args[len(args)-1])
			}
			if !hasPair(args, "-i", "/in/clip.mov") {
				t.Error("missing -i input")
			}
			for _, kv := range tt.want {
				if !hasPair(args, kv[0], kv[1]) {
					t.Errorf("missing %s %s in %v", kv[0], kv[1], args)
				}
			}
			for _, flag := range tt.absent {
				for _, a := range args {
					if a == flag {
						t.Errorf("unexpected %s in %v", flag, args)
					}
				}
			}
		})
	}
}

func TestBuild_WatermarkEscaped(t *testing.T) {
	p := preset.ResolvedParams{VideoCodec: preset.CodecH264, Container: preset.ContainerMP4, ScaleMode: preset.ScaleNone,
		AudioCodec: preset.AudioAAC, Watermark: "Client's: DRAFT"}
	args := Build("ffmpeg", "in", "out", p)
	var vf string
	for i, a := range args {
		if a == "-vf" {
			vf = args[i+1]
		}
	}
	if !strings.Contains(vf, `text='Client\'s\: DRAFT'`) {
		t.Errorf("vf = %q", vf)
	}
}

func TestParseProgress(t *testing.T) {
	line := "frame=  240 fps= 60 q=28.0 size=    1024kB time=00:00:10.00 bitrate= 838.9kbits/s speed=2.50x"
	p, ok := ParseProgress(line, 40)
	if !ok {
		t.Fatal("line not parsed")
	}
	if p.Frame != 240 || p.FPS != 60 || p.Speed != 2.5 {
		t.Errorf("progress = %+v", p)
	}
	if p.Position != 10*time.Second {
		t.Errorf("Position = %v, want 10s", p.Position)
	}
	if p.Percent != 25 {
		t.Errorf("Percent = %v, want 25", p.Percent)
	}
	if p.ETA != 12 {
		t.Errorf("ETA = %v, want 12", p.ETA)
	}

	p, ok = ParseProgress(line, 0)
	if !ok || p.Percent != -1 || p.ETA != -1 {
		t.Errorf("unknown duration: %+v", p)
	}
	if _, ok := ParseProgress("Input #0, mov,mp4", 10); ok {
		t.Error("non-stats line parsed")
	}
}

func TestClassifiers(t *testing.T) {
	if ClassifyWarning("[mp4 @ 0x1] Non-monotonous DTS in output stream 0:1") == "" {
		t.Error("timestamp warning not classified")
	}
	if ClassifyWarning("Too many packets buffered for output stream 0:1.") == "" {
		t.Error("mux queue warning not classified")
	}
	if ClassifyWarning("Stream mapping:") != "" {
		t.Error("plain line classified as warning")
	}
	hint := FailureHint([]string{"Input #0", "Unknown encoder 'libx265'"})
	if !strings.Contains(hint, "encoder") {
		t.Errorf("hint = %q", hint)
	}
	if FailureHint([]string{"nothing useful"}) != "" {
		t.Error("unexpected hint")
	}
}

func TestStderrWriter_SplitsAndKeepsTail(t *testing.T) {
	var mu sync.Mutex
	var logged []string
	w := newStderrWriter(2, func(l string) {
		mu.Lock()
		logged = append(logged, l)
		mu.Unlock()
	})
	_, _ = w.Write([]byte("line one\nline two\r\nframe=1 time=00:00:01.00 speed=1x\rline th"))
	_, _ = w.Write([]byte("ree\nNon-monotonous DTS\nNon-monotonous DTS\npartial"))
	w.flush()

	tail, warnings := w.results()
	if len(tail) != 2 || tail[0] != "Non-monotonous DTS" || tail[1] != "partial" {
		t.Errorf("tail = %q", tail)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %q, want one deduplicated", warnings)
	}
	if len(logged) != 6 {
		t.Errorf("logged %d lines, want 6 (stats lines excluded): %q", len(logged), logged)
	}
	select {
	case l := <-w.stats:
		if !strings.HasPrefix(l, "frame=1") {
			t.Errorf("stats line = %q", l)
		}
	default:
		t.Error("stats line not forwarded")
	}
}

// writeScript creates an executable shell script standing in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecute_ProgressAndSuccess(t *testing.T) {
	script := writeScript(t, `
for last; do :; done
echo "frame=  24 fps=24 q=20.0 size=1kB time=00:00:01.00 bitrate=1kbits/s speed=1.0x" >&2
echo "Non-monotonous DTS in output stream 0:0" >&2
: > "$last"
exit 0
`)
	out := filepath.Join(t.TempDir(), "out.mp4")
	var got []Progress
	res := Execute(context.Background(), []string{script, "-i", "in.mov", out}, ExecOptions{
		DurationSeconds: 4,
		OnProgress:      func(p Progress) { got = append(got, p) },
	})
	if res.Err != nil || res.ExitCode != 0 {
		t.Fatalf("Execute: err=%v code=%d tail=%q", res.Err, res.ExitCode, res.Tail)
	}
	if len(got) != 1 || got[0].Percent != 25 {
		t.Errorf("progress = %+v", got)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %q", res.Warnings)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not created: %v", err)
	}
}

func TestExecute_NonzeroExitKeepsTail(t *testing.T) {
	script := writeScript(t, `
i=1
while [ $i -le 30 ]; do echo "diag line $i" >&2; i=$((i+1)); done
echo "Unknown encoder 'libfoo'" >&2
exit 3
`)
	res := Execute(context.Background(), []string{script}, ExecOptions{TailLines: 5})
	if res.Err == nil || res.ExitCode != 3 {
		t.Fatalf("err=%v code=%d", res.Err, res.ExitCode)
	}
	if len(res.Tail) != 5 || res.Tail[4] != "Unknown encoder 'libfoo'" || res.Tail[0] != "diag line 27" {
		t.Errorf("tail = %q", res.Tail)
	}
}

func TestExecute_CancelEscalatesToKill(t *testing.T) {
	script := writeScript(t, `
trap '' TERM
echo started >&2
while :; do :; done
`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	res := Execute(ctx, []string{script}, ExecOptions{GracePeriod: 300 * time.Millisecond})
	if !res.Terminated || !res.Killed {
		t.Errorf("Terminated=%v Killed=%v, want both", res.Terminated, res.Killed)
	}
	if res.Err == nil {
		t.Error("killed process reported success")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took %v", elapsed)
	}
}

func TestExecute_CancelGraceful(t *testing.T) {
	script := writeScript(t, `
trap 'exit 143' TERM
while :; do :; done
`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	res := Execute(ctx, []string{script}, ExecOptions{GracePeriod: 5 * time.Second})
	if !res.Terminated || res.Killed {
		t.Errorf("Terminated=%v Killed=%v, want terminated only", res.Terminated, res.Killed)
	}
}

func TestExecute_StartFailure(t *testing.T) {
	res := Execute(context.Background(), []string{filepath.Join(t.TempDir(), "missing-bin")}, ExecOptions{})
	if res.Err == nil || res.ExitCode != -1 {
		t.Errorf("err=%v code=%d", res.Err, res.ExitCode)
	}
}
