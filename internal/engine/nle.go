package engine

import (
	"context"
	"os/exec"
	"time"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/preset"
)

// nleNotImplemented is the failure reason for every NLE render.
const nleNotImplemented = "external NLE rendering is not implemented"

// NLEStub stands in for an external non-linear editor's render queue. It
// reports availability and capabilities so jobs can be validated against
// it, but every render fails.
type NLEStub struct {
	Binary   string
	lookPath func(string) (string, error)
}

// NewNLEStub returns a stub that is available when binary is on PATH.
func NewNLEStub(binary string) *NLEStub {
	if binary == "" {
		binary = "nle-render"
	}
	return &NLEStub{Binary: binary, lookPath: exec.LookPath}
}

func (n *NLEStub) Kind() jobs.EngineKind { return jobs.EngineNLE }

func (n *NLEStub) Available() bool {
	_, err := n.lookPath(n.Binary)
	return err == nil
}

func (n *NLEStub) Capabilities() []preset.Capability {
	return []preset.Capability{preset.CapTranscode, preset.CapScale}
}

func (n *NLEStub) ValidateJob(job *jobs.Job, params preset.ResolvedParams) Validation {
	return validateCommon(n, job, params, func(c preset.VideoCodec) bool {
		return c == preset.CodecProRes || c == preset.CodecDNxHR
	})
}

func (n *NLEStub) RunClip(ctx context.Context, clip Clip, _ preset.ResolvedParams, outputPath string, _ ProgressFunc) ClipResult {
	now := time.Now()
	res := ClipResult{
		TaskID:        clip.TaskID,
		Status:        ResultFailed,
		OutputPath:    outputPath,
		FailureReason: nleNotImplemented,
		ExitCode:      -1,
		StartedAt:     now,
		EndedAt:       now,
	}
	if ctx.Err() != nil {
		res.Status = ResultCancelled
		res.FailureReason = context.Cause(ctx).Error()
	}
	return res
}

// CancelJob is a no-op: the stub never has work in flight.
func (n *NLEStub) CancelJob(*jobs.Job) int { return 0 }
