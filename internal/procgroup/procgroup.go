// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup starts child processes in their own process group and
// tears the whole group down with a SIGTERM -> grace -> SIGKILL sequence.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
)

// ErrKillFailed is returned when a process group survives SIGKILL past the kill timeout.
var ErrKillFailed = errors.New("kill operation failed")

// Outcome describes how a terminated process group ended.
type Outcome string

const (
	OutcomeGraceful Outcome = "graceful" // exited within the grace period
	OutcomeForced   Outcome = "forced"   // needed SIGKILL
	OutcomeGone     Outcome = "gone"     // had already exited
)

// Terminate sends SIGTERM to the process group of cmd and waits for done to
// close. If the group is still alive after grace it sends SIGKILL and waits
// up to killTimeout more. The caller owns cmd.Wait and must close done once
// it returns. Safe to call on nil commands.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, grace, killTimeout time.Duration) (Outcome, error) {
	if cmd == nil || cmd.Process == nil {
		return OutcomeGone, nil
	}

	select {
	case <-done:
		return OutcomeGone, nil
	default:
	}

	send(cmd, syscall.SIGTERM)

	select {
	case <-done:
		metrics.IncProcWait(string(OutcomeGraceful))
		return OutcomeGraceful, nil
	case <-time.After(grace):
	}

	log.L().Warn().
		Int(log.FieldPID, cmd.Process.Pid).
		Dur("grace", grace).
		Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	send(cmd, syscall.SIGKILL)

	select {
	case <-done:
		metrics.IncProcWait(string(OutcomeForced))
		return OutcomeForced, nil
	case <-time.After(killTimeout):
		metrics.IncProcWait("kill_failed")
		return OutcomeForced, ErrKillFailed
	}
}

func send(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		log.L().Debug().Err(err).Int(log.FieldPID, cmd.Process.Pid).Str(log.FieldSignal, name).Msg("signal delivery failed")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}
