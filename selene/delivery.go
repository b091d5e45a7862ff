package selene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// runStdin pipes text into `selene -`. stdout and stderr are drained by
// exec's own copiers while the write is in flight.
func (r *Runner) runStdin(ctx, cmdCtx context.Context, text string) ([]byte, error) {
	args := append([]string{"-"}, r.baseArgs()...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, r.cfg.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &Error{Op: "lint", Err: fmt.Errorf("%w: %s", ErrResource, err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, r.classify(ctx, cmdCtx, "lint", err, false, "")
	}

	var (
		g       errgroup.Group
		waitErr error
	)
	g.Go(func() error {
		defer stdin.Close()
		_, err := io.WriteString(stdin, text)
		return err
	})
	g.Go(func() error {
		waitErr = cmd.Wait()
		return nil
	})
	writeErr := g.Wait()

	if waitErr != nil {
		if err := r.classify(ctx, cmdCtx, "lint", waitErr, stdout.Len() > 0, stderr.String()); err != nil {
			return nil, err
		}
	}
	if writeErr != nil && !errors.Is(writeErr, os.ErrClosed) && !errors.Is(writeErr, syscall.EPIPE) {
		return nil, &Error{Op: "lint", Err: fmt.Errorf("%w: writing stdin: %s", ErrResource, writeErr)}
	}
	return stdout.Bytes(), nil
}

// runFile writes text to a temporary file and lints that path. The file is
// removed before returning, whatever the outcome.
func (r *Runner) runFile(ctx, cmdCtx context.Context, text string) ([]byte, error) {
	f, err := os.CreateTemp(r.cfg.TempDir, "selene-*.lua")
	if err != nil {
		return nil, &Error{Op: "lint", Err: fmt.Errorf("%w: %s", ErrResource, err)}
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return nil, &Error{Op: "lint", Err: fmt.Errorf("%w: %s", ErrResource, err)}
	}
	if err := f.Close(); err != nil {
		return nil, &Error{Op: "lint", Err: fmt.Errorf("%w: %s", ErrResource, err)}
	}

	args := append(r.baseArgs(), path)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, r.cfg.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if err := r.classify(ctx, cmdCtx, "lint", err, stdout.Len() > 0, stderr.String()); err != nil {
			return nil, err
		}
	}
	return stdout.Bytes(), nil
}
