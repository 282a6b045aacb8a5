package task

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	stderrTailLimit = 4 << 10
	// longer stdout lines are logged truncated
	maxLoggedLine = 64 << 10
)

// CommandTask runs an external process. Each stdout line is logged and
// cancellation kills the process.
type CommandTask struct {
	Base

	command string
	args    []string
	dir     string
	lines   atomic.Int64
}

// NewCommandTask creates a task running command with args in dir
func NewCommandTask(command string, args []string, dir string, opts ...Option) *CommandTask {
	t := &CommandTask{command: command, args: args, dir: dir}
	t.Init(t, t.run, opts...)
	return t
}

// Lines returns the number of stdout lines read so far
func (t *CommandTask) Lines() int64 {
	return t.lines.Load()
}

func (t *CommandTask) run(ctx context.Context) {
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Dir = t.dir

	var stderr tailBuffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.ReportException(fmt.Errorf("command %s: %w", t.command, err))
		return
	}

	if err := cmd.Start(); err != nil {
		t.ReportException(fmt.Errorf("command %s: %w", t.command, err))
		return
	}
	t.logger.Info("process started",
		zap.String("command", t.command),
		zap.Int("pid", cmd.Process.Pid))

	t.readOutput(stdout)

	err = cmd.Wait()
	if ctx.Err() != nil {
		t.logger.Info("process killed on cancel", zap.String("command", t.command))
		return
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("command %s: %w: %s", t.command, err, msg)
		} else {
			err = fmt.Errorf("command %s: %w", t.command, err)
		}
		t.ReportException(err)
		return
	}
	t.logger.Info("process exited", zap.String("command", t.command))
}

// readOutput logs stdout line by line until EOF. The pipe is always drained
// so the process never blocks on a full pipe.
func (t *CommandTask) readOutput(stdout io.Reader) {
	reader := bufio.NewReaderSize(stdout, maxLoggedLine)
	continued := false
	for {
		frag, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				t.logger.Warn("failed to read process output",
					zap.String("command", t.command),
					zap.Error(err))
				_, _ = io.Copy(io.Discard, stdout)
			}
			return
		}
		if !continued {
			t.lines.Add(1)
			t.logger.Info("process output",
				zap.String("command", t.command),
				zap.String("line", string(frag)),
				zap.Bool("truncated", isPrefix))
		}
		continued = isPrefix
	}
}

// tailBuffer keeps only the last stderrTailLimit bytes written to it
type tailBuffer struct {
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > stderrTailLimit {
		p = p[len(p)-stderrTailLimit:]
	}
	if over := b.buf.Len() + len(p) - stderrTailLimit; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string {
	return b.buf.String()
}
