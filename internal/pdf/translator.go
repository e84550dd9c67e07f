package pdf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	maxEventLineBytes = 4 * 1024 * 1024
	stderrTailBytes   = 8 * 1024
)

// Translator は JobSpec に従って翻訳を行い、進捗を sink に送ります。
// 成果物は spec.OutputDir 配下に書き出します。
type Translator interface {
	Translate(ctx context.Context, spec *JobSpec, sink EventSink) error
}

// commandRunner は外部コマンドの実行を抽象化します。
type commandRunner interface {
	Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// CommandTranslator は外部の翻訳コマンドを起動する Translator です。
// コマンドは `--job <path>` を受け取り、進捗を1行1JSONで標準出力に書きます。
type CommandTranslator struct {
	command string
	runner  commandRunner
	logger  *logrus.Logger
}

// NewCommandTranslator は command を実行する CommandTranslator を生成します。
func NewCommandTranslator(command string, logger *logrus.Logger) *CommandTranslator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CommandTranslator{command: command, runner: execRunner{}, logger: logger}
}

// Translate はジョブファイルを書き出して翻訳コマンドを実行します。
func (t *CommandTranslator) Translate(ctx context.Context, spec *JobSpec, sink EventSink) error {
	if spec == nil {
		return errors.New("job spec is nil")
	}
	if strings.TrimSpace(t.command) == "" {
		return newError("TRANSLATE_FAILED", "translator command is not configured", nil)
	}

	jobPath, err := writeJobFile(spec.OutputDir, spec)
	if err != nil {
		return err
	}
	defer os.Remove(jobPath)

	logger := t.logger.WithFields(logrus.Fields{"command": t.command, "service": spec.Service})
	logger.Debug("starting translator")

	pr, pw := io.Pipe()
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		t.scanEvents(pr, sink, logger)
	}()

	stderr := &tailBuffer{limit: stderrTailBytes}
	runErr := t.runner.Run(ctx, pw, stderr, t.command, "--job", jobPath)
	_ = pw.Close()
	<-scanDone

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "translation canceled")
		}
		message := "translator failed"
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			message = message + ": " + lastLine(tail)
		}
		logger.WithError(runErr).WithField("stderr", stderr.String()).Warn("translator exited with error")
		return newError("TRANSLATE_FAILED", message, runErr)
	}
	logger.Debug("translator finished")
	return nil
}

func (t *CommandTranslator) scanEvents(r *io.PipeReader, sink EventSink, logger *logrus.Entry) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev RawEvent
		if err := json.Unmarshal(line, &ev); err != nil || ev == nil {
			logger.WithField("line", string(line)).Debug("ignoring non-event output")
			continue
		}
		emitEvent(sink, ev)
	}
	if err := scanner.Err(); err != nil {
		logger.WithError(err).Warn("stopped reading translator output")
	}
	_, _ = io.Copy(io.Discard, r)
}

// tailBuffer は書き込まれたデータのうち末尾 limit バイトだけを保持します。
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
