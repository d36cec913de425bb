package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

type builderFake struct {
	run *domain.IngestRun
	err error
}

func (f builderFake) Rebuild(context.Context, string) (*domain.IngestRun, error) {
	return f.run, f.err
}

type answererFake struct {
	answer     *domain.Answer
	gotQ       string
	gotK       int
	gotFilter  domain.SourceFilter
	gotHistory string
}

func (f *answererFake) Answer(_ context.Context, question string, k int, filter domain.SourceFilter, history string) (*domain.Answer, error) {
	f.gotQ = question
	f.gotK = k
	f.gotFilter = filter
	f.gotHistory = history
	return f.answer, nil
}

type documentsFake struct {
	sources []string
}

func (f documentsFake) Upload(context.Context, string, io.Reader) (string, error) { return "", nil }
func (f documentsFake) RequestRebuild(context.Context, string) error              { return nil }
func (f documentsFake) ListSources(context.Context) ([]string, error)             { return f.sources, nil }

func run(t *testing.T, services *Services, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(func(context.Context) (*Services, func(), error) {
		return services, func() {}, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAskPrintsAnswerAndCitations(t *testing.T) {
	answerer := &answererFake{answer: &domain.Answer{
		Text:      "Backups run nightly.",
		Citations: []string{"ops.pdf - page 3 - chunk#7"},
	}}
	out, err := run(t, &Services{Answerer: answerer}, "ask", "--top-k", "4", "--source", "ops.pdf", "When", "do", "backups", "run?")
	if err != nil {
		t.Fatalf("ask error: %v", err)
	}
	if answerer.gotQ != "When do backups run?" || answerer.gotK != 4 || !answerer.gotFilter.Allows("ops.pdf") {
		t.Fatalf("unexpected call q=%q k=%d filter=%v", answerer.gotQ, answerer.gotK, answerer.gotFilter)
	}
	if answerer.gotHistory != "(none)" {
		t.Fatalf("expected no history, got %q", answerer.gotHistory)
	}
	if !strings.Contains(out, "Backups run nightly.") || !strings.Contains(out, "  - ops.pdf - page 3 - chunk#7") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestAskNoSourcesHidesCitations(t *testing.T) {
	answerer := &answererFake{answer: &domain.Answer{Text: "Yes.", Citations: []string{"a.pdf - page 1 - chunk#0"}}}
	out, err := run(t, &Services{Answerer: answerer}, "ask", "--no-sources", "Is it?")
	if err != nil {
		t.Fatalf("ask error: %v", err)
	}
	if strings.Contains(out, "Sources:") {
		t.Fatalf("citations must be hidden:\n%s", out)
	}
}

func TestAskFilteredAbstentionPrintsHint(t *testing.T) {
	answerer := &answererFake{answer: &domain.Answer{Text: domain.AbstentionMessage, Citations: []string{}, Abstained: true}}
	out, err := run(t, &Services{Answerer: answerer}, "ask", "-s", "a.pdf", "Capital of Japan?")
	if err != nil {
		t.Fatalf("ask error: %v", err)
	}
	if !strings.Contains(out, domain.AbstentionMessage) || !strings.Contains(out, domain.FilteredOutHint) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	opened := false
	root := NewRootCommand(func(context.Context) (*Services, func(), error) {
		opened = true
		return &Services{}, func() {}, nil
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"ask"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected argument error")
	}
	if opened {
		t.Fatalf("services must not be opened on argument errors")
	}
}

func TestIngestReportsFilesAndFailure(t *testing.T) {
	report := &domain.IngestRun{
		Status:       domain.IngestSucceeded,
		Generation:   "gen-1",
		FilesTotal:   2,
		FilesSkipped: 1,
		Chunks:       9,
		Files: []domain.IngestFile{
			{Source: "good.pdf", Status: domain.FileIndexed, Pages: 3, Chunks: 9},
			{Source: "bad.pdf", Status: domain.FileSkipped, Error: "malformed"},
		},
	}
	out, err := run(t, &Services{Builder: builderFake{run: report}}, "ingest")
	if err != nil {
		t.Fatalf("ingest error: %v", err)
	}
	for _, want := range []string{"indexed  good.pdf (3 pages, 9 chunks)", "skipped  bad.pdf: malformed", "Indexed 9 chunks from 1 PDF(s) into gen-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	failed := &domain.IngestRun{Status: domain.IngestFailed}
	_, err = run(t, &Services{Builder: builderFake{run: failed, err: domain.WrapError(domain.ErrNoInput, "rebuild", errors.New("no pdfs"))}}, "ingest")
	if !domain.IsKind(err, domain.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestSourcesListsOrReportsEmpty(t *testing.T) {
	out, err := run(t, &Services{Documents: documentsFake{sources: []string{"a.pdf", "b.pdf"}}}, "sources")
	if err != nil || out != "a.pdf\nb.pdf\n" {
		t.Fatalf("unexpected sources output %q err=%v", out, err)
	}

	out, err = run(t, &Services{Documents: documentsFake{}}, "sources")
	if err != nil || !strings.Contains(out, "No documents indexed") {
		t.Fatalf("unexpected empty output %q err=%v", out, err)
	}
}

func TestOpenErrorIsReturned(t *testing.T) {
	root := NewRootCommand(func(context.Context) (*Services, func(), error) {
		return nil, nil, errors.New("ollama unreachable")
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"sources"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "ollama unreachable") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestRedirectLogsWritesFileAndRestores(t *testing.T) {
	prev := slog.Default()
	path := filepath.Join(t.TempDir(), "chat.log")

	restore, err := redirectLogs(path, "info")
	if err != nil {
		t.Fatalf("redirectLogs() error = %v", err)
	}
	slog.Info("session_ask_failed")
	restore()

	if slog.Default() != prev {
		t.Fatalf("default logger was not restored")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "session_ask_failed") {
		t.Fatalf("log line missing: %q", raw)
	}
}
