package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	dombatch "github.com/kailas-cloud/trialdex/internal/domain/batch"
	"github.com/kailas-cloud/trialdex/internal/usecase/canonical"
)

// --- Mocks ---

type fakeIngester struct {
	mu     sync.Mutex
	calls  []canonical.Options
	report canonical.Report
	err    error
}

func (f *fakeIngester) Ingest(_ context.Context, opts canonical.Options) (canonical.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return f.report, f.err
}

type fakePass struct {
	mu     sync.Mutex
	runs   int
	report dombatch.Report
	err    error
}

func (f *fakePass) Run(context.Context) (dombatch.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.report, f.err
}

func (f *fakePass) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fixture struct {
	ingest   *fakeIngester
	embed    *fakePass
	extract  *fakePass
	env      string
	cleaned  bool
	buildErr error
}

// setup swaps the pipeline factory for fakes and returns the command output buffer.
func setup(t *testing.T, configLimit int) (*fixture, *bytes.Buffer) {
	t.Helper()

	f := &fixture{
		ingest:  &fakeIngester{report: canonical.Report{Fetched: 3, Upserted: 2, Rejected: 1, Pages: 1}},
		embed:   &fakePass{report: dombatch.Report{Processed: 2, OK: 2}},
		extract: &fakePass{report: dombatch.Report{Processed: 2, OK: 1, NeedsReview: 1}},
	}

	old := newPipeline
	newPipeline = func(_ context.Context, env string) (*pipeline, func(), error) {
		f.env = env
		if f.buildErr != nil {
			return nil, nil, f.buildErr
		}
		return &pipeline{
			ingest:      f.ingest,
			embed:       f.embed,
			extract:     f.extract,
			ingestLimit: configLimit,
		}, func() { f.cleaned = true }, nil
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	t.Cleanup(func() {
		newPipeline = old
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		ingestLimit = 0
		ingestCmd.Flags().Lookup("limit").Changed = false
		envFlag = "local"
	})
	return f, buf
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestVersionCmd(t *testing.T) {
	_, buf := setup(t, 0)

	if err := execute("version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(buf.String(), "trialdex-indexer dev") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestIngestCmd_UsesConfiguredLimit(t *testing.T) {
	f, buf := setup(t, 500)

	if err := execute("ingest"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(f.ingest.calls) != 1 || f.ingest.calls[0].Limit != 500 {
		t.Fatalf("calls = %+v, want one with limit 500", f.ingest.calls)
	}
	if !strings.Contains(buf.String(), "ingest: fetched=3 upserted=2 rejected=1 failed=0 pages=1") {
		t.Errorf("output = %q", buf.String())
	}
	if !f.cleaned {
		t.Error("cleanup not called")
	}
}

func TestIngestCmd_LimitFlagOverridesConfig(t *testing.T) {
	f, _ := setup(t, 500)

	if err := execute("ingest", "--limit", "0"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if f.ingest.calls[0].Limit != 0 {
		t.Errorf("limit = %d, want 0", f.ingest.calls[0].Limit)
	}
}

func TestIngestCmd_NegativeLimit(t *testing.T) {
	f, _ := setup(t, 0)

	if err := execute("ingest", "--limit=-1"); err == nil {
		t.Fatal("expected error for negative limit")
	}
	if len(f.ingest.calls) != 0 {
		t.Errorf("ingest ran %d times", len(f.ingest.calls))
	}
}

func TestIngestCmd_PassError(t *testing.T) {
	f, buf := setup(t, 0)
	f.ingest.err = errors.New("feed down")

	err := execute("ingest")
	if err == nil || !strings.Contains(err.Error(), "feed down") {
		t.Fatalf("err = %v, want feed down", err)
	}
	// The partial report is still printed.
	if !strings.Contains(buf.String(), "fetched=3") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestEmbedCmd(t *testing.T) {
	f, buf := setup(t, 0)

	if err := execute("embed"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if f.embed.count() != 1 || f.extract.count() != 0 {
		t.Errorf("embed runs = %d, extract runs = %d", f.embed.count(), f.extract.count())
	}
	if !strings.Contains(buf.String(), "embed: processed=2 ok=2") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestExtractCmd(t *testing.T) {
	f, buf := setup(t, 0)

	if err := execute("extract"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if f.extract.count() != 1 {
		t.Errorf("extract runs = %d, want 1", f.extract.count())
	}
	if !strings.Contains(buf.String(), "needs_review=1") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunCmd_RunsAllPasses(t *testing.T) {
	f, buf := setup(t, 25)

	if err := execute("run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.ingest.calls) != 1 || f.ingest.calls[0].Limit != 25 {
		t.Errorf("ingest calls = %+v", f.ingest.calls)
	}
	if f.embed.count() != 1 || f.extract.count() != 1 {
		t.Errorf("embed runs = %d, extract runs = %d", f.embed.count(), f.extract.count())
	}
	out := buf.String()
	for _, want := range []string{"ingest:", "embed:", "extract:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestRunCmd_IngestFailureStopsPasses(t *testing.T) {
	f, _ := setup(t, 0)
	f.ingest.err = errors.New("feed down")

	if err := execute("run"); err == nil {
		t.Fatal("expected error")
	}
	if f.embed.count() != 0 || f.extract.count() != 0 {
		t.Errorf("passes ran after failed ingest: embed=%d extract=%d", f.embed.count(), f.extract.count())
	}
}

func TestRunCmd_PassFailure(t *testing.T) {
	f, _ := setup(t, 0)
	f.extract.err = errors.New("model unavailable")

	err := execute("run")
	if err == nil || !strings.Contains(err.Error(), "extract: model unavailable") {
		t.Fatalf("err = %v", err)
	}
}

func TestEnvFlag(t *testing.T) {
	f, _ := setup(t, 0)

	if err := execute("embed", "--env", "prod"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if f.env != "prod" {
		t.Errorf("env = %q, want prod", f.env)
	}
}

func TestSetupError(t *testing.T) {
	f, _ := setup(t, 0)
	f.buildErr = errors.New("no config")

	err := execute("embed")
	if err == nil || !strings.Contains(err.Error(), "setup: no config") {
		t.Fatalf("err = %v", err)
	}
	if f.embed.count() != 0 {
		t.Error("pass ran without a pipeline")
	}
}
