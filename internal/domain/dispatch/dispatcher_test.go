package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/domain/dispatch"
	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/domain/tool"
	"toolhub/services/conversion-api/utils/platformerrors"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]*execution.Execution
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]*execution.Execution)}
}

func (m *memoryRepo) Create(ctx context.Context, exec *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.records[exec.ID] = &cp
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id string) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.records[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound, "execution not found", nil, "test")
	}
	cp := *exec
	return &cp, nil
}

func (m *memoryRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.records[id]
	if !ok || exec.Status != execution.StatusPending {
		return false, nil
	}
	exec.Status = execution.StatusProcessing
	exec.StartedAt = &startedAt
	return true, nil
}

func (m *memoryRepo) Finalize(ctx context.Context, id string, update execution.CallbackUpdate, completedAt time.Time, durationSeconds float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.records[id]
	if !ok || exec.Status.IsTerminal() {
		return false, nil
	}
	exec.Status = update.Status
	exec.OutputRef = update.OutputRef
	exec.OutputBytes = update.OutputBytes
	exec.ErrorMessage = update.ErrorMessage
	exec.ErrorDetail = update.ErrorDetail
	exec.CompletedAt = &completedAt
	exec.DurationSeconds = &durationSeconds
	return true, nil
}

func (m *memoryRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*execution.Execution, error) {
	return nil, nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memoryRepo) only() *execution.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exec := range m.records {
		cp := *exec
		return &cp
	}
	return nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if f.fail {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return nil
}

func (f *fakeBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, "", fmt.Errorf("blob not found: %s", key)
	}
	return io.NopCloser(strings.NewReader(string(data))), "application/octet-stream", nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	return nil
}

func (f *fakeBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok, nil
}

func (f *fakeBlobStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.blobs))
	for k := range f.blobs {
		keys = append(keys, k)
	}
	return keys
}

type fakeTrigger struct {
	mu   sync.Mutex
	jobs []dispatch.TriggerJob
	err  error
}

func (f *fakeTrigger) TriggerConversion(ctx context.Context, job dispatch.TriggerJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.err
}

func (f *fakeTrigger) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeTrigger) lastJob() dispatch.TriggerJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

type stubPlugin struct {
	desc        tool.Descriptor
	validateErr error
	output      *tool.Output
	processErr  error
	processed   int
}

func (p *stubPlugin) Metadata() tool.Descriptor { return p.desc }

func (p *stubPlugin) Validate(ctx context.Context, in tool.Input) error {
	if p.validateErr != nil && strings.HasPrefix(in.Filename, "bad") {
		return p.validateErr
	}
	if p.validateErr != nil && !strings.HasPrefix(in.Filename, "good") {
		return p.validateErr
	}
	return nil
}

func (p *stubPlugin) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	p.processed++
	if p.desc.Handoff {
		return nil, tool.ErrRemoteOnly
	}
	if p.processErr != nil {
		return nil, p.processErr
	}
	return p.output, nil
}

func (p *stubPlugin) Cleanup(paths ...string) {}

func newHarness(t *testing.T, plugins ...tool.Plugin) (*dispatch.Dispatcher, *memoryRepo, *fakeBlobStore, *fakeTrigger) {
	t.Helper()
	registry := tool.NewRegistry(zerolog.Nop())
	for _, p := range plugins {
		registry.Register(p)
	}
	repo := newMemoryRepo()
	svc := execution.NewService(repo, zerolog.Nop())
	blobs := newFakeBlobStore()
	trig := &fakeTrigger{}
	d := dispatch.NewDispatcher(registry, svc, blobs, trig, zerolog.Nop())
	return d, repo, blobs, trig
}

func waitForStatus(t *testing.T, repo *memoryRepo, id string, want execution.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := repo.GetByID(context.Background(), id)
		if err == nil && exec.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	exec, _ := repo.GetByID(context.Background(), id)
	t.Fatalf("execution never reached %s, last seen %+v", want, exec)
}

func TestDispatchUnknownTool(t *testing.T) {
	d, repo, blobs, trig := newHarness(t)

	_, err := d.Dispatch(context.Background(), "no-such-tool", tool.Input{Filename: "a.png", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !platformerrors.IsType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if repo.count() != 0 || len(blobs.keys()) != 0 || trig.jobCount() != 0 {
		t.Fatal("unknown tool must leave no side effects")
	}
}

func TestDispatchValidationFailureHasNoSideEffects(t *testing.T) {
	plugin := &stubPlugin{
		desc:        tool.Descriptor{Name: "pdf-to-docx", Category: "pdf", Handoff: true, RemoteAction: "to-docx"},
		validateErr: tool.Rejectf("unsupported file extension"),
	}
	d, repo, blobs, trig := newHarness(t, plugin)

	_, err := d.Dispatch(context.Background(), "pdf-to-docx", tool.Input{Filename: "bad.exe", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !platformerrors.IsType(err, platformerrors.ErrorTypeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.count() != 0 {
		t.Errorf("rejected input must not create a record, got %d", repo.count())
	}
	if len(blobs.keys()) != 0 {
		t.Errorf("rejected input must not stage blobs, got %v", blobs.keys())
	}
	if trig.jobCount() != 0 {
		t.Errorf("rejected input must not trigger remote work")
	}
}

func TestDispatchSyncToolRunsInline(t *testing.T) {
	plugin := &stubPlugin{
		desc:   tool.Descriptor{Name: "csv-to-json", Category: "data"},
		output: &tool.Output{Name: "out.json", MIME: "application/json", Data: []byte(`[]`)},
	}
	d, repo, _, trig := newHarness(t, plugin)

	outcome, err := d.Dispatch(context.Background(), "csv-to-json", tool.Input{Filename: "a.csv", Data: []byte("a,b")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Output == nil || outcome.Async != nil {
		t.Fatalf("sync tool must return inline output, got %+v", outcome)
	}
	if outcome.Output.Name != "out.json" {
		t.Errorf("unexpected output name %q", outcome.Output.Name)
	}
	if repo.count() != 0 {
		t.Errorf("sync dispatch must not persist a record")
	}
	if trig.jobCount() != 0 {
		t.Errorf("sync dispatch must not trigger remote work")
	}
}

func TestDispatchHandoffStagesAndTriggers(t *testing.T) {
	plugin := &stubPlugin{
		desc: tool.Descriptor{Name: "pdf-to-docx", Category: "pdf", Handoff: true, RemoteAction: "to-docx"},
	}
	d, repo, blobs, trig := newHarness(t, plugin)

	outcome, err := d.Dispatch(context.Background(), "pdf-to-docx", tool.Input{
		Filename: "report.PDF",
		Data:     []byte("%PDF-"),
		Params:   map[string]string{"quality": "high"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Async == nil {
		t.Fatal("handoff tool must return an async handle")
	}
	if outcome.Async.Status != execution.StatusPending {
		t.Errorf("expected pending handle, got %s", outcome.Async.Status)
	}

	id := outcome.Async.ExecutionID
	wantKey := "uploads/pdf/" + id + ".pdf"
	if ok, _ := blobs.Exists(context.Background(), wantKey); !ok {
		t.Fatalf("expected staged blob at %s, have %v", wantKey, blobs.keys())
	}

	if !d.Drain(2 * time.Second) {
		t.Fatal("drain timed out")
	}
	if trig.jobCount() != 1 {
		t.Fatalf("expected 1 trigger job, got %d", trig.jobCount())
	}
	job := trig.lastJob()
	if job.ExecutionID != id || job.BlobPath != wantKey || job.Action != "to-docx" {
		t.Errorf("unexpected trigger job %+v", job)
	}

	waitForStatus(t, repo, id, execution.StatusProcessing)
}

func TestDispatchTriggerFailureLeavesPending(t *testing.T) {
	plugin := &stubPlugin{
		desc: tool.Descriptor{Name: "image-ocr", Category: "image", Handoff: true, RemoteAction: "ocr"},
	}
	d, repo, _, trig := newHarness(t, plugin)
	trig.err = errors.New("compute tier unreachable")

	outcome, err := d.Dispatch(context.Background(), "image-ocr", tool.Input{Filename: "scan.png", Data: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Drain(2 * time.Second) {
		t.Fatal("drain timed out")
	}

	exec, err := repo.GetByID(context.Background(), outcome.Async.ExecutionID)
	if err != nil {
		t.Fatalf("record must survive trigger failure: %v", err)
	}
	if exec.Status != execution.StatusPending {
		t.Errorf("trigger exhaustion must leave record pending, got %s", exec.Status)
	}
}

func TestDispatchBulkSkipsInvalidFiles(t *testing.T) {
	plugin := &stubPlugin{
		desc: tool.Descriptor{
			Name: "image-format-converter", Category: "image",
			Handoff: true, RemoteAction: "convert",
			SupportsBulk: true, MaxBatchFiles: 10,
		},
		validateErr: tool.Rejectf("unsupported file extension"),
	}
	d, repo, _, _ := newHarness(t, plugin)

	inputs := []tool.Input{
		{Filename: "good-1.png", Data: []byte("a")},
		{Filename: "bad.exe", Data: []byte("b")},
		{Filename: "good-2.jpg", Data: []byte("c")},
	}
	batchID, results, err := d.DispatchBulk(context.Background(), "image-format-converter", inputs)
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if !strings.HasPrefix(batchID, "batch_") {
		t.Errorf("expected a batch_* id, got %q", batchID)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("valid files must proceed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("invalid file must carry its rejection")
	}
	if repo.count() != 2 {
		t.Errorf("expected 2 records for the valid files, got %d", repo.count())
	}
	d.Drain(2 * time.Second)
}

func TestDispatchBulkMergeCreatesSingleExecution(t *testing.T) {
	plugin := &stubPlugin{
		desc: tool.Descriptor{
			Name: "pdf-merger", Category: "pdf",
			Handoff: true, RemoteAction: "merge",
			SupportsBulk: true, BulkMerge: true,
			MinBatchFiles: 2, MaxBatchFiles: 20,
		},
	}
	d, repo, blobs, trig := newHarness(t, plugin)

	inputs := []tool.Input{
		{Filename: "a.pdf", Data: []byte("%PDF-a")},
		{Filename: "b.pdf", Data: []byte("%PDF-b")},
	}
	batchID, results, err := d.DispatchBulk(context.Background(), "pdf-merger", inputs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(batchID, "batch_") {
		t.Errorf("expected a batch_* id, got %q", batchID)
	}
	if len(results) != 1 {
		t.Fatalf("merge must produce a single result, got %d", len(results))
	}
	if repo.count() != 1 {
		t.Fatalf("merge must create exactly one record, got %d", repo.count())
	}

	id := results[0].Outcome.Async.ExecutionID
	for n := range inputs {
		key := fmt.Sprintf("uploads/pdf/%s_%d.pdf", id, n)
		if ok, _ := blobs.Exists(context.Background(), key); !ok {
			t.Errorf("expected staged blob %s, have %v", key, blobs.keys())
		}
	}

	if !d.Drain(2 * time.Second) {
		t.Fatal("drain timed out")
	}
	job := trig.lastJob()
	if len(job.BlobPaths) != 2 {
		t.Errorf("merge trigger must list every staged input, got %v", job.BlobPaths)
	}
	if job.BlobPath != "" {
		t.Errorf("merge trigger must not set a single blob path, got %q", job.BlobPath)
	}
}

func TestDispatchBulkMergeRejectsUndersizedBatch(t *testing.T) {
	plugin := &stubPlugin{
		desc: tool.Descriptor{
			Name: "pdf-merger", Category: "pdf",
			Handoff: true, RemoteAction: "merge",
			SupportsBulk: true, BulkMerge: true,
			MinBatchFiles: 2,
		},
	}
	d, repo, _, _ := newHarness(t, plugin)

	_, _, err := d.DispatchBulk(context.Background(), "pdf-merger", []tool.Input{
		{Filename: "only.pdf", Data: []byte("%PDF-")},
	})
	if err == nil {
		t.Fatal("expected rejection for undersized batch")
	}
	if !platformerrors.IsType(err, platformerrors.ErrorTypeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.count() != 0 {
		t.Error("rejected batch must leave no records")
	}
}

func TestDispatchBulkRejectsEmptyBatch(t *testing.T) {
	// A merge descriptor without a minimum file count must still reject an
	// empty batch instead of reaching the merge path.
	plugin := &stubPlugin{
		desc: tool.Descriptor{
			Name: "pdf-merger", Category: "pdf",
			Handoff: true, RemoteAction: "merge",
			SupportsBulk: true, BulkMerge: true,
		},
	}
	d, repo, _, _ := newHarness(t, plugin)

	_, _, err := d.DispatchBulk(context.Background(), "pdf-merger", nil)
	if err == nil {
		t.Fatal("expected rejection for empty batch")
	}
	if !platformerrors.IsType(err, platformerrors.ErrorTypeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.count() != 0 {
		t.Error("empty batch must leave no records")
	}
}

func TestDispatchSyncSkipsUploadBytesMetric(t *testing.T) {
	plugin := &stubPlugin{
		desc:   tool.Descriptor{Name: "gpx-analyzer", Category: "geo"},
		output: &tool.Output{JSON: map[string]any{"points": 3}},
	}
	d, _, _, _ := newHarness(t, plugin)

	if _, err := d.Dispatch(context.Background(), "gpx-analyzer", tool.Input{Filename: "ride.gpx", Data: []byte("<gpx/>")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Inline conversions never stage anything in blob storage, so the upload
	// counter must not grow a series for them.
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "toolhub_conversion_api_upload_bytes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "tool" && label.GetValue() == "gpx-analyzer" {
					t.Error("inline dispatch must not count toward upload bytes")
				}
			}
		}
	}
}
