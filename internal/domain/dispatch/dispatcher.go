// Package dispatch routes a validated conversion request either through the
// in-process plugin or through the remote compute tier, depending on the
// tool's registered capabilities.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/domain/tool"
	"toolhub/services/conversion-api/internal/infrastructure/metrics"
	"toolhub/services/conversion-api/utils/execid"
	"toolhub/services/conversion-api/utils/platformerrors"
)

// BlobStore is the storage contract the dispatcher needs. Both the S3 and
// the local filesystem backends satisfy it.
type BlobStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// TriggerJob is one request to start remote work on an execution.
type TriggerJob struct {
	ExecutionID string
	Category    string
	Action      string
	BlobPath    string
	BlobPaths   []string
	Parameters  map[string]string
}

// Trigger starts remote work. Implementations own retry and backoff; the
// dispatcher only reacts to the final outcome.
type Trigger interface {
	TriggerConversion(ctx context.Context, job TriggerJob) error
}

// Outcome is the polymorphic result of a dispatch: exactly one of the two
// fields is set.
type Outcome struct {
	// Async is set when the tool handed the work to the compute tier.
	Async *AsyncHandle
	// Output is set when the tool ran to completion in-process.
	Output *tool.Output
}

// AsyncHandle is what the caller gets back for a handed-off execution: the
// id to poll and the status it was accepted in.
type AsyncHandle struct {
	ExecutionID string
	Status      execution.Status
}

// BulkItemResult is the per-file outcome of a bulk dispatch. Err is set for
// files that were rejected or failed; the rest of the batch proceeds.
type BulkItemResult struct {
	Filename string
	Outcome  *Outcome
	Err      error
}

// Dispatcher is the single entry point for conversion requests.
type Dispatcher struct {
	registry   *tool.Registry
	executions *execution.Service
	blobs      BlobStore
	trigger    Trigger
	log        zerolog.Logger

	wg sync.WaitGroup
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(registry *tool.Registry, executions *execution.Service, blobs BlobStore, trigger Trigger, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		executions: executions,
		blobs:      blobs,
		trigger:    trigger,
		log:        log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs one conversion request end to end. Validation happens before
// any side effect; a rejected input leaves no record and no blob behind.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, in tool.Input) (*Outcome, error) {
	plugin, ok := d.registry.Lookup(toolName)
	if !ok {
		return nil, d.toolNotFound(ctx, toolName)
	}
	desc := plugin.Metadata()

	if err := plugin.Validate(ctx, in); err != nil {
		return nil, d.rejected(ctx, desc.Name, err)
	}

	if !desc.Handoff {
		return d.runLocal(ctx, plugin, desc, in)
	}
	return d.handOff(ctx, desc, in)
}

// DispatchBulk runs a multi-file submission under a fresh batch id. For
// merge-style tools the whole batch becomes one execution; otherwise each
// file is dispatched on its own and one bad file never sinks the rest.
func (d *Dispatcher) DispatchBulk(ctx context.Context, toolName string, inputs []tool.Input) (string, []BulkItemResult, error) {
	plugin, ok := d.registry.Lookup(toolName)
	if !ok {
		return "", nil, d.toolNotFound(ctx, toolName)
	}
	desc := plugin.Metadata()

	if len(inputs) == 0 {
		return "", nil, d.rejected(ctx, desc.Name, tool.Rejectf("at least one file is required"))
	}
	if err := tool.ValidateBatchSize(desc, len(inputs)); err != nil {
		return "", nil, d.rejected(ctx, desc.Name, err)
	}
	if bp, ok := plugin.(tool.BulkPlugin); ok {
		if err := bp.ValidateBatch(ctx, inputs); err != nil {
			return "", nil, d.rejected(ctx, desc.Name, err)
		}
	}

	batchID := execid.NewBatch()
	d.log.Info().
		Str("batch_id", batchID).
		Str("tool", desc.Name).
		Int("files", len(inputs)).
		Msg("bulk dispatch accepted")

	if desc.BulkMerge {
		outcome, err := d.handOffMerged(ctx, plugin, desc, inputs)
		if err != nil {
			return "", nil, err
		}
		return batchID, []BulkItemResult{{Filename: inputs[0].Filename, Outcome: outcome}}, nil
	}

	results := make([]BulkItemResult, 0, len(inputs))
	for _, in := range inputs {
		item := BulkItemResult{Filename: in.Filename}
		if err := plugin.Validate(ctx, in); err != nil {
			item.Err = d.rejected(ctx, desc.Name, err)
			results = append(results, item)
			continue
		}

		var outcome *Outcome
		var err error
		if desc.Handoff {
			outcome, err = d.handOff(ctx, desc, in)
		} else {
			outcome, err = d.runLocal(ctx, plugin, desc, in)
		}
		item.Outcome, item.Err = outcome, err
		results = append(results, item)
	}
	return batchID, results, nil
}

// DownloadOutput streams a completed execution's artifact from blob storage.
func (d *Dispatcher) DownloadOutput(ctx context.Context, id string) (io.ReadCloser, string, error) {
	exec, err := d.executions.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if exec.Status != execution.StatusCompleted || exec.OutputRef == "" {
		return nil, "", platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"execution has no downloadable output",
			nil,
			"9c4e6a2b-8d1f-4c7e-a3b5-6f8d0c2e4a91",
		)
	}
	return d.blobs.Download(ctx, exec.OutputRef)
}

// Drain waits for in-flight trigger goroutines during shutdown, up to the
// given timeout.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.log.Warn().Dur("timeout", timeout).Msg("drain timed out with triggers still in flight")
		return false
	}
}

func (d *Dispatcher) runLocal(ctx context.Context, plugin tool.Plugin, desc tool.Descriptor, in tool.Input) (*Outcome, error) {
	start := time.Now()
	out, err := plugin.Process(ctx, in)
	plugin.Cleanup()
	metrics.ObserveDispatchDuration(desc.Name, "sync", time.Since(start).Seconds())

	if err != nil {
		metrics.RecordDispatch(desc.Name, "sync", "error")
		if tool.IsValidationError(err) {
			return nil, d.rejected(ctx, desc.Name, err)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeProcessing,
			"conversion failed",
			err,
			"1a3c5e7f-9b2d-4f6a-8c1e-3b5d7f9a1c24",
		)
	}

	metrics.RecordDispatch(desc.Name, "sync", "success")
	return &Outcome{Output: out}, nil
}

func (d *Dispatcher) handOff(ctx context.Context, desc tool.Descriptor, in tool.Input) (*Outcome, error) {
	id := execid.New()
	key := UploadKey(desc.Category, id, in.Filename)

	if err := d.blobs.Upload(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), ""); err != nil {
		metrics.RecordDispatch(desc.Name, "async", "upload_error")
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeUpload,
			"failed to stage input for conversion",
			err,
			"7e9a1c3d-5f2b-4e8a-9c6d-1b3f5a7c9e12",
		)
	}

	exec, err := d.executions.Create(ctx, execution.CreateParams{
		ID:         id,
		ToolName:   desc.Name,
		Category:   desc.Category,
		InputRef:   key,
		Parameters: in.Params,
	})
	if err != nil {
		// Best-effort compensation; an orphaned blob is cheaper than an
		// orphaned record.
		if delErr := d.blobs.Delete(ctx, key); delErr != nil {
			d.log.Warn().Err(delErr).Str("key", key).Msg("failed to remove staged blob after record failure")
		}
		return nil, err
	}

	metrics.RecordDispatch(desc.Name, "async", "accepted")
	metrics.RecordUploadBytes(desc.Name, int64(len(in.Data)))

	d.startTrigger(TriggerJob{
		ExecutionID: id,
		Category:    desc.Category,
		Action:      desc.RemoteAction,
		BlobPath:    key,
		Parameters:  in.Params,
	})

	return &Outcome{Async: &AsyncHandle{ExecutionID: exec.ID, Status: exec.Status}}, nil
}

func (d *Dispatcher) handOffMerged(ctx context.Context, plugin tool.Plugin, desc tool.Descriptor, inputs []tool.Input) (*Outcome, error) {
	for _, in := range inputs {
		if err := plugin.Validate(ctx, in); err != nil {
			// A merge is all-or-nothing: one bad input rejects the batch.
			return nil, d.rejected(ctx, desc.Name, err)
		}
	}

	id := execid.New()
	keys := make([]string, 0, len(inputs))
	var totalBytes int64
	for n, in := range inputs {
		key := UploadKeyIndexed(desc.Category, id, n, in.Filename)
		if err := d.blobs.Upload(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), ""); err != nil {
			for _, staged := range keys {
				if delErr := d.blobs.Delete(ctx, staged); delErr != nil {
					d.log.Warn().Err(delErr).Str("key", staged).Msg("failed to remove staged blob after upload failure")
				}
			}
			metrics.RecordDispatch(desc.Name, "async", "upload_error")
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerDomain,
				platformerrors.ErrorTypeUpload,
				"failed to stage input for conversion",
				err,
				"5b7d9f1a-3c2e-4a6c-8e1f-7d9b1f3a5c68",
			)
		}
		keys = append(keys, key)
		totalBytes += int64(len(in.Data))
	}

	exec, err := d.executions.Create(ctx, execution.CreateParams{
		ID:         id,
		ToolName:   desc.Name,
		Category:   desc.Category,
		InputRef:   UploadPrefix(desc.Category, id),
		Parameters: inputs[0].Params,
	})
	if err != nil {
		for _, staged := range keys {
			if delErr := d.blobs.Delete(ctx, staged); delErr != nil {
				d.log.Warn().Err(delErr).Str("key", staged).Msg("failed to remove staged blob after record failure")
			}
		}
		return nil, err
	}

	metrics.RecordDispatch(desc.Name, "async", "accepted")
	metrics.RecordUploadBytes(desc.Name, totalBytes)

	d.startTrigger(TriggerJob{
		ExecutionID: id,
		Category:    desc.Category,
		Action:      desc.RemoteAction,
		BlobPaths:   keys,
		Parameters:  inputs[0].Params,
	})

	return &Outcome{Async: &AsyncHandle{ExecutionID: exec.ID, Status: exec.Status}}, nil
}

// startTrigger fires the remote trigger on a supervised goroutine detached
// from the request context: the client already holds an execution id, so the
// trigger must not die with the request. A trigger that exhausts its retries
// leaves the record pending for the reconciliation sweep to observe; it is
// never force-failed from here.
func (d *Dispatcher) startTrigger(job TriggerJob) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().
					Interface("panic", r).
					Str("execution_id", job.ExecutionID).
					Msg("trigger goroutine panicked")
			}
		}()

		ctx := context.Background()
		if err := d.trigger.TriggerConversion(ctx, job); err != nil {
			d.log.Error().
				Err(err).
				Str("execution_id", job.ExecutionID).
				Str("tool_category", job.Category).
				Msg("remote trigger failed, execution left pending")
			return
		}

		if err := d.executions.MarkProcessing(ctx, job.ExecutionID); err != nil {
			d.log.Error().
				Err(err).
				Str("execution_id", job.ExecutionID).
				Msg("failed to mark execution processing after trigger ack")
		}
	}()
}

func (d *Dispatcher) toolNotFound(ctx context.Context, name string) error {
	return platformerrors.NewError(
		ctx,
		platformerrors.LayerDomain,
		platformerrors.ErrorTypeNotFound,
		"unknown tool: "+name,
		nil,
		"2d4f6a8c-1e3b-4d5f-7a9c-0b2e4d6f8a35",
	)
}

func (d *Dispatcher) rejected(ctx context.Context, toolName string, err error) error {
	metrics.RecordDispatch(toolName, "validate", "rejected")
	return platformerrors.NewError(
		ctx,
		platformerrors.LayerDomain,
		platformerrors.ErrorTypeValidation,
		err.Error(),
		nil,
		"8f1a3c5e-7b9d-4f2a-6c8e-5d7f9b1d3f57",
	)
}
