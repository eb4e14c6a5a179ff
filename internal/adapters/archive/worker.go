// Package archive materialises assembly manifests as immutable artifacts in
// an object store. Exports run asynchronously on a single worker goroutine so
// callers never block on blob I/O.
package archive

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bomcore/internal/blob"
	"bomcore/internal/engine"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format names a manifest rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var contentTypes = map[Format]string{
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
}

// Artifact captures one stored manifest rendering.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string     `json:"id"`
	AssemblyID  string     `json:"assembly_id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input represents an enqueue request.
type Input struct {
	AssemblyID  string
	Formats     []Format
	RequestedBy string
}

// Source resolves an assembly to its archival manifest. *engine.Service
// satisfies it.
type Source interface {
	Manifest(ctx context.Context, assemblyID string) (engine.AssemblyManifest, error)
}

// Worker executes manifest exports asynchronously.
type Worker struct {
	source Source
	store  blob.Store
	audit  engine.AuditRecorder

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker. audit may be nil.
func NewWorker(source Source, store blob.Store, audit engine.AuditRecorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the in-flight export to
// finish, or until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("manifest source not configured")
	}
	if input.AssemblyID == "" {
		return Record{}, fmt.Errorf("assembly id required")
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if _, ok := contentTypes[format]; !ok {
			return Record{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		AssemblyID:  input.AssemblyID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	w.record(ctx, "archive_export_queued", input.AssemblyID, nil)

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		return Record{}, fmt.Errorf("export queue full")
	}

	return snapshot, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.mu.RLock()
	record, ok := w.jobs[t.id]
	var formats []Format
	if ok {
		formats = append([]Format(nil), record.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.setStatus(t.id, StatusRunning, "")

	manifest, err := w.source.Manifest(w.ctx, t.input.AssemblyID)
	if err != nil {
		w.fail(t.id, t.input.AssemblyID, fmt.Errorf("build manifest: %w", err))
		return
	}

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		payload, err := render(format, manifest)
		if err != nil {
			w.fail(t.id, t.input.AssemblyID, err)
			return
		}
		key := fmt.Sprintf("manifests/%s/%s.%s", manifest.AssemblyID, t.id, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentTypes[format],
			Metadata: map[string]string{
				"assembly_id": manifest.AssemblyID,
				"slug":        manifest.Slug,
				"export_id":   t.id,
			},
		})
		if err != nil {
			w.fail(t.id, t.input.AssemblyID, fmt.Errorf("store artifact %s: %w", key, err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentTypes[format],
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			URL:         info.URL,
			CreatedAt:   info.LastModified,
		})
	}

	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[t.id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, "archive_export", t.input.AssemblyID, nil)
}

func (w *Worker) setStatus(id string, status Status, message string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = time.Now().UTC()
	}
	w.mu.Unlock()
}

func (w *Worker) fail(id, assemblyID string, err error) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = err.Error()
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, "archive_export", assemblyID, err)
}

func (w *Worker) record(ctx context.Context, operation, assemblyID string, err error) {
	if w.audit == nil {
		return
	}
	entry := engine.AuditEntry{
		Operation: operation,
		Status:    engine.AuditStatusSuccess,
		EntityID:  assemblyID,
		At:        time.Now().UTC(),
	}
	if err != nil {
		entry.Status = engine.AuditStatusError
		entry.Error = err.Error()
	}
	w.audit.Record(ctx, entry)
}

func render(format Format, manifest engine.AssemblyManifest) ([]byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(manifest)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return payload, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		header := []string{"leaf_id", "name", "sku", "quantity", "unit_cost", "extended_cost"}
		if err := writer.Write(header); err != nil {
			return nil, err
		}
		for _, line := range manifest.Lines {
			row := []string{
				line.LeafID,
				line.Name,
				line.SKU,
				fmt.Sprintf("%d", line.Quantity),
				line.UnitCost.String(),
				line.ExtendedCost.String(),
			}
			if err := writer.Write(row); err != nil {
				return nil, err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
