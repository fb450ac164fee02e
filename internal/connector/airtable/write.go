package airtable

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/igualparatodos/multiwoven/internal/connector/http"
	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/endpoint"
	"github.com/igualparatodos/multiwoven/internal/lookup"
)

// =============================================================================
// WRITE
// Every failure below the control level folds into the tracking report.
// =============================================================================

// item is one outgoing record and its position in the write call.
type item struct {
	Index  int
	Fields map[string]any
}

// match pairs a record with one destination id to update.
type match struct {
	item
	ID string
}

// structuralError aborts a write: the destination rejected the credentials,
// the base or the table.
type structuralError struct {
	err *http.HTTPError
}

func (e *structuralError) Error() string {
	return fmt.Sprintf("airtable rejected the request: %v", e.err)
}

// Write delivers records according to the effective sync mode.
func (a *Airtable) Write(ctx context.Context, req *endpoint.WriteRequest) *core.Message {
	report := core.NewTrackingReport()
	table := a.tableFor(req.Sync)

	items := make([]item, len(req.Records))
	for i, rec := range req.Records {
		items[i] = item{Index: i, Fields: rec}
	}

	var err error
	switch mode := req.Mode(); mode {
	case core.SyncInsert:
		err = a.insert(ctx, table, items, report)
	case core.SyncUpsert:
		err = a.upsert(ctx, req, table, items, report)
	case core.SyncUpdate:
		err = a.update(ctx, req, table, items, report)
	default:
		failAll(items, report, fmt.Sprintf("unsupported sync mode %q", mode))
	}

	var structural *structuralError
	if errors.As(err, &structural) {
		a.logger.Error("airtable write aborted", "table", table, "status", structural.err.StatusCode)
		return core.ControlFailure(structural.Error())
	}
	if err != nil {
		a.logger.Warn("airtable write incomplete", "table", table, "error", err)
	}
	return core.TrackingMessage(report)
}

// -----------------------------------------------------------------------------
// insert
// -----------------------------------------------------------------------------

func (a *Airtable) insert(ctx context.Context, table string, items []item, report *core.TrackingReport) error {
	for _, chunk := range chunks(items, ChunkSize) {
		if _, err := a.create(ctx, table, chunk, report); err != nil {
			return err
		}
	}
	return nil
}

// create POSTs one chunk and returns the new ids in request order. An entry
// is empty when its create failed. Only a structural failure is returned.
func (a *Airtable) create(ctx context.Context, table string, chunk []item, report *core.TrackingReport) ([]string, error) {
	body := createRequest{Records: make([]createRecord, len(chunk)), Typecast: true}
	for i, it := range chunk {
		body.Records[i] = createRecord{Fields: it.Fields}
	}
	requestID := uuid.NewString()

	resp, err := a.Client.Post(ctx, a.tablePath(table), body)
	if err != nil {
		return make([]string, len(chunk)), a.failChunk(chunk, report, requestID, resp, err)
	}

	var created recordsResponse
	if err := resp.JSON(&created); err != nil {
		failChunkLogged(chunk, report, requestID, string(resp.Body), "decode create response: "+err.Error())
		return make([]string, len(chunk)), nil
	}

	ids := make([]string, len(chunk))
	for i, it := range chunk {
		entry := &core.LogEntry{
			Level:       core.LevelInfo,
			Request:     core.Marshal(it.Fields),
			RecordIndex: it.Index,
			RequestID:   requestID,
		}
		if i < len(created.Records) && created.Records[i].ID != "" {
			ids[i] = created.Records[i].ID
			entry.Message = "created"
			entry.Response = core.Marshal(created.Records[i])
			report.Succeed(1, entry)
			continue
		}
		entry.Level = core.LevelError
		entry.Message = "create response has no record"
		entry.Response = string(resp.Body)
		report.Fail(1, entry)
	}
	return ids, nil
}

// -----------------------------------------------------------------------------
// upsert
// -----------------------------------------------------------------------------

func (a *Airtable) upsert(ctx context.Context, req *endpoint.WriteRequest, table string, items []item, report *core.TrackingReport) error {
	uid, err := req.Sync.ReconcileKey(NativeIDField)
	if errors.Is(err, core.ErrUniqueIdentifierMissing) {
		return a.insert(ctx, table, items, report)
	}
	if err != nil {
		failAll(items, report, err.Error())
		return nil
	}

	if uid.DestinationField == NativeIDField {
		return a.upsertByID(ctx, table, items, report)
	}

	cache := a.cacheFor(req)
	key := lookup.Key{Table: table, Field: uid.DestinationField}
	build := func(ctx context.Context) *lookup.Index {
		return a.resolver.BuildFullIndex(ctx, table, uid.DestinationField)
	}

	for _, chunk := range chunks(items, ChunkSize) {
		var updates []match
		err := cache.Do(ctx, key, build, func(idx *lookup.Index) error {
			var creates, deferred []item
			pending := make(map[string]bool)
			for _, it := range chunk {
				value := uniqueValue(it.Fields, uid)
				if ids := idx.IDs(value); len(ids) > 0 {
					updates = append(updates, matchAll(it, ids)...)
					continue
				}
				k, ok := lookup.KeyOf(value)
				if ok && pending[k] {
					deferred = append(deferred, it)
					continue
				}
				if ok {
					pending[k] = true
				}
				creates = append(creates, it)
			}
			if len(creates) == 0 {
				return nil
			}

			ids, err := a.create(ctx, table, creates, report)
			for i, id := range ids {
				if id != "" {
					idx.Add(uniqueValue(creates[i].Fields, uid), id)
				}
			}
			if err != nil {
				return err
			}

			// Records sharing a value with a create in this chunk update it.
			for _, it := range deferred {
				if ids := idx.IDs(uniqueValue(it.Fields, uid)); len(ids) > 0 {
					updates = append(updates, matchAll(it, ids)...)
					continue
				}
				failOne(it, report, "create of the matching record failed")
			}
			return nil
		})
		if err != nil {
			var structural *structuralError
			if errors.As(err, &structural) {
				return err
			}
			failAll(chunk, report, err.Error())
			return err
		}

		if err := a.patch(ctx, table, updates, report); err != nil {
			return err
		}
	}
	return nil
}

// upsertByID updates records that carry a native id and creates the rest.
func (a *Airtable) upsertByID(ctx context.Context, table string, items []item, report *core.TrackingReport) error {
	for _, chunk := range chunks(items, ChunkSize) {
		var creates []item
		var updates []match
		for _, it := range chunk {
			if id, fields, ok := splitNativeID(it.Fields); ok {
				updates = append(updates, match{item: item{Index: it.Index, Fields: fields}, ID: id})
				continue
			}
			creates = append(creates, it)
		}
		if len(creates) > 0 {
			if _, err := a.create(ctx, table, creates, report); err != nil {
				return err
			}
		}
		if err := a.patch(ctx, table, updates, report); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// update
// -----------------------------------------------------------------------------

func (a *Airtable) update(ctx context.Context, req *endpoint.WriteRequest, table string, items []item, report *core.TrackingReport) error {
	uid, err := req.Sync.ReconcileKey(NativeIDField)
	if err != nil {
		failAll(items, report, err.Error())
		return nil
	}

	var updates []match
	if uid.DestinationField == NativeIDField {
		for _, it := range items {
			id, fields, ok := splitNativeID(it.Fields)
			if !ok {
				failOne(it, report, "record has no id")
				continue
			}
			updates = append(updates, match{item: item{Index: it.Index, Fields: fields}, ID: id})
		}
		return a.patch(ctx, table, updates, report)
	}

	cache := a.cacheFor(req)
	key := lookup.Key{Table: table, Field: uid.DestinationField}
	build := func(ctx context.Context) *lookup.Index {
		return a.resolver.BuildFullIndex(ctx, table, uid.DestinationField)
	}
	err = cache.Do(ctx, key, build, func(idx *lookup.Index) error {
		for _, it := range items {
			value := uniqueValue(it.Fields, uid)
			ids := idx.IDs(value)
			if len(ids) == 0 {
				failOne(it, report, fmt.Sprintf("no destination record matches %s=%v", uid.DestinationField, value))
				continue
			}
			updates = append(updates, matchAll(it, ids)...)
		}
		return nil
	})
	if err != nil {
		failAll(items, report, err.Error())
		return err
	}
	return a.patch(ctx, table, updates, report)
}

// -----------------------------------------------------------------------------
// patch
// -----------------------------------------------------------------------------

// patch PATCHes matches in chunks. A record matching several ids counts once:
// it succeeds only if every one of its updates succeeded.
func (a *Airtable) patch(ctx context.Context, table string, updates []match, report *core.TrackingReport) error {
	if len(updates) == 0 {
		return nil
	}

	type outcome struct {
		failed bool
		log    *core.LogEntry
	}
	outcomes := make(map[int]*outcome)
	var order []int
	record := func(index int, entry *core.LogEntry, failed bool) {
		o, ok := outcomes[index]
		if !ok {
			o = &outcome{}
			outcomes[index] = o
			order = append(order, index)
		}
		if failed || !o.failed {
			o.log = entry
		}
		o.failed = o.failed || failed
	}

	var fatal error
	for _, chunk := range chunks(updates, ChunkSize) {
		body := updateRequest{Records: make([]updateRecord, len(chunk)), Typecast: true}
		for i, m := range chunk {
			body.Records[i] = updateRecord{ID: m.ID, Fields: m.Fields}
		}
		requestID := uuid.NewString()

		resp, err := a.Client.Patch(ctx, a.tablePath(table), body)
		for _, m := range chunk {
			entry := &core.LogEntry{
				Level:       core.LevelInfo,
				Message:     "updated " + m.ID,
				Request:     core.Marshal(updateRecord{ID: m.ID, Fields: m.Fields}),
				RecordIndex: m.Index,
				RequestID:   requestID,
			}
			if resp != nil {
				entry.Response = string(resp.Body)
			}
			if err != nil {
				entry.Level = core.LevelError
				entry.Message = err.Error()
			}
			record(m.Index, entry, err != nil)
		}
		if httpErr, ok := http.AsHTTPError(err); ok && httpErr.IsStructural() {
			fatal = &structuralError{err: httpErr}
			break
		}
	}

	for _, index := range order {
		o := outcomes[index]
		if o.failed {
			report.Fail(1, o.log)
		} else {
			report.Succeed(1, o.log)
		}
	}
	return fatal
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

// cacheFor returns the run cache, or a cache private to this call.
func (a *Airtable) cacheFor(req *endpoint.WriteRequest) *lookup.Cache {
	if req.Cache != nil {
		return req.Cache
	}
	runID := ""
	if req.Run != nil {
		runID = req.Run.ID
	}
	return lookup.NewCache(runID)
}

// failChunk records a failed request for every record in the chunk and
// returns a structural error when the status calls for it.
func (a *Airtable) failChunk(chunk []item, report *core.TrackingReport, requestID string, resp *http.Response, err error) error {
	body := ""
	if resp != nil {
		body = string(resp.Body)
	}
	failChunkLogged(chunk, report, requestID, body, err.Error())
	if httpErr, ok := http.AsHTTPError(err); ok && httpErr.IsStructural() {
		return &structuralError{err: httpErr}
	}
	return nil
}

func failChunkLogged(chunk []item, report *core.TrackingReport, requestID, response, message string) {
	for _, it := range chunk {
		report.Fail(1, &core.LogEntry{
			Level:       core.LevelError,
			Message:     message,
			Request:     core.Marshal(it.Fields),
			Response:    response,
			RecordIndex: it.Index,
			RequestID:   requestID,
		})
	}
}

func failOne(it item, report *core.TrackingReport, reason string) {
	report.Fail(1, &core.LogEntry{
		Level:       core.LevelError,
		Message:     reason,
		Request:     core.Marshal(it.Fields),
		RecordIndex: it.Index,
	})
}

func failAll(items []item, report *core.TrackingReport, reason string) {
	for _, it := range items {
		failOne(it, report, reason)
	}
}

func matchAll(it item, ids []string) []match {
	out := make([]match, len(ids))
	for i, id := range ids {
		out[i] = match{item: it, ID: id}
	}
	return out
}

// uniqueValue reads the reconcile value from a destination-shaped record,
// falling back to the source field name.
func uniqueValue(fields map[string]any, uid *core.UniqueIdentifierConfig) any {
	if v, ok := fields[uid.DestinationField]; ok {
		return v
	}
	return fields[uid.SourceField]
}

// splitNativeID separates the record id from the writable fields.
func splitNativeID(fields map[string]any) (string, map[string]any, bool) {
	id, _ := fields[NativeIDField].(string)
	if id == "" {
		return "", fields, false
	}
	rest := make(map[string]any, len(fields)-1)
	for k, v := range fields {
		if k != NativeIDField {
			rest[k] = v
		}
	}
	return id, rest, true
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
