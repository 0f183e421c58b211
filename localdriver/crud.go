package localdriver

import (
	"context"
	"strconv"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/kvstore"
)

func (d *Driver) loadRow(ctx context.Context, table, id string) (map[string]any, bool, error) {
	raw, err := d.store.Get(ctx, tableCF(table), []byte(id))
	if err == kvstore.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	row, err := decodeRow(raw)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Create implements spec.md §4.2's create: allocate an id, persist the
// row, and emit an insert change to every subscriber of table. A
// caller-supplied "id" field in data is honored as-is (bootstrap-resident
// tables such as Storage are keyed by an externally assigned id); when
// absent, an id is allocated from the table's counter.
func (d *Driver) Create(ctx context.Context, table string, data map[string]any) (map[string]any, error) {
	span := trace.SpanFromContextSafe(ctx)

	id := toUint64(data["id"])
	if id == 0 {
		allocated, err := d.ids.Next(ctx, table)
		if err != nil {
			recordOp(table, "create", "error")
			return nil, errors.BackendError("create.alloc", err)
		}
		id = allocated
	}

	row := cloneRow(data)
	row["id"] = id

	if err := d.commit(ctx, table, id, nil, row); err != nil {
		recordOp(table, "create", "error")
		return nil, err
	}

	span.Debugf("localdriver: created table=%s id=%d", table, id)
	recordOp(table, "create", "ok")
	d.usage.Add(1)
	return row, nil
}

// Update implements spec.md §4.2's update: merge fields into the
// existing row and emit an update change. Returns nil with no error if
// the row is absent.
func (d *Driver) Update(ctx context.Context, table string, id any, data map[string]any) (map[string]any, error) {
	idn := toUint64(id)
	key := strconv.FormatUint(idn, 10)
	before, ok, err := d.loadRow(ctx, table, key)
	if err != nil {
		recordOp(table, "update", "error")
		return nil, err
	}
	if !ok {
		recordOp(table, "update", "miss")
		return nil, nil
	}

	after := cloneRow(before)
	for k, v := range data {
		after[k] = v
	}
	after["id"] = idn

	if err := d.commit(ctx, table, idn, before, after); err != nil {
		recordOp(table, "update", "error")
		return nil, err
	}
	recordOp(table, "update", "ok")
	return after, nil
}

// Delete implements spec.md §4.2's delete: remove the row and emit a
// delete change carrying its pre-image. Returns the deleted row, or
// nil with no error if it was already absent.
func (d *Driver) Delete(ctx context.Context, table string, id any) (map[string]any, error) {
	idn := toUint64(id)
	key := strconv.FormatUint(idn, 10)
	before, ok, err := d.loadRow(ctx, table, key)
	if err != nil {
		recordOp(table, "delete", "error")
		return nil, err
	}
	if !ok {
		recordOp(table, "delete", "miss")
		return nil, nil
	}

	if err := d.commit(ctx, table, idn, before, nil); err != nil {
		recordOp(table, "delete", "error")
		return nil, err
	}
	recordOp(table, "delete", "ok")
	d.usage.Add(-1)
	return before, nil
}

// Find implements spec.md §4.2's find: every row in table whose fields
// are a superset-match of query (equality on every query key).
func (d *Driver) Find(ctx context.Context, table string, query map[string]any) ([]map[string]any, error) {
	if !d.store.HasColumn(tableCF(table)) {
		return nil, nil
	}
	reader := d.store.List(ctx, tableCF(table), nil)
	defer reader.Close()

	var out []map[string]any
	for {
		_, value, ok := reader.ReadNext()
		if !ok {
			break
		}
		row, err := decodeRow(value)
		if err != nil {
			return nil, err
		}
		if matches(row, query) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (d *Driver) FindOne(ctx context.Context, table string, query map[string]any) (map[string]any, error) {
	rows, err := d.Find(ctx, table, query)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (d *Driver) FindOrFail(ctx context.Context, table string, query map[string]any) (map[string]any, error) {
	row, err := d.FindOne(ctx, table, query)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.ErrNotFound
	}
	return row, nil
}

// FindOrCreate implements spec.md §4.2's findOrCreate: a hit is a pure
// read and never emits; only the create branch commits and emits.
func (d *Driver) FindOrCreate(ctx context.Context, table string, query, data map[string]any) (map[string]any, error) {
	// cdcMu also serializes find-or-create on this driver, so two callers
	// racing on the same query cannot both take the create branch.
	d.cdcMu.Lock()
	defer d.cdcMu.Unlock()

	row, err := d.FindOne(ctx, table, query)
	if err != nil {
		return nil, err
	}
	if row != nil {
		recordOp(table, "findOrCreate", "hit")
		return row, nil
	}
	merged := cloneRow(query)
	for k, v := range data {
		merged[k] = v
	}
	recordOp(table, "findOrCreate", "miss")
	return d.Create(ctx, table, merged)
}

func matches(row, query map[string]any) bool {
	for k, want := range query {
		if got, ok := row[k]; !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if au, ok := toUint64Ok(a); ok {
		if bu, ok := toUint64Ok(b); ok {
			return au == bu
		}
	}
	return a == b
}

func toUint64Ok(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case float64:
		return uint64(n), true
	default:
		return 0, false
	}
}

func toUint64(v any) uint64 {
	n, _ := toUint64Ok(v)
	return n
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
