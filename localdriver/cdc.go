package localdriver

import (
	"context"
	"sort"
	"strconv"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/basis-company/sharding/errors"
	"github.com/basis-company/sharding/kvstore"
	"github.com/basis-company/sharding/metrics"
	"github.com/basis-company/sharding/proto"
)

// subscriptionCF and changeCF are lazily created on the first call to
// RegisterChanges, so a storage that never hosts a listener never pays
// for them (spec.md §4.6).
var (
	subscriptionCF = kvstore.CF(proto.SubscriptionTableName)
	changeCF       = kvstore.CF(proto.ChangeTableName)
)

func (d *Driver) cdcReady() bool {
	return d.store.HasColumn(subscriptionCF)
}

// RegisterChanges implements spec.md §4.6's subscribe: idempotent on
// (table, listener).
func (d *Driver) RegisterChanges(ctx context.Context, table, listener string) error {
	d.cdcMu.Lock()
	if !d.store.HasColumn(subscriptionCF) {
		if err := d.store.CreateColumn(subscriptionCF); err != nil {
			d.cdcMu.Unlock()
			return errors.BackendError("registerChanges.subscriptionCF", err)
		}
	}
	if !d.store.HasColumn(changeCF) {
		if err := d.store.CreateColumn(changeCF); err != nil {
			d.cdcMu.Unlock()
			return errors.BackendError("registerChanges.changeCF", err)
		}
	}
	d.cdcMu.Unlock()

	key := subscriptionKey(table, listener)
	raw, err := encodeRow(map[string]any{"table": table, "listener": listener})
	if err != nil {
		return err
	}
	if err := d.store.Set(ctx, subscriptionCF, key, raw); err != nil {
		return errors.BackendError("registerChanges.set", err)
	}

	span := trace.SpanFromContextSafe(ctx)
	span.Infof("localdriver: registered listener=%s table=%s", listener, table)
	return nil
}

func subscriptionKey(table, listener string) []byte {
	return []byte(listener + "\x00" + table)
}

// listeners returns every listener subscribed to table, either
// directly or via the "*" wildcard.
func (d *Driver) listeners(ctx context.Context, table string) ([]string, error) {
	if !d.cdcReady() {
		return nil, nil
	}
	reader := d.store.List(ctx, subscriptionCF, nil)
	defer reader.Close()

	var out []string
	for {
		_, value, ok := reader.ReadNext()
		if !ok {
			break
		}
		row, err := decodeRow(value)
		if err != nil {
			return nil, err
		}
		subTable, _ := row["table"].(string)
		if subTable == table || subTable == proto.AllTables {
			if listener, ok := row["listener"].(string); ok {
				out = append(out, listener)
			}
		}
	}
	return out, nil
}

// commit implements spec.md §4.6: a mutation with no interested
// listeners takes the fast path (direct Set/Delete); one with at least
// one listener commits the row mutation and every listener's Change
// row together in a single backend transaction.
func (d *Driver) commit(ctx context.Context, table string, id uint64, before, after map[string]any) error {
	key := []byte(strconv.FormatUint(id, 10))

	listeners, err := d.listeners(ctx, table)
	if err != nil {
		return err
	}

	if len(listeners) == 0 {
		if after == nil {
			return errors.BackendError("commit.delete", d.store.Delete(ctx, tableCF(table), key))
		}
		raw, err := encodeRow(after)
		if err != nil {
			return err
		}
		return errors.BackendError("commit.set", d.store.Set(ctx, tableCF(table), key, raw))
	}

	action, tuple := classify(before, after)

	batch := d.store.NewWriteBatch()
	if after == nil {
		batch.Delete(tableCF(table), key)
	} else {
		raw, err := encodeRow(after)
		if err != nil {
			return err
		}
		batch.Put(tableCF(table), key, raw)
	}

	callCtx := d.currentContext()
	for _, listener := range listeners {
		seq, err := d.ids.Next(ctx, "sharding_change_seq")
		if err != nil {
			return errors.BackendError("commit.seq", err)
		}
		change := proto.Change{
			Seq:      seq,
			Listener: listener,
			Table:    table,
			Action:   action,
			Tuple:    tuple,
			Context:  callCtx,
		}
		raw, err := encodeRow(map[string]any{
			"seq":      change.Seq,
			"listener": change.Listener,
			"table":    change.Table,
			"action":   string(change.Action),
			"tuple":    change.Tuple,
			"context":  change.Context,
		})
		if err != nil {
			return err
		}
		batch.Put(changeCF, changeKey(seq), raw)
		metrics.ChangesEmitted.WithLabelValues(table, listener, string(action)).Inc()
	}

	return errors.BackendError("commit.write", d.store.Write(ctx, batch))
}

func classify(before, after map[string]any) (proto.ChangeAction, map[string]any) {
	switch {
	case before == nil:
		return proto.ActionCreate, after
	case after == nil:
		return proto.ActionDelete, before
	default:
		return proto.ActionUpdate, after
	}
}

func changeKey(seq uint64) []byte {
	return []byte(strconv.FormatUint(seq, 10))
}

// GetChanges implements spec.md §4.6's drain: every undrained Change
// row for listener, oldest first, capped at limit (0 means no cap).
func (d *Driver) GetChanges(ctx context.Context, listener string, limit int) ([]proto.Change, error) {
	if !d.store.HasColumn(changeCF) {
		return nil, nil
	}
	reader := d.store.List(ctx, changeCF, nil)
	defer reader.Close()

	var out []proto.Change
	for {
		_, value, ok := reader.ReadNext()
		if !ok {
			break
		}
		row, err := decodeRow(value)
		if err != nil {
			return nil, err
		}
		if row["listener"] != listener {
			continue
		}
		out = append(out, rowToChange(row))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func rowToChange(row map[string]any) proto.Change {
	tuple, _ := row["tuple"].(map[string]any)
	callCtx, _ := row["context"].(map[string]any)
	return proto.Change{
		Seq:      toUint64(row["seq"]),
		Listener: asString(row["listener"]),
		Table:    asString(row["table"]),
		Action:   proto.ChangeAction(asString(row["action"])),
		Tuple:    tuple,
		Context:  callCtx,
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// AckChanges implements spec.md §4.6's ack: removes each given change
// from the pending log so it is not redelivered.
func (d *Driver) AckChanges(ctx context.Context, changes []proto.Change) error {
	if len(changes) == 0 {
		return nil
	}
	batch := d.store.NewWriteBatch()
	for _, c := range changes {
		batch.Delete(changeCF, changeKey(c.Seq))
	}
	return errors.BackendError("ackChanges.write", d.store.Write(ctx, batch))
}
