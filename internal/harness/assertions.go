package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/pos/internal/attr"
	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/stream"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Key      string // Order involved, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Key != "" {
		fmt.Fprintf(&buf, " [%s]", e.Key)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// MasterReader is the read side of a master table.
// Implemented by *store.Master, *pgstore.Master and testutil.MemoryMaster.
type MasterReader interface {
	Get(ctx context.Context, key string) (order.Record, error)
	Snapshot(ctx context.Context) ([]store.MasterRow, error)
}

// AssertionContext provides the tables assertions read.
type AssertionContext struct {
	Ctx    context.Context
	Master MasterReader
	Stores map[string]*store.Store

	// Store is the store assertions address when they name none.
	Store string
}

func (a *AssertionContext) store(id string) (*store.Store, error) {
	if id == "" {
		id = a.Store
	}
	st, ok := a.Stores[id]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", id)
	}
	return st, nil
}

// EvaluateAssertions evaluates all assertions.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertMasterContains:
			err = assertMasterContains(actx, a)
		case AssertMasterAbsent:
			err = assertMasterAbsent(actx, a)
		case AssertMasterSequence:
			err = assertMasterSequence(actx, a)
		case AssertMasterCount:
			err = assertMasterCount(actx, a)
		case AssertStoreContains:
			err = assertStoreContains(actx, a)
		case AssertStoreAbsent:
			err = assertStoreAbsent(actx, a)
		case AssertFeedCount:
			err = assertFeedCount(actx, a)
		case AssertConverged:
			err = assertConverged(actx)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

func assertMasterContains(actx *AssertionContext, a Assertion) error {
	rec, err := actx.Master.Get(actx.Ctx, a.Key)
	if order.IsNotFound(err) {
		return &AssertionError{
			Type:     a.Type,
			Key:      a.Key,
			Expected: "live master row",
			Actual:   "row not found",
		}
	}
	if err != nil {
		return fmt.Errorf("%s [%s]: %w", a.Type, a.Key, err)
	}
	return matchFields(a.Type, a.Key, rec, a.Expect)
}

func assertMasterAbsent(actx *AssertionContext, a Assertion) error {
	rec, err := actx.Master.Get(actx.Ctx, a.Key)
	if order.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s [%s]: %w", a.Type, a.Key, err)
	}
	return &AssertionError{
		Type:     a.Type,
		Key:      a.Key,
		Expected: "no live master row",
		Actual:   "row present: " + canonicalString(rec),
	}
}

func assertMasterSequence(actx *AssertionContext, a Assertion) error {
	rows, err := actx.Master.Snapshot(actx.Ctx)
	if err != nil {
		return fmt.Errorf("%s [%s]: %w", a.Type, a.Key, err)
	}
	for _, row := range rows {
		if row.Key != a.Key {
			continue
		}
		want := stream.TrimSequence(a.Sequence)
		if row.Sequence != want {
			return &AssertionError{
				Type:     a.Type,
				Key:      a.Key,
				Expected: "sequence " + want,
				Actual:   "sequence " + row.Sequence,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Key:      a.Key,
		Expected: "master row (live or tombstone)",
		Actual:   "row not found",
	}
}

func assertMasterCount(actx *AssertionContext, a Assertion) error {
	rows, err := actx.Master.Snapshot(actx.Ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	var live []string
	for _, row := range rows {
		if !row.Deleted {
			live = append(live, row.Key)
		}
	}
	if len(live) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d live master rows", a.Count),
			Actual:   fmt.Sprintf("%d live master rows %v", len(live), live),
		}
	}
	return nil
}

func assertStoreContains(actx *AssertionContext, a Assertion) error {
	st, err := actx.store(a.Store)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	rec, err := st.GetOrder(actx.Ctx, a.Key)
	if order.IsNotFound(err) {
		return &AssertionError{
			Type:     a.Type,
			Key:      a.Key,
			Expected: "order in store " + actx.storeName(a.Store),
			Actual:   "order not found",
		}
	}
	if err != nil {
		return fmt.Errorf("%s [%s]: %w", a.Type, a.Key, err)
	}
	return matchFields(a.Type, a.Key, rec, a.Expect)
}

func assertStoreAbsent(actx *AssertionContext, a Assertion) error {
	st, err := actx.store(a.Store)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	rec, err := st.GetOrder(actx.Ctx, a.Key)
	if order.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s [%s]: %w", a.Type, a.Key, err)
	}
	return &AssertionError{
		Type:     a.Type,
		Key:      a.Key,
		Expected: "no order in store " + actx.storeName(a.Store),
		Actual:   "order present: " + canonicalString(rec),
	}
}

func assertFeedCount(actx *AssertionContext, a Assertion) error {
	st, err := actx.store(a.Store)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	head, err := st.LastFeedSeq(actx.Ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	if head != int64(a.Count) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d feed records in store %s", a.Count, actx.storeName(a.Store)),
			Actual:   fmt.Sprintf("%d feed records", head),
		}
	}
	return nil
}

// assertConverged checks that the live master rows are exactly the orders
// held by the stores, each master record equal to one store's version.
func assertConverged(actx *AssertionContext) error {
	want := make(map[string][]string)
	for _, st := range actx.Stores {
		recs, err := st.ListOrders(actx.Ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", AssertConverged, err)
		}
		for _, rec := range recs {
			want[rec.ID()] = append(want[rec.ID()], canonicalString(rec))
		}
	}

	rows, err := actx.Master.Snapshot(actx.Ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", AssertConverged, err)
	}

	var problems []string
	live := make(map[string]bool)
	for _, row := range rows {
		if row.Deleted {
			continue
		}
		live[row.Key] = true
		candidates, ok := want[row.Key]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: in master but in no store", row.Key))
			continue
		}
		if got := canonicalString(row.Record); !slices.Contains(candidates, got) {
			problems = append(problems, fmt.Sprintf("%s: master has %s, stores have %v", row.Key, got, candidates))
		}
	}
	for key := range want {
		if !live[key] {
			problems = append(problems, fmt.Sprintf("%s: in a store but not in master", key))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &AssertionError{
			Type:     AssertConverged,
			Expected: "master live rows equal store contents",
			Actual:   strings.Join(problems, "; "),
		}
	}
	return nil
}

func (a *AssertionContext) storeName(id string) string {
	if id == "" {
		return a.Store
	}
	return id
}

// matchFields checks that rec holds every expected field (subset match).
// Values are compared by canonical JSON, so 9.99 in YAML matches the
// stored number 9.99 and nested objects compare regardless of key order.
func matchFields(typ, key string, rec order.Record, expect map[string]any) error {
	fields := make([]string, 0, len(expect))
	for f := range expect {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		actual, ok := rec[f]
		if !ok {
			return &AssertionError{
				Type:     typ,
				Key:      key,
				Expected: fmt.Sprintf("field %q to exist", f),
				Actual:   "record: " + canonicalString(rec),
			}
		}
		want, err := canonicalYAML(expect[f])
		if err != nil {
			return fmt.Errorf("%s [%s]: expected field %q: %w", typ, key, f, err)
		}
		got := canonicalString(actual)
		if want != got {
			return &AssertionError{
				Type:     typ,
				Key:      key,
				Expected: fmt.Sprintf("field %q = %s", f, want),
				Actual:   fmt.Sprintf("field %q = %s", f, got),
			}
		}
	}
	return nil
}

// canonicalYAML renders a YAML-decoded value as canonical JSON.
func canonicalYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	doc, err := attr.DecodeJSON(data)
	if err != nil {
		return "", err
	}
	out, err := attr.MarshalCanonical(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func canonicalString(v any) string {
	if rec, ok := v.(order.Record); ok {
		v = map[string]any(rec)
	}
	out, err := attr.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
