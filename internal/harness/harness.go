package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/pos/internal/attr"
	"github.com/roach88/pos/internal/intake"
	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/replication"
	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/stream"
	"github.com/roach88/pos/internal/testutil"
)

// HarnessEventSource is the eventSource of records built by apply steps.
const HarnessEventSource = "pos:harness"

// node is one store with its intake service.
type node struct {
	id    string
	store *store.Store
	svc   *intake.Service
}

// Harness executes one scenario against in-memory SQLite stores and a
// shared in-memory master.
type Harness struct {
	scenario  *Scenario
	nodes     map[string]*node
	masterDB  *store.Store
	master    *store.Master
	processor *replication.Processor
	clock     *testutil.StepClock
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run gets fresh databases, a step clock and fixed event ids, so
// identical scenarios produce identical results. A non-nil error means
// the harness itself could not run; expectation and assertion failures
// are reported in Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		trace, failures, err := h.execute(ctx, i, step)
		checkStep(result, i, step, &trace, failures, err)
		result.AddStep(trace)
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Master: h.master,
		Stores: make(map[string]*store.Store, len(h.nodes)),
		Store:  scenario.Stores[0],
	}
	for id, n := range h.nodes {
		actx.Stores[id] = n.store
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	rows, err := h.master.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot master: %w", err)
	}
	result.Master = rows
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	h := &Harness{
		scenario: scenario,
		nodes:    make(map[string]*node, len(scenario.Stores)),
		clock:    testutil.NewStepClock(testutil.Epoch, time.Second),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	masterDB, err := store.Open(":memory:", store.WithClock(h.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create master store: %w", err)
	}
	h.masterDB = masterDB
	h.master = masterDB.Master()
	h.processor = replication.NewProcessor(h.master,
		replication.WithKeyAttribute(scenario.KeyAttribute),
		replication.WithLogger(h.logger),
	)

	for _, id := range scenario.Stores {
		st, err := store.Open(":memory:",
			store.WithClock(h.clock.Now),
			store.WithIDGenerator(store.NewFixedGenerator(id)),
			store.WithSource(scenario.Region, id),
		)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to create store %s: %w", id, err)
		}

		var ms intake.MasterStore
		if scenario.DualWrite {
			ms = h.master
		}
		h.nodes[id] = &node{
			id:    id,
			store: st,
			svc: intake.NewService(st, ms,
				intake.WithSource(st.SourceARN()),
				intake.WithLogger(h.logger),
			),
		}
	}
	return h, nil
}

func (h *Harness) close() {
	for _, n := range h.nodes {
		n.store.Close()
	}
	if h.masterDB != nil {
		h.masterDB.Close()
	}
}

func (h *Harness) node(id string) *node {
	if id == "" {
		id = h.scenario.Stores[0]
	}
	return h.nodes[id]
}

// execute runs one step. failures is the number of records an apply or
// replicate step reported as failed.
func (h *Harness) execute(ctx context.Context, index int, step Step) (StepTrace, int, error) {
	n := h.node(step.Store)
	trace := StepTrace{Index: index, Op: step.Op, Store: n.id}

	switch step.Op {
	case OpSubmit:
		payload, err := marshalOrder(step.Order)
		if err != nil {
			return trace, 0, err
		}
		if id, ok := step.Order[order.FieldOrderID].(string); ok {
			trace.OrderID = id
		}
		conf, err := n.svc.Submit(ctx, payload)
		if err != nil {
			return trace, 0, err
		}
		trace.OrderID = conf.OrderID
		trace.Seq = conf.Seq
		switch {
		case conf.Created:
			trace.Outcome = "created"
		case conf.Event == stream.Modify:
			trace.Outcome = "updated"
		default:
			trace.Outcome = "unchanged"
		}
		return trace, 0, nil

	case OpSubmitRaw:
		payload, err := marshalOrder(step.Order)
		if err != nil {
			return trace, 0, err
		}
		conf, err := n.svc.SubmitRaw(ctx, payload)
		if err != nil {
			return trace, 0, err
		}
		trace.Outcome = fmt.Sprintf("saved:%d", conf.ID)
		return trace, 0, nil

	case OpDelete:
		trace.OrderID = step.OrderID
		change, err := n.svc.Delete(ctx, step.OrderID)
		if err != nil {
			return trace, 0, err
		}
		trace.Seq = change.Sequence()
		trace.Outcome = "deleted"
		return trace, 0, nil

	case OpReplicate:
		opts := []replication.RelayOption{replication.WithName("master")}
		if step.BatchSize > 0 {
			opts = append(opts, replication.WithBatchSize(step.BatchSize))
		}
		relay := replication.NewRelay(n.store, n.store, replication.ProcessorSink{Processor: h.processor}, opts...)

		var (
			delivered int
			err       error
		)
		if step.Once {
			delivered, err = relay.RunOnce(ctx)
		} else {
			delivered, err = relay.Drain(ctx)
		}
		trace.Outcome = fmt.Sprintf("delivered:%d", delivered)
		return trace, failureCount(err), err

	case OpApply:
		trace.Store = ""
		records, err := h.buildRecords(step.Records)
		if err != nil {
			return trace, 0, err
		}
		res, err := h.processor.Apply(ctx, records)
		trace.Outcome = fmt.Sprintf("applied:%d stale:%d failed:%d", res.Applied, res.Stale, len(res.Failures))
		return trace, len(res.Failures), err
	}

	return trace, 0, fmt.Errorf("unknown op %q", step.Op)
}

// checkStep compares what a step did with what it declared to expect.
func checkStep(result *Result, index int, step Step, trace *StepTrace, failures int, err error) {
	if step.ExpectError != "" {
		if err == nil {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s error, got none", index, step.Op, step.ExpectError))
			return
		}
		kind := order.KindOf(err)
		trace.Outcome = "rejected:" + string(kind)
		if string(kind) != step.ExpectError {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s error, got %v", index, step.Op, step.ExpectError, err))
		}
		return
	}

	if failures != step.ExpectFailures {
		result.AddError(fmt.Sprintf("step %d (%s): expected %d failed record(s), got %d", index, step.Op, step.ExpectFailures, failures))
		return
	}

	var pf *replication.PartialFailure
	if err != nil && !errors.As(err, &pf) {
		if trace.Outcome == "" {
			trace.Outcome = "error"
		}
		result.AddError(fmt.Sprintf("step %d (%s): %v", index, step.Op, err))
	}
}

func failureCount(err error) int {
	var pf *replication.PartialFailure
	if errors.As(err, &pf) {
		return len(pf.Failures)
	}
	return 0
}

// marshalOrder renders a YAML-decoded order as a JSON request body.
// A nil order renders as an empty body.
func marshalOrder(o map[string]any) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	return data, nil
}

func (h *Harness) buildRecords(specs []RecordSpec) ([]stream.Record, error) {
	out := make([]stream.Record, 0, len(specs))
	for i, rs := range specs {
		rec := stream.Record{
			EventID:     "harness-" + rs.Seq,
			EventName:   stream.EventName(rs.Event),
			EventSource: HarnessEventSource,
			AWSRegion:   h.scenario.Region,
			Change: stream.Change{
				SequenceNumber: rs.Seq,
				StreamViewType: stream.ViewNewAndOldImages,
			},
		}

		var err error
		if rs.Image != nil {
			if rec.Change.NewImage, err = wrapImage(rs.Image); err != nil {
				return nil, fmt.Errorf("records[%d].image: %w", i, err)
			}
		}
		if rs.Old != nil {
			if rec.Change.OldImage, err = wrapImage(rs.Old); err != nil {
				return nil, fmt.Errorf("records[%d].old: %w", i, err)
			}
		}
		if rs.Key != "" {
			env, err := attr.Encode(attr.String(rs.Key))
			if err != nil {
				return nil, fmt.Errorf("records[%d].key: %w", i, err)
			}
			rec.Change.Keys = attr.RawImage{h.scenario.KeyAttribute: env}
		}
		out = append(out, rec)
	}
	return out, nil
}

// wrapImage converts a bare object into an envelope-encoded image. The
// object goes through JSON first so numbers keep their decimal text.
func wrapImage(obj map[string]any) (attr.RawImage, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	doc, err := attr.DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	m, err := attr.WrapMap(doc.(map[string]any))
	if err != nil {
		return nil, err
	}
	return attr.EncodeImage(m)
}
