// Package intake accepts order submissions and serves order reads.
//
// Submit is the strict path: the payload must carry every required field,
// is upserted into the order store (which appends to the change feed) and
// then written through to the master table under the same sequence
// number. SubmitRaw is the permissive path that stores any non-empty JSON
// object under a surrogate id.
package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/stream"
)

// OrderStore is the per-store table. Implemented by *store.Store.
type OrderStore interface {
	PutOrder(ctx context.Context, rec order.Record) (store.Change, error)
	GetOrder(ctx context.Context, orderID string) (order.Record, error)
	DeleteOrder(ctx context.Context, orderID string) (store.Change, error)
	AppendRaw(ctx context.Context, rec order.Record) (int64, error)
}

// MasterStore is the master table as seen by intake.
// Implemented by *store.Master and *pgstore.Master.
type MasterStore interface {
	Upsert(ctx context.Context, key string, rec order.Record, sequence, source string) (bool, error)
	Get(ctx context.Context, key string) (order.Record, error)
}

// Confirmation describes an accepted strict submission.
type Confirmation struct {
	OrderID string           `json:"order_id"`
	Seq     string           `json:"seq"`
	Event   stream.EventName `json:"event,omitempty"`
	Created bool             `json:"created"`
}

// RawConfirmation describes an accepted permissive submission.
type RawConfirmation struct {
	ID int64 `json:"id"`
}

// Service implements order intake and retrieval.
type Service struct {
	orders   OrderStore
	master   MasterStore
	required []string
	source   string
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRequiredFields overrides the strict required-field set.
// order_id is always required regardless.
func WithRequiredFields(fields []string) Option {
	return func(s *Service) {
		if len(fields) > 0 {
			s.required = fields
		}
	}
}

// WithSource names this node in master rows it writes directly.
func WithSource(source string) Option {
	return func(s *Service) {
		s.source = source
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a service. master may be nil, in which case strict
// submissions are not written through and GetMaster reports not found.
func NewService(orders OrderStore, master MasterStore, opts ...Option) *Service {
	s := &Service{
		orders:   orders,
		master:   master,
		required: order.DefaultRequired,
		source:   "intake",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates payload strictly and stores it.
//
// Validation failures return an order.KindValidation error and write
// nothing. A resubmission of an identical record is accepted without a
// new feed event. If the master write fails after the store write
// succeeded, a storage error is returned; the feed will still carry the
// change to the master.
func (s *Service) Submit(ctx context.Context, payload []byte) (Confirmation, error) {
	o, err := order.Parse(payload, s.required)
	if err != nil {
		s.logger.Debug("order rejected", "error", err)
		return Confirmation{}, err
	}

	change, err := s.orders.PutOrder(ctx, o.Record)
	if err != nil {
		s.logger.Error("order store write failed", "order_id", o.ID, "error", err)
		return Confirmation{}, storageError(o.ID, err)
	}

	conf := Confirmation{
		OrderID: o.ID,
		Seq:     change.Sequence(),
		Event:   change.Event,
		Created: change.Event == stream.Insert,
	}

	if s.master != nil {
		if _, err := s.master.Upsert(ctx, o.ID, o.Record, conf.Seq, s.source); err != nil {
			s.logger.Error("master write failed", "order_id", o.ID, "seq", conf.Seq, "error", err)
			return conf, storageError(o.ID, err)
		}
	}

	s.logger.Info("order accepted",
		"order_id", o.ID,
		"seq", conf.Seq,
		"event", conf.Event,
		"total", o.Total.String(),
	)
	return conf, nil
}

// SubmitRaw stores any non-empty JSON object. There is no key, so every
// call creates a new row.
func (s *Service) SubmitRaw(ctx context.Context, payload []byte) (RawConfirmation, error) {
	rec, err := order.ParseRaw(payload)
	if err != nil {
		return RawConfirmation{}, err
	}

	id, err := s.orders.AppendRaw(ctx, rec)
	if err != nil {
		s.logger.Error("raw order write failed", "error", err)
		return RawConfirmation{}, storageError("", err)
	}

	s.logger.Info("raw order saved", "id", id)
	return RawConfirmation{ID: id}, nil
}

// Get reads orderID from the order store.
func (s *Service) Get(ctx context.Context, orderID string) (order.Record, error) {
	rec, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.readError(orderID, err)
	}
	return rec, nil
}

// GetMaster reads orderID from the master table.
func (s *Service) GetMaster(ctx context.Context, orderID string) (order.Record, error) {
	if s.master == nil {
		return nil, order.NewNotFoundError(orderID)
	}
	rec, err := s.master.Get(ctx, orderID)
	if err != nil {
		return nil, s.readError(orderID, err)
	}
	return rec, nil
}

// Delete removes orderID from the order store. The master table follows
// once the resulting REMOVE is replicated.
func (s *Service) Delete(ctx context.Context, orderID string) (store.Change, error) {
	change, err := s.orders.DeleteOrder(ctx, orderID)
	if err != nil {
		return store.Change{}, s.readError(orderID, err)
	}
	s.logger.Info("order deleted", "order_id", orderID, "seq", change.Sequence())
	return change, nil
}

func (s *Service) readError(orderID string, err error) error {
	if order.IsNotFound(err) {
		s.logger.Debug("order not found", "order_id", orderID)
		return err
	}
	s.logger.Error("order read failed", "order_id", orderID, "error", err)
	return storageError(orderID, err)
}

// storageError wraps err unless it already carries an order error kind.
func storageError(orderID string, err error) error {
	var oe *order.Error
	if errors.As(err, &oe) {
		return err
	}
	return order.NewStorageError(orderID, err)
}
