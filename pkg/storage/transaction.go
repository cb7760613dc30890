package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/logger"
)

const tracerName = "github.com/ajitpratap0/tidepool/pkg/storage"

// TxnFunc is the business logic run by RunTransaction. ctx carries txn as
// its current storage API, so nested RunTransaction calls reuse it.
type TxnFunc func(ctx context.Context, txn Txn) error

// RunTransaction runs fn inside a transaction with default options.
// See RunTransactionWithOptions.
func RunTransaction(ctx context.Context, fn TxnFunc) error {
	return RunTransactionWithOptions(ctx, TxnOptions{}, fn)
}

// RunTransactionWithOptions runs fn inside a transaction started on the
// storage API bound to ctx.
//
// If that API is already a transaction, fn is called with the same ctx and
// the same transaction and nothing is committed or rolled back here; the
// caller that opened the transaction owns its outcome. opts are ignored in
// that case.
//
// Otherwise a transaction is begun, bound to a derived context and passed
// to fn. A nil result commits and the commit error, if any, is returned. A
// non-nil result rolls back and returns fn's error unchanged, unless the
// rollback itself fails: then the rollback error is returned instead.
// A panic in fn rolls back and re-panics.
func RunTransactionWithOptions(ctx context.Context, opts TxnOptions, fn TxnFunc) (err error) {
	api, ok := APIFrom(ctx)
	if !ok {
		return errors.New(errors.ErrorTypeNoStorageAPI, "context carries no storage api")
	}
	if fn == nil {
		return errors.New(errors.ErrorTypeMissingCallback, "transaction callback is nil")
	}

	callerCtx := ctx
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tidepool.RunTransaction",
		trace.WithAttributes(
			attribute.String("storage.kind", api.Kind().String()),
			attribute.String("storage.mode", api.Mode().String()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if api.Mode() == ModeTxn {
		txn, ok := api.(Txn)
		if !ok {
			return errors.Newf(errors.ErrorTypeCapability, "%s api in txn mode does not implement Txn", api.Kind())
		}
		span.SetAttributes(attribute.Bool("txn.reused", true))
		return fn(callerCtx, txn)
	}

	beginner, ok := api.(TxnBeginner)
	if !ok {
		return errors.Newf(errors.ErrorTypeCapability, "%s %s cannot begin a transaction", api.Kind(), api.Mode())
	}

	txn, err := beginner.BeginTransaction(ctx, opts)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Bool("txn.reused", false),
		attribute.String("txn.isolation", opts.IsolationLevel.String()),
		attribute.Bool("txn.read_only", opts.ReadOnly),
	)

	txnCtx := withTxnIDs(WithAPI(ctx, txn), txn)
	log := logger.WithContext(txnCtx)

	defer func() {
		if p := recover(); p != nil {
			_ = txn.Rollback(ctx)
			log.Warn("transaction rolled back after panic", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txnCtx, txn); err != nil {
		if rbErr := txn.Rollback(ctx); rbErr != nil {
			log.Warn("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
			return rbErr
		}
		log.Debug("transaction rolled back", zap.Error(err))
		return err
	}

	if err := txn.Commit(ctx); err != nil {
		log.Warn("commit failed", zap.Error(err))
		return err
	}
	return nil
}

// withTxnIDs adds the transaction and connection ids txn reports to ctx,
// for logger.WithContext.
func withTxnIDs(ctx context.Context, txn Txn) context.Context {
	if t, ok := txn.(interface{ ID() string }); ok {
		ctx = context.WithValue(ctx, logger.TxnIDKey, t.ID())
	}
	if t, ok := txn.(interface{ ConnID() string }); ok {
		ctx = context.WithValue(ctx, logger.ConnIDKey, t.ConnID())
	}
	return ctx
}
