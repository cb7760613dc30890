package storage

import "context"

type apiKey struct{}

// WithAPI returns a copy of ctx carrying api as the current storage API.
// The parent context is not modified.
func WithAPI(ctx context.Context, api API) context.Context {
	return context.WithValue(ctx, apiKey{}, api)
}

// APIFrom returns the storage API bound to ctx, if any.
func APIFrom(ctx context.Context) (API, bool) {
	api, ok := ctx.Value(apiKey{}).(API)
	return api, ok && api != nil
}

// TxnFrom returns the transaction bound to ctx when the current storage
// API is a transaction.
func TxnFrom(ctx context.Context) (Txn, bool) {
	api, ok := APIFrom(ctx)
	if !ok || api.Mode() != ModeTxn {
		return nil, false
	}
	txn, ok := api.(Txn)
	return txn, ok
}
