package storage

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/tidepool/pkg/errors"
)

// Mode tells which layer of the pool/connection/transaction stack an API
// value belongs to.
type Mode int

const (
	// ModePool marks a pool: every call acquires and releases its own connection.
	ModePool Mode = iota
	// ModeConn marks a connection: calls apply directly to the shared store.
	ModeConn
	// ModeTxn marks a transaction: calls are buffered until commit.
	ModeTxn
)

func (m Mode) String() string {
	switch m {
	case ModePool:
		return "pool"
	case ModeConn:
		return "conn"
	case ModeTxn:
		return "txn"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Kind identifies a storage technology. The set of built-in kinds is
// closed; anything else goes through CustomKind.
type Kind interface {
	String() string
	kind()
}

type builtinKind string

func (k builtinKind) String() string { return string(k) }
func (builtinKind) kind()            {}

type customKind struct{ name string }

func (k customKind) String() string { return k.name }
func (customKind) kind()            {}

// Built-in storage kinds.
var (
	KindKeyValue   Kind = builtinKind("kv")
	KindStack      Kind = builtinKind("stack")
	KindDocument   Kind = builtinKind("document")
	KindGraph      Kind = builtinKind("graph")
	KindRelational Kind = builtinKind("relational")
)

// CustomKind returns a kind for a storage technology that has no built-in
// variant. Two custom kinds with the same name compare equal.
func CustomKind(name string) Kind {
	return customKind{name: name}
}

// ParseKind maps a tag back to a Kind. Unknown tags become custom kinds.
func ParseKind(tag string) Kind {
	for _, k := range []Kind{KindKeyValue, KindStack, KindDocument, KindGraph, KindRelational} {
		if k.String() == tag {
			return k
		}
	}
	return CustomKind(tag)
}

// IsCustom reports whether k is a custom kind.
func IsCustom(k Kind) bool {
	_, ok := k.(customKind)
	return ok
}

// IsolationLevel is the isolation level requested for a transaction.
// Whether a level is honored, ignored or rejected is up to each store.
type IsolationLevel int

const (
	LevelDefault IsolationLevel = iota
	LevelReadUncommitted
	LevelReadCommitted
	LevelWriteCommitted
	LevelRepeatableRead
	LevelSnapshot
	LevelSerializable
	LevelLinearizable
)

var isolationNames = [...]string{
	LevelDefault:         "default",
	LevelReadUncommitted: "read_uncommitted",
	LevelReadCommitted:   "read_committed",
	LevelWriteCommitted:  "write_committed",
	LevelRepeatableRead:  "repeatable_read",
	LevelSnapshot:        "snapshot",
	LevelSerializable:    "serializable",
	LevelLinearizable:    "linearizable",
}

func (l IsolationLevel) String() string {
	if l >= 0 && int(l) < len(isolationNames) {
		return isolationNames[l]
	}
	return fmt.Sprintf("isolation(%d)", int(l))
}

// ParseIsolationLevel parses the names produced by IsolationLevel.String.
// The empty string is LevelDefault.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	if s == "" {
		return LevelDefault, nil
	}
	for i, name := range isolationNames {
		if name == s {
			return IsolationLevel(i), nil
		}
	}
	return LevelDefault, errors.Newf(errors.ErrorTypeValidation, "unknown isolation level %q", s)
}

// TxnOptions configures a new transaction.
type TxnOptions struct {
	IsolationLevel IsolationLevel
	ReadOnly       bool
}

// API is implemented by every pool, connection and transaction of every
// storage kind.
type API interface {
	Mode() Mode
	Kind() Kind
}

// Txn is the storage-agnostic view of an open transaction.
type Txn interface {
	API
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxnBeginner is implemented by pools and connections that can start a
// transaction.
type TxnBeginner interface {
	API
	BeginTransaction(ctx context.Context, opts TxnOptions) (Txn, error)
}
