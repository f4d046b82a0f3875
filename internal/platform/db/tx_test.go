package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx     *fakeTx
	err    error
	begins int
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.begins++
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithTx_Commit(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)

	var sawTx bool
	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		sawTx = TxFromContext(ctx) != nil
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawTx {
		t.Error("expected transaction bound to the callback context")
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Errorf("expected commit only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)
	want := errors.New("insert visit failed")

	err := m.WithTx(context.Background(), func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to propagate")
		}
		if !b.tx.rolledBack {
			t.Error("expected rollback on panic")
		}
	}()
	_ = m.WithTx(context.Background(), func(context.Context) error { panic("boom") })
}

func TestWithTx_BeginError(t *testing.T) {
	m := NewTxManager(&fakeBeginner{err: errors.New("pool exhausted")})
	called := false
	err := m.WithTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected begin error")
	}
	if called {
		t.Error("callback must not run without a transaction")
	}
}

func TestWithTx_CommitError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	err := NewTxManager(b).WithTx(context.Background(), func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected commit error")
	}
}

func TestWithTx_JoinsOuterTransaction(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	m := NewTxManager(b)

	err := m.WithTx(context.Background(), func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		return m.WithTx(ctx, func(inner context.Context) error {
			if TxFromContext(inner) != outer {
				t.Error("expected nested call to reuse the outer transaction")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begins != 1 {
		t.Errorf("expected one BEGIN, got %d", b.begins)
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	err := NewTxManager(nil).WithTx(context.Background(), func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error when no connection is configured")
	}
	if err.Error() != "no database connection" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestConn_PrefersTransaction(t *testing.T) {
	tx := &fakeTx{}
	ctx := ContextWithTx(context.Background(), tx)
	if got := Conn(ctx, nil); got != Querier(tx) {
		t.Errorf("expected tx, got %T", got)
	}
	if got := Conn(context.Background(), nil); got != nil {
		t.Errorf("expected fallback, got %T", got)
	}
}
