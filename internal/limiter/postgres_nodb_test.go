package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/and161185/campus-board/internal/errs"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr         error
	qrBlockedTill *time.Time
	qrFailsRet    int

	lastExecSQL  string
	lastExecArgs []any
	execErr      error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	f.lastExecArgs = args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "SELECT blocked_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			if f.qrBlockedTill != nil {
				*(dest[0].(*time.Time)) = *f.qrBlockedTill
			} else {
				*(dest[0].(*time.Time)) = time.Time{}
			}
			return nil
		}}
	case strings.Contains(sql, "RETURNING fail_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*int)) = f.qrFailsRet
			return nil
		}}
	default:
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
}

func TestPG_Allow_NoRow_Allows(t *testing.T) {
	l := NewPGWithQuerier(&fakePool{qrErr: pgx.ErrNoRows}, 15*time.Minute, 5, 15*time.Minute)

	ok, dur, err := l.Allow(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)
}

func TestPG_Allow_BlockedUntilFuture(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	fut := now.Add(10 * time.Minute)
	l := NewPGWithQuerier(&fakePool{qrBlockedTill: &fut}, 15*time.Minute, 5, 15*time.Minute)
	l.now = func() time.Time { return now }

	ok, dur, err := l.Allow(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, dur)
}

func TestPG_Allow_PastOrEpoch_Allows(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	l := NewPGWithQuerier(&fakePool{qrBlockedTill: &past}, 15*time.Minute, 5, 15*time.Minute)

	ok, dur, err := l.Allow(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)

	ok, _, err = NewPGWithQuerier(&fakePool{}, time.Minute, 5, time.Minute).Allow(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPG_Allow_DBError_Propagates(t *testing.T) {
	l := NewPGWithQuerier(&fakePool{qrErr: errors.New("db boom")}, 15*time.Minute, 5, 15*time.Minute)

	ok, _, err := l.Allow(context.Background(), "u", []byte("h"))
	require.Error(t, err)
	require.False(t, ok)
}

func TestPG_Allow_DeadlineIsTimeout(t *testing.T) {
	l := NewPGWithQuerier(&fakePool{qrErr: context.DeadlineExceeded}, time.Minute, 5, time.Minute)

	_, _, err := l.Allow(context.Background(), "u", []byte("h"))
	require.ErrorIs(t, err, errs.ErrTimeout)
}

func TestPG_Success(t *testing.T) {
	fp := &fakePool{}
	l := NewPGWithQuerier(fp, 15*time.Minute, 5, 15*time.Minute)

	require.NoError(t, l.Success(context.Background(), "u", []byte("h")))
	require.Contains(t, fp.lastExecSQL, "INSERT INTO mod_login_limiter")

	fp.execErr = errors.New("exec fail")
	require.Error(t, l.Success(context.Background(), "u", []byte("h")))
}

func TestPG_Failure_Increments_NoBlock(t *testing.T) {
	l := NewPGWithQuerier(&fakePool{qrFailsRet: 2}, 5*time.Minute, 5, 15*time.Minute)

	blocked, dur, err := l.Failure(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)
}

func TestPG_Failure_BlocksAtThreshold(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{qrFailsRet: 5}
	l := NewPGWithQuerier(fp, 5*time.Minute, 5, 10*time.Minute)
	l.now = func() time.Time { return now }

	blocked, dur, err := l.Failure(context.Background(), "u", []byte("h"))
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)
	require.Contains(t, fp.lastExecSQL, "UPDATE mod_login_limiter SET blocked_until")
	require.Equal(t, now.Add(10*time.Minute), fp.lastExecArgs[2])
}

func TestPG_Failure_DBErrorOnReturning(t *testing.T) {
	l := NewPGWithQuerier(&fakePool{qrErr: errors.New("query error")}, 5*time.Minute, 5, 10*time.Minute)

	_, _, err := l.Failure(context.Background(), "u", []byte("h"))
	require.Error(t, err)
}

func TestHashIP_Determinism(t *testing.T) {
	a := HashIP("1.2.3.4:123")
	b := HashIP("1.2.3.4:123")
	c := HashIP("5.6.7.8:321")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 32)
}
