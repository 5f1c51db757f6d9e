package redis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notifier/pkg/errors"
)

func startRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")
	return mr
}

func TestDialAndRead(t *testing.T) {
	mr := startRedis(t)
	d := NewDialer(Config{URL: "redis://" + mr.Addr(), Channel: "notifications:user-1"})

	conn, err := d.Dial(context.Background(), "s3cret")
	require.NoError(t, err)
	defer conn.Close()

	payload := `{"id":"7","kind":"new_booking","title":"Booked","message":"m","createdAt":1}`
	assert.Equal(t, 1, mr.Publish("notifications:user-1", payload))

	got, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestDialWrongPassword(t *testing.T) {
	mr := startRedis(t)
	d := NewDialer(Config{URL: "redis://" + mr.Addr(), Channel: "c"})

	_, err := d.Dial(context.Background(), "wrong")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.Unauthenticated), err.Error())
}

func TestDialUnreachable(t *testing.T) {
	mr := startRedis(t)
	addr := mr.Addr()
	mr.Close()

	d := NewDialer(Config{URL: "redis://" + addr, Channel: "c", DialTimeout: 200 * time.Millisecond})
	_, err := d.Dial(context.Background(), "s3cret")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.TransportFailed))
}

func TestDialRequiresChannel(t *testing.T) {
	_, err := NewDialer(Config{URL: "redis://localhost:6379"}).Dial(context.Background(), "t")
	assert.True(t, stderrors.Is(err, errors.Misconfigured))

	_, err = NewDialer(Config{URL: "::bad", Channel: "c"}).Dial(context.Background(), "t")
	assert.True(t, stderrors.Is(err, errors.Misconfigured))
}

func TestCloseUnblocksRead(t *testing.T) {
	mr := startRedis(t)
	conn, err := NewDialer(Config{URL: "redis://" + mr.Addr(), Channel: "c"}).Dial(context.Background(), "s3cret")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Read()
		done <- err
	}()

	conn.Close()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after close")
	}
}
