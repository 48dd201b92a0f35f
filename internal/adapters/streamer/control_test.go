package streamer

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/domain"
)

type fakeNotifier struct {
	mu sync.Mutex
	n  int
}

func (f *fakeNotifier) OnStreamerSignal() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func writeLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func TestNewControlListenerValidation(t *testing.T) {
	pool := app.NewStreamerPool(time.Minute, false)
	_, err := NewControlListener(":0", nil, &fakeNotifier{})
	assert.Error(t, err)
	_, err = NewControlListener(":0", pool, nil)
	assert.Error(t, err)
	_, err = NewControlListener(":0", pool, &fakeNotifier{})
	assert.NoError(t, err)
}

func TestControlChannelMaintainsPool(t *testing.T) {
	pool := app.NewStreamerPool(time.Minute, false)
	notify := &fakeNotifier{}
	l, err := NewControlListener(":0", pool, notify)
	require.NoError(t, err)

	server, client := net.Pipe()
	defer client.Close()
	done := make(chan struct{})
	go func() {
		l.serve(server)
		close(done)
	}()
	reader := bufio.NewReader(client)

	// Messages before connect carry no identity and are ignored, but still
	// count as signals.
	writeLine(t, client, `{"type":"ping"}`)

	writeLine(t, client, `{"type":"connect","address":"10.0.0.5","port":9000,"ready":true}`)
	replyLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	var reply struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(replyLine), &reply))
	assert.Equal(t, "identity", reply.Type)
	id := domain.StreamerID(reply.ID)

	rec, ok := pool.Get(id)
	require.True(t, ok, "connect must register the streamer")
	assert.Equal(t, "10.0.0.5", rec.Address)
	assert.Equal(t, 9000, rec.Port)
	assert.True(t, rec.Ready)

	t.Run("ping refreshes the heartbeat", func(t *testing.T) {
		before, _ := pool.Get(id)
		time.Sleep(5 * time.Millisecond)
		writeLine(t, client, `{"type":"ping"}`)
		require.Eventually(t, func() bool {
			after, _ := pool.Get(id)
			return after.LastHeartbeatAt.After(before.LastHeartbeatAt)
		}, time.Second, 2*time.Millisecond)
	})

	t.Run("client count follows reports", func(t *testing.T) {
		writeLine(t, client, `{"type":"clientConnected"}`)
		require.Eventually(t, func() bool {
			rec, _ := pool.Get(id)
			return rec.ConnectedClients == 1
		}, time.Second, 2*time.Millisecond)

		writeLine(t, client, `{"type":"clientDisconnected"}`)
		require.Eventually(t, func() bool {
			rec, _ := pool.Get(id)
			return rec.ConnectedClients == 0
		}, time.Second, 2*time.Millisecond)
	})

	t.Run("readiness can be withdrawn", func(t *testing.T) {
		writeLine(t, client, `{"type":"ready","ready":false}`)
		require.Eventually(t, func() bool {
			rec, _ := pool.Get(id)
			return !rec.Ready
		}, time.Second, 2*time.Millisecond)
	})

	t.Run("malformed lines are logged, not fatal", func(t *testing.T) {
		writeLine(t, client, `{not json`)
		writeLine(t, client, `{"type":"ping"}`)
	})

	// Every inbound line was a signal.
	require.Eventually(t, func() bool {
		return notify.count() >= 7
	}, time.Second, 2*time.Millisecond)

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not exit after the channel closed")
	}

	_, ok = pool.Get(id)
	assert.True(t, ok, "a closed channel never evicts the record")
}
