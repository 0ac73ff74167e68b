package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	address      string
	subscribeErr error
	blockClose   chan struct{}
	info         map[string]any

	mu       sync.Mutex
	commands []string
	done     chan struct{}
	once     sync.Once
}

func newFakeConn(address string) *fakeConn {
	return &fakeConn{address: address, done: make(chan struct{})}
}

func (c *fakeConn) Request(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.commands = append(c.commands, command)
	c.mu.Unlock()
	if command == "subscribe" {
		if c.subscribeErr != nil {
			return nil, c.subscribeErr
		}
		return map[string]any{"ledger_index": float64(100), "ledger_hash": "ABC"}, nil
	}
	if command == "server_info" {
		return map[string]any{"info": c.info}, nil
	}
	return map[string]any{"echo": command}, nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	if c.blockClose != nil {
		<-c.blockClose
	}
	c.drop()
	return nil
}

func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.done) })
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	errs     map[string]error
	block    map[string]bool
	conns    map[string]*fakeConn
	attempts []string
	onStream StreamHandler
}

func (d *fakeDialer) Dial(ctx context.Context, address string, onStream StreamHandler) (Conn, error) {
	d.mu.Lock()
	d.attempts = append(d.attempts, address)
	d.onStream = onStream
	err := d.errs[address]
	block := d.block[address]
	conn := d.conns[address]
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if conn == nil {
		conn = newFakeConn(address)
		d.mu.Lock()
		if d.conns == nil {
			d.conns = make(map[string]*fakeConn)
		}
		d.conns[address] = conn
		d.mu.Unlock()
	}
	return conn, nil
}

func (d *fakeDialer) attempted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.attempts...)
}

func newTestManager(dialer Dialer, addrs ...string) *Manager {
	return NewManager(ManagerConfig{
		Endpoints:         BuildEndpoints(addrs[0], addrs[1:]),
		ConnectionTimeout: 100 * time.Millisecond,
		RequestTimeout:    time.Second,
	}, dialer, zap.NewNop())
}

func TestBuildEndpointsPrimaryFirst(t *testing.T) {
	endpoints := BuildEndpoints("wss://primary", []string{"wss://a", "wss://b"})
	require.Len(t, endpoints, 3)
	assert.Equal(t, "wss://primary", endpoints[0].Address)
	assert.Equal(t, 0, endpoints[0].Priority)
	assert.Equal(t, "wss://a", endpoints[1].Address)
	assert.Equal(t, 2, endpoints[2].Priority)
}

func TestBuildEndpointsMovesPrimaryToFront(t *testing.T) {
	endpoints := BuildEndpoints("wss://b", []string{"wss://a", "wss://b", " ", "wss://a", "wss://c"})
	var addrs []string
	for _, ep := range endpoints {
		addrs = append(addrs, ep.Address)
	}
	assert.Equal(t, []string{"wss://b", "wss://a", "wss://c"}, addrs)
}

func TestConnectStopsAtFirstSuccess(t *testing.T) {
	dialer := &fakeDialer{errs: map[string]error{"A": errors.New("refused")}}
	mgr := newTestManager(dialer, "A", "B", "C")

	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "B", conn.(*fakeConn).address)
	assert.Equal(t, []string{"A", "B"}, dialer.attempted())
	assert.Equal(t, StateConnected, mgr.State())

	active, ok := mgr.Active()
	require.True(t, ok)
	assert.Equal(t, "B", active.Address)
	assert.Equal(t, 1, active.Priority)
}

func TestConnectSubscribesToLedgerStream(t *testing.T) {
	dialer := &fakeDialer{}
	mgr := newTestManager(dialer, "A")

	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	fc := conn.(*fakeConn)
	assert.Equal(t, []string{"subscribe"}, fc.commands)

	last, ok := mgr.LastLedger()
	require.True(t, ok)
	assert.Equal(t, uint64(100), last.Index)
	assert.Equal(t, "ABC", last.Hash)
}

func TestConnectAllEndpointsUnavailable(t *testing.T) {
	dialer := &fakeDialer{errs: map[string]error{
		"A": errors.New("a down"),
		"B": errors.New("b down"),
		"C": errors.New("c down"),
	}}
	mgr := newTestManager(dialer, "A", "B", "C")

	conn, err := mgr.Connect(context.Background())
	assert.Nil(t, conn)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllEndpointsUnavailable)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Attempts, 3)
	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, unavailable.Attempts[i].Endpoint.Address)
	}
	assert.Equal(t, StateFailed, mgr.State())
}

func TestConnectNoEndpoints(t *testing.T) {
	mgr := NewManager(ManagerConfig{}, &fakeDialer{}, zap.NewNop())
	_, err := mgr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAllEndpointsUnavailable)
}

func TestConnectAttemptIsBoundedByTimeout(t *testing.T) {
	dialer := &fakeDialer{block: map[string]bool{"A": true}}
	mgr := newTestManager(dialer, "A", "B")

	start := time.Now()
	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", conn.(*fakeConn).address)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConnectSkipsEndpointWhenSubscribeFails(t *testing.T) {
	bad := newFakeConn("A")
	bad.subscribeErr = &RPCError{Command: "subscribe", Code: "noPermission"}
	dialer := &fakeDialer{conns: map[string]*fakeConn{"A": bad}}
	mgr := newTestManager(dialer, "A", "B")

	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", conn.(*fakeConn).address)
	assert.True(t, bad.isClosed())
}

func TestConnectKeepsTransportWithoutStreams(t *testing.T) {
	rpcLike := newFakeConn("A")
	rpcLike.subscribeErr = ErrStreamsUnsupported
	dialer := &fakeDialer{conns: map[string]*fakeConn{"A": rpcLike}}
	mgr := newTestManager(dialer, "A", "B")

	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", conn.(*fakeConn).address)
}

func TestConnectReplacesPreviousSession(t *testing.T) {
	dialer := &fakeDialer{}
	mgr := newTestManager(dialer, "A")

	first, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	dialer.mu.Lock()
	delete(dialer.conns, "A")
	dialer.mu.Unlock()
	second, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, first.(*fakeConn).isClosed())
}

func TestLedgerClosedStreamNotifiesHandlers(t *testing.T) {
	dialer := &fakeDialer{}
	mgr := newTestManager(dialer, "A")
	got := make(chan LedgerClosed, 1)
	mgr.OnLedgerClosed(func(event LedgerClosed) { got <- event })

	_, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	<-got // header from the subscribe result

	dialer.onStream([]byte(`{"type":"ledgerClosed","ledger_index":101,"ledger_hash":"DEF","txn_count":7}`))
	select {
	case event := <-got:
		assert.Equal(t, uint64(101), event.Index)
		assert.Equal(t, 7, event.TxnCount)
	case <-time.After(time.Second):
		t.Fatal("ledger handler not invoked")
	}

	dialer.onStream([]byte(`{"type":"transaction"}`))
	last, _ := mgr.LastLedger()
	assert.Equal(t, "DEF", last.Hash)
}

func TestConnectionLossDetectedAndEnsureConnectedRedials(t *testing.T) {
	dialer := &fakeDialer{}
	mgr := newTestManager(dialer, "A")
	conn, err := mgr.Connect(context.Background())
	require.NoError(t, err)

	conn.(*fakeConn).drop()
	require.Eventually(t, func() bool { return mgr.State() == StateDisconnected }, time.Second, 5*time.Millisecond)

	_, err = mgr.Request(context.Background(), "account_info", nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	dialer.mu.Lock()
	delete(dialer.conns, "A")
	dialer.mu.Unlock()
	again, err := mgr.EnsureConnected(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, conn, again)
	assert.Len(t, dialer.attempted(), 2)
}

func TestEnsureConnectedReusesLiveSession(t *testing.T) {
	dialer := &fakeDialer{}
	mgr := newTestManager(dialer, "A")
	first, err := mgr.EnsureConnected(context.Background())
	require.NoError(t, err)
	second, err := mgr.EnsureConnected(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, dialer.attempted(), 1)
}

func TestRequestUsesActiveSession(t *testing.T) {
	mgr := newTestManager(&fakeDialer{}, "A")
	_, err := mgr.Connect(context.Background())
	require.NoError(t, err)
	result, err := mgr.Request(context.Background(), "account_info", map[string]any{"account": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "account_info", result["echo"])
}

func TestDisconnectIsBoundedByContext(t *testing.T) {
	slow := newFakeConn("A")
	slow.blockClose = make(chan struct{})
	defer close(slow.blockClose)
	mgr := newTestManager(&fakeDialer{conns: map[string]*fakeConn{"A": slow}}, "A")
	_, err := mgr.Connect(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = mgr.Disconnect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDisconnected, mgr.State())
}

func TestDisconnectWithoutSession(t *testing.T) {
	mgr := newTestManager(&fakeDialer{}, "A")
	assert.NoError(t, mgr.Disconnect(context.Background()))
}

func TestConnectSkipsEndpointsOnAnotherNetwork(t *testing.T) {
	mainnet := newFakeConn("wss://mainnet")
	testnet := newFakeConn("wss://testnet")
	testnet.info = map[string]any{"network_id": float64(1)}
	dialer := &fakeDialer{conns: map[string]*fakeConn{"wss://mainnet": mainnet, "wss://testnet": testnet}}
	want := uint32(1)
	m := NewManager(ManagerConfig{
		Endpoints:         BuildEndpoints("wss://mainnet", []string{"wss://testnet"}),
		ConnectionTimeout: 100 * time.Millisecond,
		NetworkID:         &want,
	}, dialer, zap.NewNop())

	conn, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, testnet, conn)
	assert.True(t, mainnet.isClosed())
	assert.NotContains(t, mainnet.commands, "subscribe")

	only := NewManager(ManagerConfig{
		Endpoints: BuildEndpoints("wss://mainnet", nil),
		NetworkID: &want,
	}, &fakeDialer{conns: map[string]*fakeConn{"wss://mainnet": newFakeConn("wss://mainnet")}}, zap.NewNop())
	_, err = only.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAllEndpointsUnavailable)
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Attempts, 1)
	assert.ErrorIs(t, unavailable.Attempts[0].Err, ErrNetworkMismatch)
}
