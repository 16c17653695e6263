package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/observability/metrics"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken { return &fakeToken{done: make(chan struct{})} }

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho embeds paho.Client so only the methods used by client need bodies.
type fakePaho struct {
	paho.Client

	mu           sync.Mutex
	opts         *paho.ClientOptions
	connected    bool
	connectToken paho.Token
	publishToken paho.Token
	messages     []published
	disconnects  int
}

func (f *fakePaho) Connect() paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectToken != nil {
		return f.connectToken
	}
	f.connected = true
	return completedToken(nil)
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if f.publishToken != nil {
		return f.publishToken
	}
	return completedToken(nil)
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func newTestClient(t *testing.T, cfg Config, fake *fakePaho) (*client, *metrics.MQTTMetrics) {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c, err := NewClient(cfg, m, nil)
	require.NoError(t, err)
	impl := c.(*client)
	impl.newPaho = func(opts *paho.ClientOptions) paho.Client {
		fake.opts = opts
		return fake
	}
	return impl, m
}

func TestNewClientRejectsEmptyBroker(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestClientConnectAndPublish(t *testing.T) {
	t.Parallel()
	fake := &fakePaho{}
	cfg := DefaultConfig()
	cfg.Broker = "tcp://localhost:1883"
	cfg.QoS = 1
	cfg.Retain = true
	c, m := newTestClient(t, cfg, fake)

	require.NoError(t, c.Connect(t.Context()))
	assert.True(t, c.IsConnected())
	require.NotNil(t, fake.opts)
	assert.Equal(t, "audiodevicebuffer", fake.opts.ClientID)
	assert.True(t, fake.opts.AutoReconnect)
	assert.True(t, fake.opts.CleanSession)

	require.NoError(t, c.Publish(t.Context(), "adb/x", []byte("hello")))
	require.Len(t, fake.messages, 1)
	assert.Equal(t, published{topic: "adb/x", qos: 1, retained: true, payload: []byte("hello")}, fake.messages[0])
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.MessagesDelivered), 0)

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Equal(t, 1, fake.disconnects)
}

func TestClientPublishWhenDisconnected(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, Config{Broker: "tcp://localhost:1883"}, &fakePaho{})
	err := c.Publish(t.Context(), "adb/x", []byte("x"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestClientConnectCooldown(t *testing.T) {
	t.Parallel()
	cfg := Config{Broker: "tcp://localhost:1883", ReconnectCooldown: time.Hour}
	c, _ := newTestClient(t, cfg, &fakePaho{})
	require.NoError(t, c.Connect(t.Context()))
	err := c.Connect(t.Context())
	require.ErrorIs(t, err, ErrTooSoon)
}

func TestClientConnectError(t *testing.T) {
	t.Parallel()
	fake := &fakePaho{connectToken: completedToken(errors.NewStd("refused"))}
	c, m := newTestClient(t, Config{Broker: "tcp://localhost:1883"}, fake)
	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 0)
}

func TestClientConnectTimeout(t *testing.T) {
	t.Parallel()
	fake := &fakePaho{connectToken: pendingToken()}
	cfg := Config{Broker: "tcp://localhost:1883", ConnectTimeout: 10 * time.Millisecond}
	c, _ := newTestClient(t, cfg, fake)
	err := c.Connect(t.Context())
	require.ErrorIs(t, err, ErrConnectTimeout)
}

func TestClientConnectCancelled(t *testing.T) {
	t.Parallel()
	fake := &fakePaho{connectToken: pendingToken()}
	c, _ := newTestClient(t, Config{Broker: "tcp://localhost:1883"}, fake)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, c.Connect(ctx), context.Canceled)
}

func TestClientPublishTimeout(t *testing.T) {
	t.Parallel()
	fake := &fakePaho{publishToken: pendingToken()}
	cfg := Config{Broker: "tcp://localhost:1883", PublishTimeout: 10 * time.Millisecond}
	c, _ := newTestClient(t, cfg, fake)
	require.NoError(t, c.Connect(t.Context()))
	err := c.Publish(t.Context(), "adb/x", []byte("x"))
	require.ErrorIs(t, err, ErrPublishTimeout)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}
