package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/shipyard/internal/container"
)

func TestParseOperation(t *testing.T) {
	for in, want := range map[string]Operation{
		"START":     OpStart,
		"stop":      OpStop,
		" Restart ": OpRestart,
	} {
		op, err := ParseOperation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, op)
	}

	_, err := ParseOperation("deploy")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("%w: Dockerfile", ErrRecipeMissing), KindConfiguration},
		{fmt.Errorf("wrap: %w", ErrUnknownStack), KindConfiguration},
		{ErrUnknownOperation, KindConfiguration},
		{engineErr(errors.New("boom")), KindEngine},
		{&container.ExitError{Code: 125}, KindEngine},
		{fmt.Errorf("%w: port", ErrDiscovery), KindDiscovery},
		{ErrNotRunning, KindDiscovery},
		{fmt.Errorf("%w: x", ErrProjectNotFound), KindNotFound},
		{ErrNoContainer, KindNotFound},
		{ErrTimeout, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("disk full"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestEngineErr_WrapsOnce(t *testing.T) {
	err := engineErr(engineErr(errors.New("exit 1")))
	assert.Equal(t, "container engine failure: exit 1", err.Error())
}

func TestStatusFromLine(t *testing.T) {
	assert.Equal(t, StatusRunning, statusFromLine("Up 3 minutes"))
	assert.Equal(t, StatusRunning, statusFromLine("Up 10 seconds (healthy)"))
	assert.Equal(t, StatusStopped, statusFromLine("Exited (0) 2 hours ago"))
	assert.Equal(t, StatusStopped, statusFromLine("Created"))
	assert.Equal(t, StatusStopped, statusFromLine(""))
}

func TestRouting_URL(t *testing.T) {
	tests := []struct {
		name    string
		routing Routing
		port    int
		want    string
		ok      bool
	}{
		{"hostport", Routing{Mode: RoutingHostPort, Scheme: "http", Host: "localhost"}, 32771, "http://localhost:32771", true},
		{"hostport defaults", Routing{}, 8080, "http://localhost:8080", true},
		{"hostport ipv6", Routing{Mode: RoutingHostPort, Scheme: "https", Host: "::1"}, 443, "https://[::1]:443", true},
		{"hostport no port", Routing{Mode: RoutingHostPort, Host: "localhost"}, 0, "", false},
		{"subdomain", Routing{Mode: RoutingSubdomain, Scheme: "https", Domain: "apps.example.com"}, 0, "https://abc.apps.example.com", true},
		{"subdomain no domain", Routing{Mode: RoutingSubdomain}, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.routing.URL("ABC", tt.port)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "abc.apps.example.com", Routing{Mode: RoutingSubdomain, Domain: "apps.example.com"}.Hostname("ABC"))
	assert.Empty(t, Routing{Mode: RoutingHostPort}.Hostname("ABC"))
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	assert.True(t, k.Held("a"))

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	// Other keys are independent
	unlockB := k.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	default:
	}

	unlockA()
	<-acquired
	assert.Eventually(t, func() bool { return !k.Held("a") }, time.Second, time.Millisecond)
}

// queued counts the turns held or waiting for key.
func queued(k *keyedMutex, key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queues[key])
}

func TestKeyedMutex_ReadyInReserveOrder(t *testing.T) {
	k := newKeyedMutex()

	first := k.Reserve("a")
	second := k.Reserve("a")
	third := k.Reserve("a")
	assert.Equal(t, 3, queued(k, "a"))

	isReady := func(tn *turn) bool {
		select {
		case <-tn.ready:
			return true
		default:
			return false
		}
	}
	assert.True(t, isReady(first))
	assert.False(t, isReady(second))
	assert.False(t, isReady(third))

	// Withdrawing a waiting turn does not pass the key along
	second.Release()
	assert.False(t, isReady(third))
	assert.Equal(t, 2, queued(k, "a"))

	first.Release()
	assert.True(t, isReady(third))

	third.Release()
	third.Release()
	assert.False(t, k.Held("a"))
}

func TestFuture_Await(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := f.Await(ctx)
	assert.Equal(t, KindTimeout, r.Kind())

	f.resolve(Result{Info: Info{Status: StatusStopped}})
	assert.Equal(t, StatusStopped, f.Await(ctx).Info.Status, "a resolved future wins over a done context")
}
