package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/pkg/bus"
)

func TestSendMessagePostsToGateway(t *testing.T) {
	bus.Reset()
	t.Cleanup(bus.Reset)

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var events []bus.Event
	bus.Subscribe(func(ev bus.Event) { events = append(events, ev) })

	s := New(srv.URL, "+15550001111", "+15550002222")
	require.NoError(t, s.SendMessage(context.Background(), "Pour moved to Friday."))

	assert.Equal(t, "+15550001111", got["to"])
	assert.Equal(t, "+15550002222", got["from"])
	assert.Equal(t, "Pour moved to Friday.", got["content"])

	require.Len(t, events, 1)
	assert.Equal(t, bus.TypeMessage, events[0].Type)
	assert.Equal(t, "outbound", events[0].Data["direction"])
}

func TestSendMessageGatewayError(t *testing.T) {
	bus.Reset()
	t.Cleanup(bus.Reset)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(srv.URL, "+15550001111", "+15550002222")
	err := s.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSendMessageLogOnly(t *testing.T) {
	bus.Reset()
	t.Cleanup(bus.Reset)

	s := New("", "+15550001111", "+15550002222")
	assert.NoError(t, s.SendMessage(context.Background(), "dev mode"))
	assert.NoError(t, s.SendMessage(context.Background(), ""))
}
