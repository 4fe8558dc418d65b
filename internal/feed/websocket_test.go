package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"despesas/internal/core"
)

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
}

func TestHandler_StreamsSnapshots(t *testing.T) {
	src := &fakeSource{records: []core.Expense{expense("a", 100)}}
	hub := NewHub(src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "collection=expenses&order=date_desc"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Len(t, msg.Records, 1)

	src.set([]core.Expense{expense("a", 100), expense("b", 250)}, nil)
	hub.Notify()
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Len(t, msg.Records, 2)
	assert.Equal(t, int64(250), msg.Records[1].Amount.Cents)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_UnknownCollectionIs404(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewHub(&fakeSource{}, nil), nil))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "collection=nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
