package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisan-sarthi/backend/internal/wizard"
)

func dialStream(t *testing.T, srv *httptest.Server, id, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/wizards/" + id
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func payloadView(t *testing.T, msg WSMessage) wizard.View {
	t.Helper()
	var v wizard.View
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func TestWizardStreamUntilSettled(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	token := s.signIn(t, "9876543210")
	v := s.createWizard(t, token, "land")

	conn, _, err := dialStream(t, srv, v.ID, token)
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeConnected, msg.Type)
	assert.Equal(t, v.ID, msg.ID)

	msg = readMessage(t, conn)
	require.Equal(t, MsgTypeSnapshot, msg.Type)
	assert.Equal(t, wizard.StatusEditing, payloadView(t, msg).Status)

	rec := s.doJSON(t, http.MethodPut, "/api/wizards/"+v.ID+"/fields",
		`{"fields":{"title":"Farm plot","area":"3","rentPerMonth":"8000","pincode":"411001"}}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := s.upload(t, "/api/wizards/"+v.ID+"/files", token,
		part{field: "files", name: "field.jpg", contentType: "image/jpeg", data: []byte("jpeg")})
	require.Equal(t, http.StatusOK, res.Code, string(res.Body))
	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/submit", "", token)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var settled *wizard.View
	for i := 0; i < 50 && settled == nil; i++ {
		msg = readMessage(t, conn)
		if msg.Type == MsgTypeSettled {
			view := payloadView(t, msg)
			settled = &view
		}
	}
	require.NotNil(t, settled, "stream never settled")
	assert.Equal(t, wizard.StatusComplete, settled.Status)
	require.NotNil(t, settled.Result)
	assert.Equal(t, "411001", settled.Result.Pincode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWizardStreamPing(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	token := s.signIn(t, "9876543210")
	v := s.createWizard(t, token, "product")

	conn, _, err := dialStream(t, srv, v.ID, token)
	require.NoError(t, err)
	readMessage(t, conn) // connected
	readMessage(t, conn) // snapshot

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "subscribe"}))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")
}

func TestWizardStreamRejectsStrangers(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	alice := s.signIn(t, "9876543210")
	bob := s.signIn(t, "9123456780")
	v := s.createWizard(t, alice, "product")

	_, resp, err := dialStream(t, srv, v.ID, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialStream(t, srv, v.ID, bob)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = dialStream(t, srv, "missing", alice)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
