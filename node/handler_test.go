package node

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/protocol"
	"github.com/interfect/spartic/transport"
)

type testHarness struct {
	node   *Node
	server *httptest.Server
}

func newHarness(t *testing.T, net *transport.Network) *testHarness {
	t.Helper()

	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	tr := net.NewTransport(id)
	t.Cleanup(func() { tr.Close() })

	cfg := DefaultConfig()
	cfg.DrainInterval = Duration(5 * time.Millisecond)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := New(log, cfg, tr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	n.Start(ctx)

	mux := chi.NewRouter()
	n.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testHarness{node: n, server: server}
}

func (h *testHarness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (h *testHarness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	return resp
}

func (h *testHarness) publicKey() string {
	return h.node.Router().PublicKey().String()
}

func TestStatusEndpoint(t *testing.T) {
	h := newHarness(t, transport.NewNetwork())

	resp := h.get(t, "/status")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, h.publicKey(), status.PublicKey)
	require.Empty(t, status.Groups)
}

func TestCreateGroupValidation(t *testing.T) {
	h := newHarness(t, transport.NewNetwork())

	resp := h.post(t, "/groups/1", CreateGroupRequest{Peers: []string{"zzzz"}})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.get(t, "/groups/notanumber")
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.get(t, "/groups/99")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTwoNodesFullRoundOverHTTP(t *testing.T) {
	net := transport.NewNetwork()
	a := newHarness(t, net)
	b := newHarness(t, net)

	// Each side creates the group naming the other.
	resp := a.post(t, "/groups/7", CreateGroupRequest{Peers: []string{b.publicKey()}})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = b.post(t, "/groups/7", CreateGroupRequest{Peers: []string{a.publicKey()}})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Key exchange happens on drain ticks.
	for _, h := range []*testHarness{a, b} {
		require.Eventually(t, func() bool {
			resp := h.get(t, "/groups/7")
			defer resp.Body.Close()
			var status struct {
				Running bool `json:"running"`
				Ready   bool `json:"ready_to_participate"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return false
			}
			return status.Running && status.Ready
		}, 5*time.Second, 10*time.Millisecond)
	}

	// a speaks, b contributes cover traffic.
	secret := []byte("nobody knows it was me")
	resp = a.post(t, "/groups/7/participate", ParticipateRequest{
		Message: base64.StdEncoding.EncodeToString(secret),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = b.post(t, "/groups/7/participate", ParticipateRequest{Message: ""})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Both recover the same padded block.
	want := make([]byte, protocol.BlockSize)
	copy(want, secret)
	for _, h := range []*testHarness{a, b} {
		var got []byte
		require.Eventually(t, func() bool {
			resp := h.get(t, "/groups/7/result")
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return false
			}
			var result ResultResponse
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return false
			}
			decoded, err := base64.StdEncoding.DecodeString(result.Result)
			if err != nil {
				return false
			}
			got = decoded
			return true
		}, 5*time.Second, 10*time.Millisecond)
		require.Equal(t, want, got)
	}
}

func TestParticipateErrors(t *testing.T) {
	h := newHarness(t, transport.NewNetwork())

	// No session yet.
	resp := h.post(t, "/groups/3/participate", ParticipateRequest{Message: ""})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Session exists but key exchange has not completed.
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	resp = h.post(t, "/groups/3", CreateGroupRequest{Peers: []string{id.PublicKey().String()}})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.post(t, "/groups/3/participate", ParticipateRequest{Message: ""})
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Oversized payload.
	big := base64.StdEncoding.EncodeToString(make([]byte, protocol.BlockSize+1))
	resp = h.post(t, "/groups/3/participate", ParticipateRequest{Message: big})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResultEmpty(t *testing.T) {
	h := newHarness(t, transport.NewNetwork())

	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	resp := h.post(t, fmt.Sprintf("/groups/%d", 5), CreateGroupRequest{Peers: []string{id.PublicKey().String()}})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.get(t, "/groups/5/result")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
