package node

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/interfect/spartic/crypto"
	"github.com/interfect/spartic/metrics"
	"github.com/interfect/spartic/protocol"
)

// CreateGroupRequest lists the other participants of a new group by
// hex-encoded public key.
type CreateGroupRequest struct {
	Peers []string `json:"peers"`
}

// ParticipateRequest carries the payload for one round, base64-encoded.
// Payloads shorter than a block are zero-padded; a participant with
// nothing to say posts an empty payload. Who may write which bytes of a
// round is a contract between the group's members, agreed above this API.
type ParticipateRequest struct {
	Message string `json:"message"`
}

// ResultResponse returns one recovered round, base64-encoded.
type ResultResponse struct {
	Result string `json:"result"`
}

// StatusResponse summarizes the node.
type StatusResponse struct {
	PublicKey string             `json:"public_key"`
	Groups    []protocol.GroupID `json:"groups"`
}

// RegisterRoutes mounts the control API.
func (n *Node) RegisterRoutes(r chi.Router) {
	r.Get("/status", n.handleStatus)
	r.Route("/groups/{groupID}", func(r chi.Router) {
		r.Post("/", n.handleCreateGroup)
		r.Get("/", n.handleGroupStatus)
		r.Post("/participate", n.handleParticipate)
		r.Get("/result", n.handleResult)
		r.Post("/rotate", n.handleRotate)
	})
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		PublicKey: n.router.PublicKey().String(),
		Groups:    n.router.Groups(),
	})
}

func (n *Node) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	peers := make([]crypto.PublicKey, 0, len(req.Peers))
	for _, hexKey := range req.Peers {
		pk, err := crypto.NewPublicKeyFromString(hexKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid peer public key: "+hexKey)
			return
		}
		peers = append(peers, pk)
	}

	// Connection attempts outlive this request, so they must not inherit
	// its cancellation.
	if _, err := n.router.CreateSession(context.WithoutCancel(r.Context()), groupID, peers); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	n.log.Info("created session", "group", groupID, "peers", len(peers))
	metrics.Counter("spartic_sessions_created_total").Inc()

	status, _ := n.router.Status(groupID)
	writeJSON(w, http.StatusCreated, status)
}

func (n *Node) handleGroupStatus(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	status, found := n.router.Status(groupID)
	if !found {
		writeError(w, http.StatusNotFound, "no session for group")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (n *Node) handleParticipate(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	var req ParticipateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, "message is not valid base64")
		return
	}
	if len(payload) > protocol.BlockSize {
		writeError(w, http.StatusBadRequest, "message exceeds one block")
		return
	}

	block := make([]byte, protocol.BlockSize)
	copy(block, payload)

	if err := n.router.Participate(groupID, block); err != nil {
		status := http.StatusConflict
		if errors.Is(err, protocol.ErrNoCurrentRound) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	metrics.GroupCounter("spartic_rounds_participated_total", uint64(groupID)).Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (n *Node) handleResult(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	result, found := n.router.PopResult(groupID)
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	metrics.GroupCounter("spartic_results_delivered_total", uint64(groupID)).Inc()
	writeJSON(w, http.StatusOK, ResultResponse{Result: base64.StdEncoding.EncodeToString(result)})
}

func (n *Node) handleRotate(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	if err := n.router.RotateSecrets(groupID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	n.log.Info("rotated group secrets", "group", groupID)
	w.WriteHeader(http.StatusOK)
}

func groupIDParam(w http.ResponseWriter, r *http.Request) (protocol.GroupID, bool) {
	raw := chi.URLParam(r, "groupID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return 0, false
	}
	return protocol.GroupID(id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
