package wlan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"
)

// The signaling exchange is a single non-trickle HTTP round trip: the
// sender posts its fully gathered offer to the receiver's announced port
// and the answer comes back in the response body. With mDNS ICE candidates
// both sides resolve each other on the local link without external servers.

const (
	offerPath      = "/offer"
	signalTimeout  = 15 * time.Second
	maxSignalBytes = 1 << 20
)

type offerPayload struct {
	Identity string                    `json:"identity"`
	Name     string                    `json:"name"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

type answerPayload struct {
	Identity string                    `json:"identity"`
	Name     string                    `json:"name"`
	Answer   webrtc.SessionDescription `json:"answer"`
}

// sendOffer posts the local offer to a remote signaling endpoint and
// returns the remote answer.
func sendOffer(ctx context.Context, endpoint string, payload offerPayload) (answerPayload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return answerPayload{}, fmt.Errorf("failed to marshal offer payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, signalTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint+offerPath, bytes.NewReader(body))
	if err != nil {
		return answerPayload{}, fmt.Errorf("failed to create offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return answerPayload{}, fmt.Errorf("failed to reach signaling endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return answerPayload{}, fmt.Errorf("signaling endpoint returned %s", resp.Status)
	}

	var answer answerPayload
	if err := json.NewDecoder(http.MaxBytesReader(nil, resp.Body, maxSignalBytes)).Decode(&answer); err != nil {
		return answerPayload{}, fmt.Errorf("failed to decode answer: %w", err)
	}
	return answer, nil
}

// answerFunc processes one remote offer and produces the local answer.
type answerFunc func(ctx context.Context, offer offerPayload) (answerPayload, error)

// signalingServer accepts offers on /offer for the receiving side.
type signalingServer struct {
	listener net.Listener
	server   *http.Server
}

// newSignalingServer binds an ephemeral TCP port and serves the offer
// endpoint. The bound port is announced over mDNS.
func newSignalingServer(answer answerFunc) (*signalingServer, error) {
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind signaling port: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(offerPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var offer offerPayload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignalBytes)).Decode(&offer); err != nil {
			http.Error(w, "malformed offer", http.StatusBadRequest)
			return
		}
		resp, err := answer(r.Context(), offer)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, "failed to encode answer", http.StatusInternalServerError)
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: signalTimeout}
	go srv.Serve(ln)

	return &signalingServer{listener: ln, server: srv}, nil
}

// Port returns the bound signaling port.
func (s *signalingServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close shuts the server down and releases the socket.
func (s *signalingServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
