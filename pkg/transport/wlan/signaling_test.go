package wlan

import (
	"context"
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalingRoundTrip(t *testing.T) {
	answered := make(chan offerPayload, 1)
	srv, err := newSignalingServer(func(ctx context.Context, offer offerPayload) (answerPayload, error) {
		answered <- offer
		return answerPayload{
			Identity: "receiver-1",
			Name:     "Receiver",
			Answer:   webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"},
		}, nil
	})
	require.NoError(t, err)
	defer srv.Close()
	require.NotZero(t, srv.Port())

	endpoint := fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
	answer, err := sendOffer(context.Background(), endpoint, offerPayload{
		Identity: "sender-1",
		Name:     "Sender",
		Offer:    webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"},
	})
	require.NoError(t, err)

	assert.Equal(t, "receiver-1", answer.Identity)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Answer.Type)
	assert.Equal(t, "v=0 answer", answer.Answer.SDP)

	got := <-answered
	assert.Equal(t, "sender-1", got.Identity)
	assert.Equal(t, "v=0 offer", got.Offer.SDP)
}

func TestSendOffer_RejectedByReceiver(t *testing.T) {
	srv, err := newSignalingServer(func(ctx context.Context, offer offerPayload) (answerPayload, error) {
		return answerPayload{}, fmt.Errorf("already in a session")
	})
	require.NoError(t, err)
	defer srv.Close()

	endpoint := fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
	_, err = sendOffer(context.Background(), endpoint, offerPayload{Identity: "sender-1"})
	assert.Error(t, err)
}

func TestSendOffer_UnreachableEndpoint(t *testing.T) {
	// A closed port fails fast rather than hanging for the full timeout.
	_, err := sendOffer(context.Background(), "http://127.0.0.1:1", offerPayload{Identity: "x"})
	assert.Error(t, err)
}
