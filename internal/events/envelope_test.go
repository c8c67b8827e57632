package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(EventUserJoined, PresencePayload{Username: "alice", Message: "alice joined the chat"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"user:joined","data":{"username":"alice","message":"alice joined the chat"}}`, string(frame))

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, EventUserJoined, env.Event)

	var p PresencePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "alice", p.Username)
}

func TestEncodeWithoutData(t *testing.T) {
	frame, err := Encode(EventPong, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pong"}`, string(frame))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
