package cluster

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{NodeID: "n1", ClusterName: "c", BindPort: 7946, HeartbeatInterval: 5}, false},
		{"missingNodeID", Config{ClusterName: "c", BindPort: 7946, HeartbeatInterval: 5}, true},
		{"missingClusterName", Config{NodeID: "n1", BindPort: 7946, HeartbeatInterval: 5}, true},
		{"badPort", Config{NodeID: "n1", ClusterName: "c", BindPort: 0, HeartbeatInterval: 5}, true},
		{"badHeartbeat", Config{NodeID: "n1", ClusterName: "c", BindPort: 7946, HeartbeatInterval: 0}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfig(tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMutationEventGobRoundTrip(t *testing.T) {
	original := MutationEvent{
		Op:            OpPut,
		Item:          []byte("some-key"),
		OriginNodeID:  "node-a",
		CorrelationID: "corr-1",
	}

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(&original))

	var decoded MutationEvent
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))

	require.Equal(t, original.Op, decoded.Op)
	require.Equal(t, original.Item, decoded.Item)
	require.Equal(t, original.OriginNodeID, decoded.OriginNodeID)
	require.Equal(t, original.CorrelationID, decoded.CorrelationID)
}

func TestGenerateNodeIDIsNonEmpty(t *testing.T) {
	require.NotEmpty(t, GenerateNodeID())
}
