package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSectionsPublishTask(t *testing.T) {
	task, err := NewSectionsPublishTask(3, "cid", time.Second)
	require.NoError(t, err)
	assert.Equal(t, TypeSectionsPublish, task.Type())

	payload, err := ParseSectionsPublishPayload(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, SectionsPublishPayload{Revision: 3, CorrelationID: "cid"}, payload)

	_, err = NewSectionsPublishTask(0, "cid", 0)
	assert.Error(t, err)
}

func TestParseSectionsPublishPayload_Rejects(t *testing.T) {
	for _, raw := range []string{"", "{", `{"correlation_id":"x"}`, `{"revision":-2}`} {
		_, err := ParseSectionsPublishPayload([]byte(raw))
		assert.Error(t, err, raw)
	}
}
