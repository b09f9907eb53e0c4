package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

func TestBackoff(t *testing.T) {
	require.Equal(t, 2*time.Second, backoff(time.Second, 30*time.Second))
	require.Equal(t, 30*time.Second, backoff(20*time.Second, 30*time.Second))
	require.Equal(t, 30*time.Second, backoff(30*time.Second, 30*time.Second))
}

func TestToTaskMessage(t *testing.T) {
	id := uuid.New()
	body, err := json.Marshal(domain.Task{JobID: id, UploadPath: "u.jpg", ResultPath: "r.jpg"})
	require.NoError(t, err)

	msg, err := toTaskMessage(nil, amqp.Delivery{Body: body, DeliveryTag: 7})
	require.NoError(t, err)
	require.Equal(t, id, msg.Task.JobID)
	require.Equal(t, "u.jpg", msg.Task.UploadPath)

	_, err = toTaskMessage(nil, amqp.Delivery{Body: []byte("{")})
	require.Error(t, err)

	_, err = toTaskMessage(nil, amqp.Delivery{Body: []byte(`{"job_id":"` + id.String() + `"}`)})
	require.Error(t, err)
}
