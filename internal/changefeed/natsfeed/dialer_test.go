package natsfeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDialer_Defaults(t *testing.T) {
	d := NewDialer("nats://localhost:4222", "", time.Second)
	assert.Equal(t, DefaultSubject, d.Subject)
	assert.Equal(t, "hazardwatch-feed", d.Name)
	assert.Equal(t, 256, d.BufferSize)

	d = NewDialer("nats://localhost:4222", "city.hazards", 0)
	assert.Equal(t, "city.hazards", d.Subject)
}

func TestDial_Unreachable(t *testing.T) {
	d := NewDialer("nats://127.0.0.1:1", "", 200*time.Millisecond)
	conn, err := d.Dial(context.Background())
	assert.Error(t, err)
	assert.Nil(t, conn)
}
