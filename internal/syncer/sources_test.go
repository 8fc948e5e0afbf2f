package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelSource_FireDropsWhenFull(t *testing.T) {
	src := NewChannelSource()
	for i := 0; i < 4; i++ {
		assert.True(t, src.Fire(TriggerManual))
	}
	assert.False(t, src.Fire(TriggerManual))
}

func TestVisibilitySource_OnlyFiresWhenBecomingVisible(t *testing.T) {
	src := NewVisibilitySource()
	assert.True(t, src.Visible())

	assert.False(t, src.SetVisible(true))
	assert.False(t, src.SetVisible(false))
	assert.False(t, src.Visible())
	assert.False(t, src.SetVisible(false))
	assert.True(t, src.SetVisible(true))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Trigger, 1)
	go src.Watch(ctx, func(t Trigger) {
		got <- t
		cancel()
	})

	select {
	case trig := <-got:
		assert.Equal(t, TriggerVisibility, trig)
	case <-time.After(2 * time.Second):
		t.Fatal("visibility trigger not delivered")
	}
}
