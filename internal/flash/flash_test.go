package flash

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessengerCollects(t *testing.T) {
	ctx, bag := WithBag(context.Background())
	m := Messenger{}
	m.AddError(ctx, "blocked")
	m.AddSuccess(ctx, "done")

	require.Same(t, bag, FromContext(ctx))
	assert.Equal(t, []Message{
		{Level: LevelError, Text: "blocked"},
		{Level: LevelSuccess, Text: "done"},
	}, bag.Messages())
}

func TestMessengerWithoutBag(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.NotPanics(t, func() { Messenger{}.AddError(context.Background(), "dropped") })
}

func TestMessagesReturnsCopy(t *testing.T) {
	ctx, bag := WithBag(context.Background())
	Messenger{}.AddError(ctx, "one")
	got := bag.Messages()
	got[0].Text = "changed"
	assert.Equal(t, "one", bag.Messages()[0].Text)
}
