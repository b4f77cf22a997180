package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consult-service/internal/models"
)

var (
	storeSelf  = models.Participant{ID: 7, Name: "Rani"}
	storePeer  = models.Participant{ID: 12, Name: "drg. Sari"}
	storeRoom  = "room-abc"
	storeEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func confirmedMessage(id int, from models.Participant, text string, at time.Time) models.Message {
	return models.Message{ID: id, RoomID: storeRoom, From: from, Text: text, CreatedAt: at}
}

func TestSeedOrdersByCreatedAt(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)
	store.Seed([]models.Message{
		confirmedMessage(3, storePeer, "third", storeEpoch.Add(2*time.Minute)),
		confirmedMessage(1, storeSelf, "first", storeEpoch),
		confirmedMessage(2, storePeer, "second", storeEpoch.Add(time.Minute)),
	})

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
}

func TestAppendOptimisticIsVisibleImmediately(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)

	pending := store.AppendOptimistic("can I reschedule?")

	require.Equal(t, 1, store.Len())
	assert.True(t, pending.Pending())
	assert.NotEmpty(t, pending.CorrelationID)
	assert.Equal(t, storeSelf, pending.From)
	assert.Equal(t, "can I reschedule?", store.Messages()[0].Text)
}

func TestOnRemoteReconcilesByCorrelationID(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)
	pending := store.AppendOptimistic("hello")

	echo := confirmedMessage(42, storeSelf, "hello", storeEpoch)
	echo.CorrelationID = pending.CorrelationID
	store.OnRemote(echo)

	msgs := store.Messages()
	require.Len(t, msgs, 1, "confirmed echo must replace the pending entry, not duplicate it")
	assert.Equal(t, 42, msgs[0].ID)
	assert.False(t, msgs[0].Pending())
}

func TestOnRemoteDistinguishesIdenticalText(t *testing.T) {
	// Same sender, same text, no matching correlation id: must append,
	// never be mistaken for the optimistic entry.
	store := NewMessageStore(storeRoom, storeSelf)
	store.AppendOptimistic("ok")

	remote := confirmedMessage(9, storeSelf, "ok", storeEpoch)
	remote.CorrelationID = "temp-someone-elses-send"
	store.OnRemote(remote)

	assert.Equal(t, 2, store.Len())
}

func TestOnRemoteIgnoresOtherRooms(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)

	other := confirmedMessage(5, storePeer, "wrong room", storeEpoch)
	other.RoomID = "room-other"
	store.OnRemote(other)

	assert.Equal(t, 0, store.Len())
}

func TestRollbackRemovesPendingAndReturnsText(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)
	store.Seed([]models.Message{confirmedMessage(1, storePeer, "hi", storeEpoch)})
	pending := store.AppendOptimistic("lost in transit")

	text, ok := store.Rollback(pending.CorrelationID)

	require.True(t, ok)
	assert.Equal(t, "lost in transit", text)
	assert.Equal(t, 1, store.Len())
}

func TestRollbackMissesConfirmedEntries(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)
	pending := store.AppendOptimistic("hello")
	echo := confirmedMessage(42, storeSelf, "hello", storeEpoch)
	echo.CorrelationID = pending.CorrelationID
	store.OnRemote(echo)

	_, ok := store.Rollback(pending.CorrelationID)

	assert.False(t, ok, "a confirmed message must never be rolled back")
	assert.Equal(t, 1, store.Len())
}

func TestOutOfOrderArrivalsRenderChronologically(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)
	store.OnRemote(confirmedMessage(2, storePeer, "second", storeEpoch.Add(time.Minute)))
	store.OnRemote(confirmedMessage(1, storePeer, "first", storeEpoch))
	store.OnRemote(confirmedMessage(3, storePeer, "third", storeEpoch.Add(2*time.Minute)))

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	store := NewMessageStore(storeRoom, storeSelf)
	store.OnRemote(confirmedMessage(1, storePeer, "a", storeEpoch))
	store.OnRemote(confirmedMessage(2, storePeer, "b", storeEpoch))
	store.OnRemote(confirmedMessage(3, storePeer, "c", storeEpoch))

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)
	assert.Equal(t, "c", msgs[2].Text)
}
