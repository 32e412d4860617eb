package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

func TestToChatLogEntry(t *testing.T) {
	m := domain.Message{
		ID: "m1", ContactID: "c1", Content: "halo",
		Status: domain.StatusDelivered, Direction: domain.DirectionOutgoing,
		Timestamp: time.Date(2026, 10, 15, 7, 30, 0, 123_000_000, time.UTC).UnixMilli(),
	}
	e := ToChatLogEntry(m)
	assert.True(t, e.IsSender)
	assert.Equal(t, "2026-10-15T07:30:00.123Z", e.Time)
	assert.Equal(t, domain.TypeText, e.Type)
	assert.Equal(t, MessageFeedback{IsSent: true, IsDelivered: true, IsSeen: false}, e.Feedback)
	assert.Nil(t, e.InteractiveData)

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "interactiveData")
	assert.NotContains(t, string(b), "mediaUrl")
}

func TestToChatLogEntry_TimeFallbacks(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	legacy := ToChatLogEntry(domain.Message{Timestamp: 1_700_000_000})
	assert.Equal(t, "2023-11-14T22:13:20.000Z", legacy.Time)

	missing := ToChatLogEntry(domain.Message{CreatedAt: created})
	assert.Equal(t, "2026-01-02T03:04:05.000Z", missing.Time)
}

func TestToChatMessage(t *testing.T) {
	uid := "u1"
	m := domain.Message{
		ID: "m1", ContactID: "c1", UserID: &uid, Status: domain.StatusRead,
		InteractiveData: datatypes.JSON(`null`),
	}
	cm := ToChatMessage(m)
	assert.Equal(t, "u1", cm.SenderID)
	assert.Equal(t, domain.DirectionIncoming, cm.Direction)
	assert.True(t, cm.Feedback.IsSeen)
	assert.Nil(t, cm.InteractiveData)

	m.UserID = nil
	m.InteractiveData = datatypes.JSON(` {"type":"list_reply"} `)
	cm = ToChatMessage(m)
	assert.Equal(t, "c1", cm.SenderID)
	assert.JSONEq(t, `{"type":"list_reply"}`, string(cm.InteractiveData))
}

func TestToChatContact(t *testing.T) {
	pic := "https://cdn.test/p.jpg"
	c := ToChatContact(domain.Contact{ID: "a", Name: strp(" "), WaID: strp("6281"), ProfilePicURL: &pic, PreferAgent: true})
	assert.Equal(t, "6281", c.FullName)
	assert.Equal(t, "Contact", c.Role)
	assert.Equal(t, "offline", c.Status)
	assert.Equal(t, &pic, c.Avatar)
	assert.True(t, c.PreferAgent)
	assert.Zero(t, c.UnseenMsgs)

	assert.NotNil(t, ToChatContacts(nil))
	assert.NotNil(t, ToChatLog(nil))
}
