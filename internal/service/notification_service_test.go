package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/repository"
)

func newLocalNotificationService(t *testing.T) NotificationService {
	t.Helper()
	db := newTestDB(t)
	return NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, newTestValidator(), testLogger())
}

func TestNotificationServicePublishPersistsAndStreams(t *testing.T) {
	svc := newLocalNotificationService(t)
	ctx := context.Background()

	stream, cleanup := svc.Subscribe("teacher-1")
	defer cleanup()

	published, err := svc.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  "teacher-1",
		Type:    NotificationTypePlagiarismAlert,
		Title:   "<i>Plagiarism alert</i>",
		Message: "<b>Submission sub-1</b> flagged",
		Data:    map[string]interface{}{"submission_id": "sub-1"},
	})
	require.NoError(t, err)
	require.NotZero(t, published.ID)
	require.Equal(t, "Plagiarism alert", published.Title)
	require.Equal(t, "Submission sub-1 flagged", published.Message)

	select {
	case received := <-stream:
		require.Equal(t, published.ID, received.ID)
	case <-time.After(time.Second):
		t.Fatal("expected notification on subscriber stream")
	}

	page, err := svc.List(ctx, "teacher-1", dto.NotificationListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.EqualValues(t, 1, page.Unread)
	require.Equal(t, "sub-1", page.Items[0].Data["submission_id"])

	updated, err := svc.MarkRead(ctx, published.ID, "teacher-1")
	require.NoError(t, err)
	require.True(t, updated.Read)
	require.NotNil(t, updated.ReadAt)

	again, err := svc.MarkRead(ctx, published.ID, "teacher-1")
	require.NoError(t, err)
	require.True(t, again.Read)

	page, err = svc.List(ctx, "teacher-1", dto.NotificationListQuery{})
	require.NoError(t, err)
	require.Zero(t, page.Unread)
}

func TestNotificationServiceMarkReadScopedToOwner(t *testing.T) {
	svc := newLocalNotificationService(t)
	ctx := context.Background()

	published, err := svc.Publish(ctx, dto.NotificationCreateRequest{UserID: "teacher-1", Type: NotificationTypePlagiarismAlert, Message: "flagged"})
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, published.ID, "teacher-2")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = svc.MarkRead(ctx, published.ID, " ")
	require.ErrorIs(t, err, ErrNotificationUserRequired)
}

func TestNotificationServiceFiltersAndMarksAllRead(t *testing.T) {
	svc := newLocalNotificationService(t)
	ctx := context.Background()

	for _, payload := range []dto.NotificationCreateRequest{
		{UserID: "teacher-1", Type: NotificationTypePlagiarismAlert, Message: "sub-1 flagged"},
		{UserID: "teacher-1", Type: NotificationTypePlagiarismAlert, Message: "sub-2 flagged"},
		{UserID: "teacher-1", Type: "system", Message: "maintenance tonight"},
		{UserID: "teacher-2", Type: NotificationTypePlagiarismAlert, Message: "sub-3 flagged"},
	} {
		_, err := svc.Publish(ctx, payload)
		require.NoError(t, err)
	}

	alerts, err := svc.List(ctx, "teacher-1", dto.NotificationListQuery{Type: NotificationTypePlagiarismAlert})
	require.NoError(t, err)
	require.Len(t, alerts.Items, 2)
	require.EqualValues(t, 2, alerts.Unread)
	require.Equal(t, "sub-2 flagged", alerts.Items[0].Message)

	result, err := svc.MarkAllRead(ctx, "teacher-1", NotificationTypePlagiarismAlert)
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Updated)

	unread, err := svc.List(ctx, "teacher-1", dto.NotificationListQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	require.Equal(t, "system", unread.Items[0].Type)
	require.EqualValues(t, 1, unread.Unread)

	other, err := svc.List(ctx, "teacher-2", dto.NotificationListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 1, other.Unread)
}

func TestNotificationServiceListValidation(t *testing.T) {
	svc := newLocalNotificationService(t)

	_, err := svc.List(context.Background(), "", dto.NotificationListQuery{})
	require.ErrorIs(t, err, ErrNotificationUserRequired)

	_, err = svc.List(context.Background(), "teacher-1", dto.NotificationListQuery{Limit: 500})
	require.Error(t, err)
}

func TestNotificationServiceRejectsEmptyMessageAfterSanitizing(t *testing.T) {
	svc := newLocalNotificationService(t)

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  "teacher-1",
		Type:    NotificationTypePlagiarismAlert,
		Message: "<img src=x>",
	})
	require.ErrorIs(t, err, ErrNotificationEmpty)
}

func TestNotificationServiceSubscriptionCleanupIsIdempotent(t *testing.T) {
	svc := newLocalNotificationService(t)

	stream, cleanup := svc.Subscribe("teacher-1")
	cleanup()
	cleanup()

	_, open := <-stream
	require.False(t, open)
}

func TestNotificationServiceFullBufferDoesNotBlock(t *testing.T) {
	svc := newLocalNotificationService(t)
	ctx := context.Background()

	_, cleanup := svc.Subscribe("teacher-1")
	defer cleanup()

	for i := 0; i < notificationBufferSize+3; i++ {
		_, err := svc.Publish(ctx, dto.NotificationCreateRequest{UserID: "teacher-1", Type: NotificationTypePlagiarismAlert, Message: "flagged"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, "teacher-1", dto.NotificationListQuery{Limit: 100})
	require.NoError(t, err)
	require.Len(t, page.Items, notificationBufferSize+3)
}

func TestNotificationServiceIgnoresForeignEnvelopes(t *testing.T) {
	svc := newLocalNotificationService(t).(*notificationService)

	stream, cleanup := svc.Subscribe("teacher-1")
	defer cleanup()

	own, err := json.Marshal(notificationEnvelope{Version: notificationEnvelopeVersion, Origin: svc.nodeID, Notification: dto.NotificationResponse{ID: 1, UserID: "teacher-1"}})
	require.NoError(t, err)
	future, err := json.Marshal(notificationEnvelope{Version: notificationEnvelopeVersion + 1, Origin: "node-b", Notification: dto.NotificationResponse{ID: 2, UserID: "teacher-1"}})
	require.NoError(t, err)
	remote, err := json.Marshal(notificationEnvelope{Version: notificationEnvelopeVersion, Origin: "node-b", Notification: dto.NotificationResponse{ID: 3, UserID: "teacher-1"}})
	require.NoError(t, err)

	svc.receive([]byte("not-json"))
	svc.receive(own)
	svc.receive(future)
	svc.receive(remote)

	select {
	case received := <-stream:
		require.Equal(t, uint(3), received.ID)
	case <-time.After(time.Second):
		t.Fatal("expected the remote notification")
	}
	require.Len(t, stream, 0)
}

func TestNotificationServiceFansOutThroughRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	db := newTestDB(t)
	repo := repository.NewNotificationRepository(db)

	publisherClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer publisherClient.Close()
	subscriberClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer subscriberClient.Close()

	nodeA := NewNotificationService(repo, publisherClient, "tamanduai", nil, newTestValidator(), testLogger())
	nodeB := NewNotificationService(repo, subscriberClient, "tamanduai", nil, newTestValidator(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeB.Start(ctx)

	require.Eventually(t, func() bool {
		return mini.PubSubNumSub("tamanduai:notifications")["tamanduai:notifications"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	stream, cleanup := nodeB.Subscribe("teacher-1")
	defer cleanup()

	published, err := nodeA.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  "teacher-1",
		Type:    NotificationTypePlagiarismAlert,
		Message: "Submission sub-9 flagged",
	})
	require.NoError(t, err)

	select {
	case received := <-stream:
		require.Equal(t, published.ID, received.ID)
		require.Equal(t, "Submission sub-9 flagged", received.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification relayed from the other node")
	}
}
