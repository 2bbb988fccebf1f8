package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSendgridSenderPostsMessage(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/mail/send", r.URL.Path)
		require.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewSendgridSender(Config{APIKey: "sg-key", Host: server.URL, FromAddress: "noreply@tamanduai.test", FromName: "TamanduAI"}, zerolog.Nop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), Message{
		ToAddress: "teacher@school.test",
		ToName:    "Prof. Ana",
		Subject:   "Possible plagiarism detected",
		Text:      "Submission sub-1 scored 85%",
	})
	require.NoError(t, err)

	personalizations := captured["personalizations"].([]interface{})
	require.Len(t, personalizations, 1)
	first := personalizations[0].(map[string]interface{})
	require.Equal(t, "[TamanduAI] Possible plagiarism detected", first["subject"])
	to := first["to"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "teacher@school.test", to["email"])
}

func TestSendgridSenderReportsRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	sender, err := NewSendgridSender(Config{APIKey: "sg-key", Host: server.URL, FromAddress: "noreply@tamanduai.test"}, zerolog.Nop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), Message{ToAddress: "teacher@school.test", Subject: "hi", Text: "hi"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestSendgridSenderHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	sender, err := NewSendgridSender(Config{APIKey: "sg-key", Host: server.URL, FromAddress: "noreply@tamanduai.test", Timeout: 30 * time.Second}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	err = sender.Send(ctx, Message{ToAddress: "teacher@school.test", Subject: "hi", Text: "hi"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(started), 5*time.Second)
}

func TestSendgridSenderRequiresRecipient(t *testing.T) {
	sender, err := NewSendgridSender(Config{APIKey: "sg-key", FromAddress: "noreply@tamanduai.test"}, zerolog.Nop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), Message{Subject: "hi"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNewSendgridSenderValidatesConfig(t *testing.T) {
	_, err := NewSendgridSender(Config{FromAddress: "noreply@tamanduai.test"}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewSendgridSender(Config{APIKey: "sg-key"}, zerolog.Nop())
	require.Error(t, err)
}
