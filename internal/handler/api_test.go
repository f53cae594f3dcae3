package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localjobs/hiring-platform/internal/broker"
	"github.com/localjobs/hiring-platform/internal/middleware"
	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/service"
	"github.com/localjobs/hiring-platform/internal/store"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	log := logger.NewNop()
	st := store.NewMemory()
	hub := broker.NewMemoryHub()
	t.Cleanup(func() { _ = hub.Close() })

	convs := service.NewConversationService(st, log)
	msgs := service.NewMessageChannel(st, hub, convs, log)
	hiring := service.NewHiringService(st, log)
	notifier := service.NewNotifier(convs, msgs, log)
	hiring.SetAcceptedHandler(notifier.HandleAccepted)

	jobH := NewJobHandler(hiring, log)
	appH := NewApplicationHandler(hiring, log)
	convH := NewConversationHandler(convs, log)
	msgH := NewMessageHandler(msgs, log)
	streamH := NewStreamHandler(msgs, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testSecret))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobH.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", jobH.Get)
				r.Delete("/", jobH.Delete)
				r.Patch("/status", jobH.UpdateStatus)
				r.Post("/applications", appH.Submit)
				r.Get("/applications", appH.ListByJob)
			})
		})

		r.Route("/applications", func(r chi.Router) {
			r.Get("/mine", appH.ListMine)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/accept", appH.Accept)
				r.Post("/reject", appH.Reject)
				r.Post("/conversation", convH.Open)
			})
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", convH.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", msgH.List)
				r.Post("/messages", msgH.Send)
				r.Get("/stream", streamH.Stream)
			})
		})
	})
	return r
}

func signToken(t *testing.T, userID, name string) string {
	t.Helper()
	claims := &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name: name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestAuth_Rejections(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", "", model.CreateJobRequest{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs", "not-a-token", model.CreateJobRequest{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with the wrong key.
	claims := &middleware.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs", forged, model.CreateJobRequest{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHiringFlow(t *testing.T) {
	router := newTestRouter(t)
	employer := signToken(t, "employer-1", "Pat")
	workerA := signToken(t, "worker-a", "Alex")
	workerB := signToken(t, "worker-b", "Blake")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", employer, model.CreateJobRequest{Title: "Move a couch"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.Job
	decode(t, rec, &job)
	assert.Equal(t, 1, job.WorkersNeeded)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+job.ID+"/applications", workerA, model.SubmitApplicationRequest{CoverMessage: "strong back"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var appA model.Application
	decode(t, rec, &appA)
	assert.Equal(t, "Alex", appA.WorkerName)
	assert.Equal(t, model.ApplicationStatusPending, appA.Status)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+job.ID+"/applications", workerB, model.SubmitApplicationRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)
	var appB model.Application
	decode(t, rec, &appB)

	// Duplicate application conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+job.ID+"/applications", workerA, model.SubmitApplicationRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Only the employer sees the applicant list.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+job.ID+"/applications", workerA, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+job.ID+"/applications", employer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Applications []model.Application `json:"applications"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Applications, 2)

	// A non-owner cannot decide.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+appA.ID+"/accept", workerB, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Accepting A fills the quota and auto-rejects B.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+appA.ID+"/accept", employer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result model.AcceptResult
	decode(t, rec, &result)
	assert.True(t, result.QuotaFilled)
	require.Len(t, result.AutoRejected, 1)
	assert.Equal(t, appB.ID, result.AutoRejected[0].ID)

	// B's fate is already decided.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+appB.ID+"/accept", employer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The job moved to assigned.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+job.ID, employer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &job)
	assert.Equal(t, model.JobStatusAssigned, job.Status)

	// Deleting a job with accepted work conflicts.
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/jobs/"+job.ID, employer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t)
	token := signToken(t, "user-1", "")

	// Malformed id.
	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown id.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Validation failure.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs", token, model.CreateJobRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagingFlow(t *testing.T) {
	router := newTestRouter(t)
	employer := signToken(t, "employer-1", "Pat")
	worker := signToken(t, "worker-a", "Alex")
	stranger := signToken(t, "worker-z", "Zoe")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", employer, model.CreateJobRequest{Title: "Paint the shed"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.Job
	decode(t, rec, &job)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+job.ID+"/applications", worker, model.SubmitApplicationRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)
	var app model.Application
	decode(t, rec, &app)

	// Opening the conversation is idempotent across participants.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+app.ID+"/conversation", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conv model.Conversation
	decode(t, rec, &conv)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+app.ID+"/conversation", employer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convAgain model.Conversation
	decode(t, rec, &convAgain)
	assert.Equal(t, conv.ID, convAgain.ID)

	// Outsiders get nothing.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+app.ID+"/conversation", stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for i := 0; i < 3; i++ {
		sender := worker
		if i%2 == 1 {
			sender = employer
		}
		rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", sender,
			model.SendMessageRequest{Content: fmt.Sprintf("msg %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// Empty content is a validation error.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", worker,
		model.SendMessageRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Full history.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", employer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history model.ListMessagesResponse
	decode(t, rec, &history)
	require.Len(t, history.Messages, 3)
	assert.Equal(t, uint64(3), history.LastSequence)

	// Poll from a cursor.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?after_sequence=1", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var poll model.ListMessagesResponse
	decode(t, rec, &poll)
	require.Len(t, poll.Messages, 2)
	assert.Equal(t, uint64(2), poll.Messages[0].Sequence)
	assert.Equal(t, uint64(3), poll.LastSequence)

	// Inbox for each side.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/conversations", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Conversations []model.ConversationSummary `json:"conversations"`
	}
	decode(t, rec, &inbox)
	require.Len(t, inbox.Conversations, 1)
	assert.Equal(t, "msg 2", inbox.Conversations[0].LastMessage.Content)
}

func TestStream_ReplayThenLive(t *testing.T) {
	router := newTestRouter(t)
	employer := signToken(t, "employer-1", "Pat")
	worker := signToken(t, "worker-a", "Alex")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", employer, model.CreateJobRequest{Title: "Rake leaves"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.Job
	decode(t, rec, &job)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+job.ID+"/applications", worker, model.SubmitApplicationRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)
	var app model.Application
	decode(t, rec, &app)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/applications/"+app.ID+"/conversation", worker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conv model.Conversation
	decode(t, rec, &conv)

	// Two messages exist before the stream connects.
	for _, content := range []string{"first", "second"} {
		rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", worker,
			model.SendMessageRequest{Content: content})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	server := httptest.NewServer(router)
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/conversations/"+conv.ID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+employer)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
	}()

	expect := func(want string) {
		t.Helper()
		select {
		case got := <-events:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q event", want)
		}
	}

	expect("connected")
	expect("message")
	expect("message")
	expect("replay_complete")

	// A message sent while connected arrives live.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", worker,
		model.SendMessageRequest{Content: "third"})
	require.Equal(t, http.StatusCreated, rec.Code)
	expect("message")
}
