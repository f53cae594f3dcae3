package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/localjobs/hiring-platform/internal/model"
)

// Memory is an in-memory Store. A single mutex guards all state, which
// trivially serializes the quota check-and-set per job. It is the default
// store and the substrate for tests.
type Memory struct {
	mu             sync.RWMutex
	jobs           map[string]*model.Job
	apps           map[string]*model.Application
	appsByJob      map[string][]string
	appByJobWorker map[string]string
	convs          map[string]*model.Conversation
	convByApp      map[string]string
	msgs           map[string][]model.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:           make(map[string]*model.Job),
		apps:           make(map[string]*model.Application),
		appsByJob:      make(map[string][]string),
		appByJobWorker: make(map[string]string),
		convs:          make(map[string]*model.Conversation),
		convByApp:      make(map[string]string),
		msgs:           make(map[string][]model.Message),
	}
}

func jobWorkerKey(jobID, workerID string) string {
	return jobID + "/" + workerID
}

// CreateJob stores a new job.
func (m *Memory) CreateJob(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return model.ErrConflict
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// GetJob retrieves a job by id.
func (m *Memory) GetJob(ctx context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// UpdateJobStatus sets a job's status.
func (m *Memory) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return model.ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	return nil
}

// DeleteJob removes a job and its applications unless any is accepted.
func (m *Memory) DeleteJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return model.ErrNotFound
	}
	for _, appID := range m.appsByJob[id] {
		if m.apps[appID].Status == model.ApplicationStatusAccepted {
			return model.ErrConflict
		}
	}
	for _, appID := range m.appsByJob[id] {
		app := m.apps[appID]
		delete(m.appByJobWorker, jobWorkerKey(app.JobID, app.WorkerID))
		delete(m.apps, appID)
	}
	delete(m.appsByJob, id)
	delete(m.jobs, id)
	return nil
}

// CreateApplication stores a new application, enforcing one per (job, worker).
func (m *Memory) CreateApplication(ctx context.Context, app *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[app.JobID]; !ok {
		return model.ErrNotFound
	}
	key := jobWorkerKey(app.JobID, app.WorkerID)
	if _, exists := m.appByJobWorker[key]; exists {
		return model.ErrDuplicateApplication
	}
	cp := *app
	m.apps[app.ID] = &cp
	m.appsByJob[app.JobID] = append(m.appsByJob[app.JobID], app.ID)
	m.appByJobWorker[key] = app.ID
	return nil
}

// GetApplication retrieves an application by id.
func (m *Memory) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

// ListApplicationsByJob returns all applications for a job in creation order.
func (m *Memory) ListApplicationsByJob(ctx context.Context, jobID string) ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.jobs[jobID]; !ok {
		return nil, model.ErrNotFound
	}
	apps := make([]model.Application, 0, len(m.appsByJob[jobID]))
	for _, appID := range m.appsByJob[jobID] {
		apps = append(apps, *m.apps[appID])
	}
	return apps, nil
}

// ListApplicationsByWorker returns a worker's applications across jobs in
// (created_at, id) order.
func (m *Memory) ListApplicationsByWorker(ctx context.Context, workerID string) ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var apps []model.Application
	for _, app := range m.apps {
		if app.WorkerID == workerID {
			apps = append(apps, *app)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].ID < apps[j].ID
	})
	return apps, nil
}

// RejectIfPending marks an application rejected while it is still pending.
// The check and the write run under the store lock, so a concurrent accept
// that commits first cannot be overwritten.
func (m *Memory) RejectIfPending(ctx context.Context, id string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, model.ErrAlreadyDecided
	}
	app.Status = model.ApplicationStatusRejected
	app.UpdatedAt = time.Now()
	cp := *app
	return &cp, nil
}

// AcceptWithinQuota performs the accept decision atomically under the store
// lock: no other accept or reject on the same job can interleave between the
// count check and the status writes.
func (m *Memory) AcceptWithinQuota(ctx context.Context, applicationID string) (*model.AcceptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[applicationID]
	if !ok {
		return nil, model.ErrNotFound
	}
	job, ok := m.jobs[app.JobID]
	if !ok {
		return nil, model.ErrNotFound
	}

	// Quota before pending: a racer whose application the cascade just
	// rejected observes QuotaExceeded, not AlreadyDecided.
	accepted := 0
	for _, appID := range m.appsByJob[job.ID] {
		if m.apps[appID].Status == model.ApplicationStatusAccepted {
			accepted++
		}
	}
	if accepted >= job.WorkersNeeded {
		return nil, model.ErrQuotaExceeded
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, model.ErrAlreadyDecided
	}

	now := time.Now()
	app.Status = model.ApplicationStatusAccepted
	app.UpdatedAt = now
	accepted++

	result := &model.AcceptResult{}
	if accepted == job.WorkersNeeded {
		result.QuotaFilled = true
		for _, appID := range m.appsByJob[job.ID] {
			other := m.apps[appID]
			if other.Status == model.ApplicationStatusPending {
				other.Status = model.ApplicationStatusRejected
				other.UpdatedAt = now
				result.AutoRejected = append(result.AutoRejected, *other)
			}
		}
		job.Status = model.JobStatusAssigned
		job.UpdatedAt = now
	}

	cp := *app
	result.Application = &cp
	return result, nil
}

// CountAccepted returns the number of accepted applications for a job.
func (m *Memory) CountAccepted(ctx context.Context, jobID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.jobs[jobID]; !ok {
		return 0, model.ErrNotFound
	}
	accepted := 0
	for _, appID := range m.appsByJob[jobID] {
		if m.apps[appID].Status == model.ApplicationStatusAccepted {
			accepted++
		}
	}
	return accepted, nil
}

// GetOrCreateConversation is insert-or-fetch keyed by application id. The
// caller supplies the candidate id; if another caller won the race the
// existing conversation is returned and the candidate id is discarded.
func (m *Memory) GetOrCreateConversation(ctx context.Context, applicationID, newID string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[applicationID]; !ok {
		return nil, model.ErrNotFound
	}
	if convID, exists := m.convByApp[applicationID]; exists {
		cp := *m.convs[convID]
		return &cp, nil
	}
	conv := &model.Conversation{
		ID:            newID,
		ApplicationID: applicationID,
		CreatedAt:     time.Now(),
	}
	m.convs[conv.ID] = conv
	m.convByApp[applicationID] = conv.ID
	cp := *conv
	return &cp, nil
}

// GetConversation retrieves a conversation by id.
func (m *Memory) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.convs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

// GetConversationByApplication retrieves the conversation for an application.
func (m *Memory) GetConversationByApplication(ctx context.Context, applicationID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	convID, ok := m.convByApp[applicationID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m.convs[convID]
	return &cp, nil
}

// ListConversationsForUser returns conversations where the user is the
// application's worker or the job's employer, newest first.
func (m *Memory) ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range m.convs {
		app, ok := m.apps[conv.ApplicationID]
		if !ok {
			continue
		}
		job := m.jobs[app.JobID]
		if app.WorkerID == userID || (job != nil && job.EmployerID == userID) {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

// AppendMessage appends a message and assigns its sequence. Appends are
// serialized under the store lock, so sequence order matches the
// (created_at, id) order.
func (m *Memory) AppendMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.convs[msg.ConversationID]; !ok {
		return model.ErrNotFound
	}
	msg.Sequence = uint64(len(m.msgs[msg.ConversationID])) + 1
	m.msgs[msg.ConversationID] = append(m.msgs[msg.ConversationID], *msg)
	return nil
}

// ListMessages returns messages after the given sequence cursor.
func (m *Memory) ListMessages(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.convs[conversationID]; !ok {
		return nil, model.ErrNotFound
	}
	all := m.msgs[conversationID]
	if afterSeq > uint64(len(all)) {
		return nil, nil
	}
	rest := all[afterSeq:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]model.Message, len(rest))
	copy(out, rest)
	return out, nil
}

// LastMessage returns the newest message in a conversation, or nil.
func (m *Memory) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.convs[conversationID]; !ok {
		return nil, model.ErrNotFound
	}
	all := m.msgs[conversationID]
	if len(all) == 0 {
		return nil, nil
	}
	cp := all[len(all)-1]
	return &cp, nil
}
