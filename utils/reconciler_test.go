package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/models"
)

type fakeReconcileStore struct {
	mu       sync.Mutex
	attempts map[string]*models.ContactAttempt

	leadStatus map[uint]models.LeadStatus
	notes      map[uint][]string
	pending    map[uint]int64
	smsEvents  []*models.SmsDeliveryEvent

	// conflicts forces the next N guarded updates to report a lost race;
	// vanishOnConflict also deletes the row so the reload comes back empty.
	conflicts        int
	vanishOnConflict bool
}

func newFakeReconcileStore() *fakeReconcileStore {
	return &fakeReconcileStore{
		attempts:   make(map[string]*models.ContactAttempt),
		leadStatus: make(map[uint]models.LeadStatus),
		notes:      make(map[uint][]string),
		pending:    make(map[uint]int64),
	}
}

func (s *fakeReconcileStore) seed(ref string, leadID uint) *models.ContactAttempt {
	attempt := &models.ContactAttempt{
		LeadID:      leadID,
		Channel:     models.ChannelEmail,
		Provider:    "postmark",
		ProviderRef: ref,
		Status:      models.AttemptStatusInProgress,
	}
	attempt.ID = uint(len(s.attempts) + 1)
	attempt.UpdatedAt = time.Now()
	s.attempts[ref] = attempt
	return attempt
}

func (s *fakeReconcileStore) AttemptByProviderRef(ref string) (*models.ContactAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[ref]
	if !ok {
		return nil, nil
	}
	clone := *attempt
	return &clone, nil
}

func (s *fakeReconcileStore) UpdateAttemptGuarded(attempt *models.ContactAttempt, seen time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		if s.vanishOnConflict {
			delete(s.attempts, attempt.ProviderRef)
		}
		return false, nil
	}
	current := s.attempts[attempt.ProviderRef]
	if current == nil || !current.UpdatedAt.Equal(seen) {
		return false, nil
	}
	clone := *attempt
	clone.UpdatedAt = seen.Add(time.Millisecond)
	s.attempts[attempt.ProviderRef] = &clone
	return true, nil
}

func (s *fakeReconcileStore) UpdateLeadStatus(leadID uint, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadStatus[leadID] = status
	return nil
}

func (s *fakeReconcileStore) AppendLeadNote(leadID uint, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[leadID] = append(s.notes[leadID], body)
	return nil
}

func (s *fakeReconcileStore) CancelPendingSteps(leadID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.pending[leadID]
	s.pending[leadID] = 0
	return n, nil
}

func (s *fakeReconcileStore) RecordSmsEvent(event *models.SmsDeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smsEvents = append(s.smsEvents, event)
	return nil
}

type fakeScoreQueue struct {
	mu      sync.Mutex
	leadIDs []uint
}

func (q *fakeScoreQueue) Enqueue(leadID uint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.leadIDs = append(q.leadIDs, leadID)
}

func newTestReconciler(store *fakeReconcileStore) (*DeliveryReconciler, *fakeScoreQueue) {
	scores := &fakeScoreQueue{}
	return NewDeliveryReconciler(store, scores, testLogger()), scores
}

func TestHandleEmailEvent_MalformedDropped(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{RecordType: "Delivery"}))  // no MessageID
	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1"}))      // no RecordType
	assert.Equal(t, models.AttemptStatusInProgress, store.attempts["msg-1"].Status)
}

func TestHandleEmailEvent_UnmatchedDropped(t *testing.T) {
	store := newFakeReconcileStore()
	rec, scores := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "ghost", RecordType: "Delivery"}))
	assert.Empty(t, scores.leadIDs)
}

func TestHandleEmailEvent_DeliveryMarksSuccess(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, scores := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "Delivery"}))

	attempt := store.attempts["msg-1"]
	assert.Equal(t, models.AttemptStatusSuccess, attempt.Status)
	assert.NotNil(t, attempt.CompletedAt)
	assert.True(t, attempt.Result.ProcessedEvents.Contains("Delivery"))
	assert.Equal(t, []uint{10}, scores.leadIDs, "terminal transition triggers one recompute")
}

func TestHandleEmailEvent_ReplayIsNoOp(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, scores := newTestReconciler(store)

	ev := EmailEvent{MessageID: "msg-1", RecordType: "Delivery"}
	require.NoError(t, rec.HandleEmailEvent(ev))
	require.NoError(t, rec.HandleEmailEvent(ev))

	assert.Len(t, store.attempts["msg-1"].Result.ProcessedEvents, 1)
	assert.Len(t, scores.leadIDs, 1, "replay must not re-trigger side effects")
}

func TestHandleEmailEvent_DifferentEventStillApplies(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "Delivery"}))
	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "Open"}))

	events := store.attempts["msg-1"].Result.ProcessedEvents
	assert.True(t, events.Contains("Delivery"))
	assert.True(t, events.Contains("Open"))
}

func TestHandleEmailEvent_HardBounceSuppressesOnce(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	store.pending[10] = 2
	rec, _ := newTestReconciler(store)

	ev := EmailEvent{MessageID: "msg-1", RecordType: "Bounce", Type: "HardBounce", Description: "mailbox gone"}
	require.NoError(t, rec.HandleEmailEvent(ev))
	require.NoError(t, rec.HandleEmailEvent(ev)) // provider retry

	assert.Equal(t, models.AttemptStatusFailed, store.attempts["msg-1"].Status)
	assert.Equal(t, models.LeadStatusDoNotContact, store.leadStatus[10])
	require.Len(t, store.notes[10], 1, "suppression note appended exactly once")
	assert.Contains(t, store.notes[10][0], "HardBounce")
	assert.Zero(t, store.pending[10], "pending sequence steps canceled")
}

func TestHandleEmailEvent_SpamComplaintSuppresses(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "SpamComplaint"}))
	assert.Equal(t, models.LeadStatusDoNotContact, store.leadStatus[10])
}

func TestHandleEmailEvent_SoftBounceLeavesLead(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, _ := newTestReconciler(store)

	ev := EmailEvent{MessageID: "msg-1", RecordType: "Bounce", Type: "SoftBounce"}
	require.NoError(t, rec.HandleEmailEvent(ev))

	assert.Equal(t, models.AttemptStatusFailed, store.attempts["msg-1"].Status)
	_, touched := store.leadStatus[10]
	assert.False(t, touched, "soft bounce never changes lead status")
}

func TestHandleEmailEvent_UnknownTypeConservative(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	rec, scores := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "SubscriptionChange"}))

	assert.Equal(t, models.AttemptStatusInProgress, store.attempts["msg-1"].Status)
	assert.Empty(t, scores.leadIDs, "non-terminal event must not trigger recompute")
}

func TestHandleEmailEvent_RetriesOnWriteConflict(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	store.conflicts = 1
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "Delivery"}))
	assert.Equal(t, models.AttemptStatusSuccess, store.attempts["msg-1"].Status)
}

func TestHandleEmailEvent_VanishedAttemptAfterConflict(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("msg-1", 10)
	store.conflicts = 1
	store.vanishOnConflict = true
	rec, _ := newTestReconciler(store)

	err := rec.HandleEmailEvent(EmailEvent{MessageID: "msg-1", RecordType: "Delivery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disappeared")
	assert.NotContains(t, err.Error(), "%!w", "a missing row must not wrap a nil error")
}

func TestHandleSMSEvent_DeliveredNormalizes(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("abc", 10)
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleSMSEvent("africastalking", []byte(`{"messageId":"abc","status":"DELIVRD"}`)))

	assert.Equal(t, models.AttemptStatusSuccess, store.attempts["abc"].Status)
	require.Len(t, store.smsEvents, 1)
	assert.Equal(t, string(DeliverySuccess), store.smsEvents[0].Status)
	require.NotNil(t, store.smsEvents[0].ContactAttemptID)
}

func TestHandleSMSEvent_UnmatchedStillLogged(t *testing.T) {
	store := newFakeReconcileStore()
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleSMSEvent("twilio", []byte(`{"id":"ghost","status":"failed"}`)))

	require.Len(t, store.smsEvents, 1)
	assert.Nil(t, store.smsEvents[0].ContactAttemptID)
	assert.Equal(t, string(DeliveryFailed), store.smsEvents[0].Status)
}

func TestHandleSMSEvent_UnknownStatusLogged(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("abc", 10)
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleSMSEvent("twilio", []byte(`{"id":"abc","status":"weird"}`)))

	require.Len(t, store.smsEvents, 1)
	assert.Equal(t, string(DeliveryUnknown), store.smsEvents[0].Status)
	assert.Equal(t, models.AttemptStatusInProgress, store.attempts["abc"].Status)
}

func TestHandleSMSEvent_MalformedDropped(t *testing.T) {
	store := newFakeReconcileStore()
	rec, _ := newTestReconciler(store)

	require.NoError(t, rec.HandleSMSEvent("twilio", []byte(`not json`)))
	require.NoError(t, rec.HandleSMSEvent("twilio", []byte(`{"status":"delivered"}`))) // no id
	require.NoError(t, rec.HandleSMSEvent("twilio", []byte(`{"id":"abc"}`)))           // no status

	assert.Empty(t, store.smsEvents)
}

func TestHandleSMSEvent_ReplayIsNoOpOnAttempt(t *testing.T) {
	store := newFakeReconcileStore()
	store.seed("abc", 10)
	rec, scores := newTestReconciler(store)

	payload := []byte(`{"id":"abc","status":"delivered"}`)
	require.NoError(t, rec.HandleSMSEvent("twilio", payload))
	require.NoError(t, rec.HandleSMSEvent("twilio", payload))

	// Every callback lands in the audit log, but the attempt mutates once.
	assert.Len(t, store.smsEvents, 2)
	assert.Len(t, store.attempts["abc"].Result.ProcessedEvents, 1)
	assert.Len(t, scores.leadIDs, 1)
}
