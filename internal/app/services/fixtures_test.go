package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/pkg/eligibility"
	"github.com/yigit/unisphere-enrollment/internal/pkg/notify"
)

type fakeChecker struct {
	mu    sync.Mutex
	calls int
	check func(ctx context.Context, req eligibility.Request) (eligibility.Result, error)
}

func (c *fakeChecker) CheckEligibility(ctx context.Context, req eligibility.Request) (eligibility.Result, error) {
	c.mu.Lock()
	c.calls++
	check := c.check
	c.mu.Unlock()
	if check == nil {
		return eligibility.Result{Eligible: true}, nil
	}
	return check(ctx, req)
}

func (c *fakeChecker) set(check func(ctx context.Context, req eligibility.Request) (eligibility.Result, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.check = check
}

func (c *fakeChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type sentEvent struct {
	kind   notify.EventKind
	record any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, kind notify.EventKind, record any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, sentEvent{kind: kind, record: record})
	return nil
}

func (n *fakeNotifier) sent() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

type fixture struct {
	t        *testing.T
	store    *memStore
	svc      *Services
	logs     *syncBuffer
	checker  *fakeChecker
	notifier *fakeNotifier
}

func newFixture(t *testing.T, configure ...func(*Deps)) *fixture {
	t.Helper()
	logger, logs := newTestLogger()
	f := &fixture{
		t:        t,
		store:    newMemStore(),
		logs:     logs,
		checker:  &fakeChecker{},
		notifier: &fakeNotifier{},
	}
	deps := Deps{
		Store:             f.store,
		Eligibility:       f.checker,
		EligibilityPolicy: EligibilityPolicy{Timeout: time.Second, FailOpen: true},
		Notifier:          f.notifier,
		AuditTimeout:      time.Second,
		Policy:            Policy{SessionDefaultCapacity: 30},
		Logger:            logger,
	}
	for _, c := range configure {
		c(&deps)
	}
	f.svc = New(deps)
	t.Cleanup(func() {
		assert.Empty(t, f.store.lockViolations(), "transactions broke the lock order")
	})
	return f
}

func as(id int64, role models.RoleType) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{
		UserID: id,
		Email:  fmt.Sprintf("user%d@uni.edu", id),
		Role:   role,
	})
}

func asStudent(id int64) context.Context    { return as(id, models.RoleStudent) }
func asInstructor(id int64) context.Context { return as(id, models.RoleInstructor) }
func asAdmin(id int64) context.Context      { return as(id, models.RoleAdmin) }

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

// at returns 2026-03-02 at hh:mm UTC.
func at(hh, mm int) time.Time {
	return time.Date(2026, time.March, 2, hh, mm, 0, 0, time.UTC)
}

func atPtr(hh, mm int) *time.Time {
	t := at(hh, mm)
	return &t
}

func (f *fixture) offering(code string, instructorID int64, capacity *int) *models.Offering {
	f.t.Helper()
	o, err := f.svc.Offerings.CreateOffering(asInstructor(instructorID), &dto.CreateOfferingRequest{
		CourseCode: code,
		CourseName: "Course " + code,
		Credits:    3,
		Capacity:   capacity,
		Year:       2026,
		Term:       models.TermSpring,
	})
	require.NoError(f.t, err)
	return o
}

func (f *fixture) session(offering *models.Offering, start time.Time, end *time.Time, capacity *int) *models.Session {
	f.t.Helper()
	s, err := f.svc.Sessions.CreateSession(asInstructor(offering.InstructorID), &dto.CreateSessionRequest{
		OfferingID: offering.ID,
		Title:      "Session",
		StartTime:  start,
		EndTime:    end,
		Capacity:   capacity,
	})
	require.NoError(f.t, err)
	return s
}

func (f *fixture) enroll(studentID, offeringID int64) *models.Registration {
	f.t.Helper()
	r, err := f.svc.Enrollments.Enroll(asStudent(studentID), &dto.EnrollRequest{OfferingID: &offeringID})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) register(studentID, sessionID int64) *models.SessionEnrollment {
	f.t.Helper()
	e, err := f.svc.Sessions.RegisterSession(asStudent(studentID), sessionID)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) reloadOffering(id int64) *models.Offering {
	f.t.Helper()
	o, err := f.store.GetOfferingByID(context.Background(), id)
	require.NoError(f.t, err)
	require.NotNil(f.t, o)
	return o
}

func (f *fixture) reloadSession(id int64) *models.Session {
	f.t.Helper()
	s, err := f.store.GetSessionByID(context.Background(), id)
	require.NoError(f.t, err)
	require.NotNil(f.t, s)
	return s
}

// runConcurrently starts n calls of fn at once and returns their errors by index.
func runConcurrently(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}
