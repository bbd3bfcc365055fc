package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/dberrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/helpers"
)

// memState is the committed content of the fake database.
type memState struct {
	nextID        int64
	courses       map[int64]models.Course
	offerings     map[int64]models.Offering
	sessions      map[int64]models.Session
	registrations map[int64]models.Registration
	enrollments   map[int64]models.SessionEnrollment
	evaluations   map[int64]models.Evaluation
	feedback      map[int64]models.Feedback
	audit         []models.AuditEntry
}

func newMemState() *memState {
	return &memState{
		courses:       map[int64]models.Course{},
		offerings:     map[int64]models.Offering{},
		sessions:      map[int64]models.Session{},
		registrations: map[int64]models.Registration{},
		enrollments:   map[int64]models.SessionEnrollment{},
		evaluations:   map[int64]models.Evaluation{},
		feedback:      map[int64]models.Feedback{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:        s.nextID,
		courses:       cloneMap(s.courses),
		offerings:     cloneMap(s.offerings),
		sessions:      cloneMap(s.sessions),
		registrations: cloneMap(s.registrations),
		enrollments:   cloneMap(s.enrollments),
		evaluations:   cloneMap(s.evaluations),
		feedback:      cloneMap(s.feedback),
		audit:         append([]models.AuditEntry(nil), s.audit...),
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memDB is shared by a memStore and the transaction views it hands out. One mutex
// serializes every statement and every transaction, which is stronger than READ COMMITTED
// plus row locks.
type memDB struct {
	mu    sync.Mutex
	state *memState

	// hideCourseReads makes that many GetCourseByCode calls miss; negative hides forever.
	hideCourseReads int
	courseReadErr   error
	auditErr        error
	scheduleLocks   []int64
	transactions    int

	// lockOrderViolations lists every acquisition that broke the global lock order.
	lockOrderViolations []string
	// autocommitRowLocks counts FOR UPDATE style reads issued outside a transaction.
	autocommitRowLocks int
}

// Lock ranks in the order transactions must acquire them.
const (
	rankSchedule = iota
	rankOffering
	rankRegistration
	rankSession
)

var rankNames = [...]string{"schedule", "offering", "registration", "session"}

// lockTrace follows the locks one transaction holds. PostgreSQL would block on the same
// acquisitions; here they are only checked against the global order.
type lockTrace struct {
	held         map[string]bool
	top          int
	lastSchedule int64
	order        []string
}

type memStore struct {
	db    *memDB
	inTx  bool
	locks *lockTrace
}

var _ repositories.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{db: &memDB{state: newMemState()}}
}

func (m *memStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.db.mu.Lock()
	return m.db.mu.Unlock
}

func (m *memStore) st() *memState { return m.db.state }

// acquire records a row or advisory lock taken by the current transaction. Outside a
// transaction it counts explicit row locks, which would queue behind open transactions.
func (m *memStore) acquire(rank int, id int64, explicit bool) {
	if !m.inTx {
		if explicit {
			m.db.autocommitRowLocks++
		}
		return
	}
	key := fmt.Sprintf("%s:%d", rankNames[rank], id)
	if m.locks.held[key] {
		return
	}
	last := "nothing"
	if n := len(m.locks.order); n > 0 {
		last = m.locks.order[n-1]
	}
	switch {
	case rank < m.locks.top:
		m.db.lockOrderViolations = append(m.db.lockOrderViolations, key+" after "+last)
	case rank == rankSchedule && len(m.locks.order) > 0 && id < m.locks.lastSchedule:
		m.db.lockOrderViolations = append(m.db.lockOrderViolations, key+" after "+last)
	}
	if rank > m.locks.top {
		m.locks.top = rank
	}
	if rank == rankSchedule {
		m.locks.lastSchedule = id
	}
	m.locks.held[key] = true
	m.locks.order = append(m.locks.order, key)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           dberrors.UniqueViolation,
		ConstraintName: constraint,
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
	}
}

var errForeignKey = errors.New("violates foreign key constraint")

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	if m.inTx {
		return repositories.ErrNoTransactionSupport
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	m.db.transactions++
	snapshot := m.db.state.clone()
	tx := &memStore{db: m.db, inTx: true, locks: &lockTrace{held: map[string]bool{}}}
	if err := fn(ctx, tx); err != nil {
		m.db.state = snapshot
		return err
	}
	return nil
}

// Courses

func (m *memStore) GetCourseByCode(ctx context.Context, code string) (*models.Course, error) {
	defer m.lock()()
	if m.db.courseReadErr != nil {
		return nil, m.db.courseReadErr
	}
	if m.db.hideCourseReads != 0 {
		if m.db.hideCourseReads > 0 {
			m.db.hideCourseReads--
		}
		return nil, nil
	}
	for _, c := range m.st().courses {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetCourseByID(ctx context.Context, id int64) (*models.Course, error) {
	defer m.lock()()
	if c, ok := m.st().courses[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) CreateCourse(ctx context.Context, course *models.Course) error {
	defer m.lock()()
	for _, c := range m.st().courses {
		if c.Code == course.Code {
			return uniqueViolation(repositories.ConstraintCourseCode)
		}
	}
	course.ID = m.st().id()
	course.CreatedAt = time.Now()
	course.UpdatedAt = course.CreatedAt
	m.st().courses[course.ID] = *course
	return nil
}

func (m *memStore) RenameCourse(ctx context.Context, id int64, name string) error {
	defer m.lock()()
	c, ok := m.st().courses[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.Name = name
	c.UpdatedAt = time.Now()
	m.st().courses[id] = c
	return nil
}

// Offerings

func (m *memStore) CreateOffering(ctx context.Context, offering *models.Offering) error {
	defer m.lock()()
	if _, ok := m.st().courses[offering.CourseID]; !ok {
		return errForeignKey
	}
	offering.ID = m.st().id()
	offering.EnrolledCount = 0
	offering.CreatedAt = time.Now()
	offering.UpdatedAt = offering.CreatedAt
	stored := *offering
	stored.Course = nil
	m.st().offerings[offering.ID] = stored
	return nil
}

func (m *memStore) GetOfferingByID(ctx context.Context, id int64) (*models.Offering, error) {
	defer m.lock()()
	if o, ok := m.st().offerings[id]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *memStore) GetOfferingForUpdate(ctx context.Context, id int64) (*models.Offering, error) {
	defer m.lock()()
	return m.lockedOffering(id), nil
}

func (m *memStore) GetOfferingForKeyShare(ctx context.Context, id int64) (*models.Offering, error) {
	defer m.lock()()
	return m.lockedOffering(id), nil
}

func (m *memStore) lockedOffering(id int64) *models.Offering {
	m.acquire(rankOffering, id, true)
	if o, ok := m.st().offerings[id]; ok {
		return &o
	}
	return nil
}

func (m *memStore) sortedOfferings(keep func(models.Offering) bool) []*models.Offering {
	var out []*models.Offering
	for _, o := range m.st().offerings {
		if keep(o) {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) courseCode(courseID int64) string {
	return m.st().courses[courseID].Code
}

func (m *memStore) ListActiveOfferingsByCourseCode(ctx context.Context, code string) ([]*models.Offering, error) {
	defer m.lock()()
	return m.sortedOfferings(func(o models.Offering) bool {
		return o.Status == models.OfferingActive && m.courseCode(o.CourseID) == code
	}), nil
}

func (m *memStore) ListOfferings(ctx context.Context, filter dto.OfferingFilter) ([]*models.Offering, int64, error) {
	defer m.lock()()
	all := m.sortedOfferings(func(o models.Offering) bool {
		if filter.CourseCode != nil && m.courseCode(o.CourseID) != *filter.CourseCode {
			return false
		}
		if filter.InstructorID != nil && o.InstructorID != *filter.InstructorID {
			return false
		}
		if filter.Status != nil && o.Status != *filter.Status {
			return false
		}
		return true
	})
	start, end := helpers.CalculateSliceIndices(filter.Page, filter.Size, len(all))
	return all[start:end], int64(len(all)), nil
}

func (m *memStore) UpdateOffering(ctx context.Context, offering *models.Offering) error {
	defer m.lock()()
	m.acquire(rankOffering, offering.ID, false)
	o, ok := m.st().offerings[offering.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	o.Capacity = offering.Capacity
	o.Status = offering.Status
	o.Year = offering.Year
	o.Term = offering.Term
	o.UpdatedAt = time.Now()
	m.st().offerings[o.ID] = o
	offering.UpdatedAt = o.UpdatedAt
	return nil
}

func (m *memStore) DeleteOffering(ctx context.Context, id int64) error {
	defer m.lock()()
	m.acquire(rankOffering, id, false)
	st := m.st()
	if _, ok := st.offerings[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(st.offerings, id)
	for sid, s := range st.sessions {
		if s.OfferingID == id {
			delete(st.sessions, sid)
		}
	}
	for rid, r := range st.registrations {
		if r.OfferingID == id {
			delete(st.registrations, rid)
		}
	}
	for eid, e := range st.enrollments {
		if e.OfferingID == id {
			delete(st.enrollments, eid)
		}
	}
	for eid, e := range st.evaluations {
		if e.OfferingID == id {
			delete(st.evaluations, eid)
		}
	}
	for fid, f := range st.feedback {
		if f.OfferingID == id {
			delete(st.feedback, fid)
		}
	}
	return nil
}

func (m *memStore) AdjustOfferingEnrollment(ctx context.Context, id int64, delta int) (bool, error) {
	defer m.lock()()
	m.acquire(rankOffering, id, false)
	o, ok := m.st().offerings[id]
	if !ok {
		return false, nil
	}
	if delta > 0 && o.Capacity != nil && o.EnrolledCount+delta > *o.Capacity {
		return false, nil
	}
	o.EnrolledCount = max(o.EnrolledCount+delta, 0)
	m.st().offerings[id] = o
	return true, nil
}

// Sessions

func (m *memStore) CreateSession(ctx context.Context, session *models.Session) error {
	defer m.lock()()
	if _, ok := m.st().offerings[session.OfferingID]; !ok {
		return errForeignKey
	}
	session.ID = m.st().id()
	session.CurrentParticipants = 0
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	m.st().sessions[session.ID] = *session
	return nil
}

func (m *memStore) GetSessionByID(ctx context.Context, id int64) (*models.Session, error) {
	defer m.lock()()
	if s, ok := m.st().sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) GetSessionForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	defer m.lock()()
	m.acquire(rankSession, id, true)
	if s, ok := m.st().sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) ListSessionsByOffering(ctx context.Context, offeringID int64) ([]*models.Session, error) {
	defer m.lock()()
	var out []*models.Session
	for _, s := range m.st().sessions {
		if s.OfferingID == offeringID {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) UpdateSessionTimes(ctx context.Context, id int64, start time.Time, end *time.Time) error {
	defer m.lock()()
	m.acquire(rankSession, id, false)
	s, ok := m.st().sessions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	s.StartTime = start
	s.EndTime = end
	m.st().sessions[id] = s
	return nil
}

func (m *memStore) DeleteSession(ctx context.Context, id int64) error {
	defer m.lock()()
	m.acquire(rankSession, id, false)
	st := m.st()
	if _, ok := st.sessions[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(st.sessions, id)
	for eid, e := range st.enrollments {
		if e.SessionID == id {
			delete(st.enrollments, eid)
		}
	}
	return nil
}

func (m *memStore) AdjustSessionParticipants(ctx context.Context, id int64, delta int) (bool, error) {
	defer m.lock()()
	m.acquire(rankSession, id, false)
	s, ok := m.st().sessions[id]
	if !ok {
		return false, nil
	}
	if delta > 0 && s.CurrentParticipants+delta > s.Capacity {
		return false, nil
	}
	s.CurrentParticipants = max(s.CurrentParticipants+delta, 0)
	m.st().sessions[id] = s
	return true, nil
}

// Registrations

func (m *memStore) CreateRegistration(ctx context.Context, registration *models.Registration) error {
	defer m.lock()()
	m.acquire(rankOffering, registration.OfferingID, false)
	st := m.st()
	if _, ok := st.offerings[registration.OfferingID]; !ok {
		return errForeignKey
	}
	for _, r := range st.registrations {
		if r.StudentID == registration.StudentID && r.CourseID == registration.CourseID {
			return uniqueViolation(repositories.ConstraintRegistrationCourse)
		}
		if r.StudentID == registration.StudentID && r.OfferingID == registration.OfferingID {
			return uniqueViolation(repositories.ConstraintRegistrationOffering)
		}
	}
	registration.ID = st.id()
	registration.CreatedAt = time.Now()
	st.registrations[registration.ID] = *registration
	return nil
}

func (m *memStore) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	defer m.lock()()
	if r, ok := m.st().registrations[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) GetRegistrationForUpdate(ctx context.Context, id int64) (*models.Registration, error) {
	defer m.lock()()
	m.acquire(rankRegistration, id, true)
	if r, ok := m.st().registrations[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) HasCourseRegistration(ctx context.Context, studentID, courseID int64) (bool, error) {
	defer m.lock()()
	for _, r := range m.st().registrations {
		if r.StudentID == studentID && r.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasOfferingRegistration(ctx context.Context, studentID, offeringID int64) (bool, error) {
	defer m.lock()()
	for _, r := range m.st().registrations {
		if r.StudentID == studentID && r.OfferingID == offeringID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteRegistration(ctx context.Context, id int64) error {
	defer m.lock()()
	m.acquire(rankRegistration, id, false)
	if _, ok := m.st().registrations[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.st().registrations, id)
	return nil
}

func (m *memStore) listRegistrations(keep func(models.Registration) bool, page dto.PageRequest) ([]*models.Registration, int64, error) {
	var all []*models.Registration
	for _, r := range m.st().registrations {
		if keep(r) {
			r := r
			all = append(all, &r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start, end := helpers.CalculateSliceIndices(page.Page, page.Size, len(all))
	return all[start:end], int64(len(all)), nil
}

func (m *memStore) ListRegistrationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) ([]*models.Registration, int64, error) {
	defer m.lock()()
	return m.listRegistrations(func(r models.Registration) bool { return r.StudentID == studentID }, page)
}

func (m *memStore) ListRegistrationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) ([]*models.Registration, int64, error) {
	defer m.lock()()
	return m.listRegistrations(func(r models.Registration) bool { return r.OfferingID == offeringID }, page)
}

// Session enrollments

func (m *memStore) LockStudentSchedule(ctx context.Context, studentID int64) error {
	defer m.lock()()
	m.acquire(rankSchedule, studentID, true)
	m.db.scheduleLocks = append(m.db.scheduleLocks, studentID)
	return nil
}

func (m *memStore) CreateSessionEnrollment(ctx context.Context, enrollment *models.SessionEnrollment) error {
	defer m.lock()()
	// Foreign keys to the offering and the session are checked in that order.
	m.acquire(rankOffering, enrollment.OfferingID, false)
	m.acquire(rankSession, enrollment.SessionID, false)
	st := m.st()
	if _, ok := st.sessions[enrollment.SessionID]; !ok {
		return errForeignKey
	}
	for _, e := range st.enrollments {
		if e.StudentID == enrollment.StudentID && e.SessionID == enrollment.SessionID {
			return uniqueViolation(repositories.ConstraintSessionEnrollment)
		}
	}
	enrollment.ID = st.id()
	enrollment.CreatedAt = time.Now()
	st.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *memStore) GetSessionEnrollmentByID(ctx context.Context, id int64) (*models.SessionEnrollment, error) {
	defer m.lock()()
	if e, ok := m.st().enrollments[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memStore) HasSessionEnrollment(ctx context.Context, studentID, sessionID int64) (bool, error) {
	defer m.lock()()
	for _, e := range m.st().enrollments {
		if e.StudentID == studentID && e.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteSessionEnrollment(ctx context.Context, id int64) error {
	defer m.lock()()
	if _, ok := m.st().enrollments[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.st().enrollments, id)
	return nil
}

func (m *memStore) ListStudentSchedule(ctx context.Context, studentID int64) ([]models.ScheduledSession, error) {
	defer m.lock()()
	var out []models.ScheduledSession
	for _, e := range m.st().enrollments {
		if e.StudentID != studentID {
			continue
		}
		s := m.st().sessions[e.SessionID]
		out = append(out, models.ScheduledSession{
			EnrollmentID: e.ID,
			SessionID:    s.ID,
			OfferingID:   s.OfferingID,
			Title:        s.Title,
			StartTime:    s.StartTime,
			EndTime:      s.EndTime,
			Status:       s.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

func (m *memStore) ListSessionStudentIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	defer m.lock()()
	var ids []int64
	for _, e := range m.st().enrollments {
		if e.SessionID == sessionID {
			ids = append(ids, e.StudentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) ListStudentEnrollmentsInOffering(ctx context.Context, studentID, offeringID int64) ([]*models.SessionEnrollment, error) {
	defer m.lock()()
	var out []*models.SessionEnrollment
	for _, e := range m.st().enrollments {
		if e.StudentID == studentID && e.OfferingID == offeringID {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CountCompletedSessions(ctx context.Context, studentID, offeringID int64) (int, error) {
	defer m.lock()()
	count := 0
	for _, e := range m.st().enrollments {
		if e.StudentID == studentID && e.OfferingID == offeringID &&
			m.st().sessions[e.SessionID].Status == models.SessionCompleted {
			count++
		}
	}
	return count, nil
}

// Evaluations

func (m *memStore) CreateEvaluation(ctx context.Context, evaluation *models.Evaluation) error {
	defer m.lock()()
	m.acquire(rankOffering, evaluation.OfferingID, false)
	st := m.st()
	for _, e := range st.evaluations {
		if evaluation.RequestToken != nil && e.RequestToken != nil && *e.RequestToken == *evaluation.RequestToken {
			return uniqueViolation(repositories.ConstraintEvaluationToken)
		}
	}
	for _, e := range st.evaluations {
		if e.StudentID == evaluation.StudentID && e.OfferingID == evaluation.OfferingID {
			return uniqueViolation(repositories.ConstraintEvaluationStudent)
		}
	}
	evaluation.ID = st.id()
	evaluation.CreatedAt = time.Now()
	for i := range evaluation.Metrics {
		evaluation.Metrics[i].ID = st.id()
		evaluation.Metrics[i].EvaluationID = evaluation.ID
	}
	stored := *evaluation
	stored.Metrics = append([]models.EvaluationMetric(nil), evaluation.Metrics...)
	st.evaluations[evaluation.ID] = stored
	return nil
}

func (m *memStore) findEvaluation(match func(models.Evaluation) bool) *models.Evaluation {
	for _, e := range m.st().evaluations {
		if match(e) {
			e.Metrics = append([]models.EvaluationMetric(nil), e.Metrics...)
			return &e
		}
	}
	return nil
}

func (m *memStore) GetEvaluationByToken(ctx context.Context, token string) (*models.Evaluation, error) {
	defer m.lock()()
	return m.findEvaluation(func(e models.Evaluation) bool {
		return e.RequestToken != nil && *e.RequestToken == token
	}), nil
}

func (m *memStore) GetEvaluationByStudentOffering(ctx context.Context, studentID, offeringID int64) (*models.Evaluation, error) {
	defer m.lock()()
	return m.findEvaluation(func(e models.Evaluation) bool {
		return e.StudentID == studentID && e.OfferingID == offeringID
	}), nil
}

func matchesSubmission(filter repositories.SubmissionFilter, studentID, offeringID int64) bool {
	if filter.StudentID != nil && *filter.StudentID != studentID {
		return false
	}
	if filter.OfferingID != nil && *filter.OfferingID != offeringID {
		return false
	}
	return true
}

func (m *memStore) ListEvaluations(ctx context.Context, filter repositories.SubmissionFilter) ([]*models.Evaluation, int64, error) {
	defer m.lock()()
	var all []*models.Evaluation
	for _, e := range m.st().evaluations {
		if matchesSubmission(filter, e.StudentID, e.OfferingID) {
			e := e
			all = append(all, &e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start, end := helpers.CalculateSliceIndices(filter.Page, filter.Size, len(all))
	return all[start:end], int64(len(all)), nil
}

// Feedback

func (m *memStore) CreateFeedback(ctx context.Context, feedback *models.Feedback) error {
	defer m.lock()()
	m.acquire(rankOffering, feedback.OfferingID, false)
	st := m.st()
	for _, f := range st.feedback {
		if feedback.RequestToken != nil && f.RequestToken != nil && *f.RequestToken == *feedback.RequestToken {
			return uniqueViolation(repositories.ConstraintFeedbackToken)
		}
	}
	for _, f := range st.feedback {
		if f.StudentID == feedback.StudentID && f.OfferingID == feedback.OfferingID {
			return uniqueViolation(repositories.ConstraintFeedbackStudentOffering)
		}
	}
	feedback.ID = st.id()
	feedback.CreatedAt = time.Now()
	for i := range feedback.Ratings {
		feedback.Ratings[i].ID = st.id()
		feedback.Ratings[i].FeedbackID = feedback.ID
	}
	stored := *feedback
	stored.Ratings = append([]models.FeedbackRating(nil), feedback.Ratings...)
	st.feedback[feedback.ID] = stored
	return nil
}

func (m *memStore) findFeedback(match func(models.Feedback) bool) *models.Feedback {
	for _, f := range m.st().feedback {
		if match(f) {
			f.Ratings = append([]models.FeedbackRating(nil), f.Ratings...)
			return &f
		}
	}
	return nil
}

func (m *memStore) GetFeedbackByToken(ctx context.Context, token string) (*models.Feedback, error) {
	defer m.lock()()
	return m.findFeedback(func(f models.Feedback) bool {
		return f.RequestToken != nil && *f.RequestToken == token
	}), nil
}

func (m *memStore) GetFeedbackByStudentOffering(ctx context.Context, studentID, offeringID int64) (*models.Feedback, error) {
	defer m.lock()()
	return m.findFeedback(func(f models.Feedback) bool {
		return f.StudentID == studentID && f.OfferingID == offeringID
	}), nil
}

func (m *memStore) ListFeedback(ctx context.Context, filter repositories.SubmissionFilter) ([]*models.Feedback, int64, error) {
	defer m.lock()()
	var all []*models.Feedback
	for _, f := range m.st().feedback {
		if matchesSubmission(filter, f.StudentID, f.OfferingID) {
			f := f
			all = append(all, &f)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start, end := helpers.CalculateSliceIndices(filter.Page, filter.Size, len(all))
	return all[start:end], int64(len(all)), nil
}

// Audit

func (m *memStore) CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	defer m.lock()()
	if m.db.auditErr != nil {
		return m.db.auditErr
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	m.st().audit = append(m.st().audit, *entry)
	return nil
}

// Inspection helpers for tests

func (m *memStore) auditActions() []models.AuditAction {
	defer m.lock()()
	actions := make([]models.AuditAction, 0, len(m.st().audit))
	for _, a := range m.st().audit {
		actions = append(actions, a.Action)
	}
	return actions
}

func (m *memStore) courseCount() int {
	defer m.lock()()
	return len(m.st().courses)
}

func (m *memStore) registrationCount(offeringID int64) int {
	defer m.lock()()
	n := 0
	for _, r := range m.st().registrations {
		if r.OfferingID == offeringID {
			n++
		}
	}
	return n
}

func (m *memStore) evaluationCount() int {
	defer m.lock()()
	return len(m.st().evaluations)
}

func (m *memStore) feedbackCount() int {
	defer m.lock()()
	return len(m.st().feedback)
}

func (m *memStore) setSessionStatus(id int64, status models.SessionStatus) {
	defer m.lock()()
	s := m.st().sessions[id]
	s.Status = status
	m.st().sessions[id] = s
}

func (m *memStore) setHiddenCourseReads(n int) {
	defer m.lock()()
	m.db.hideCourseReads = n
}

func (m *memStore) lockViolations() []string {
	defer m.lock()()
	return append([]string(nil), m.db.lockOrderViolations...)
}

func (m *memStore) rowLocksOutsideTx() int {
	defer m.lock()()
	return m.db.autocommitRowLocks
}

func (m *memStore) setAuditErr(err error) {
	defer m.lock()()
	m.db.auditErr = err
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return zerolog.New(buf).Level(zerolog.DebugLevel), buf
}
