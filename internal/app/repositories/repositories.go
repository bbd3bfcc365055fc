package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/db"
)

// Unique constraints the services recover from. The names match migrations/sql/001_init.sql.
const (
	ConstraintCourseCode              = "courses_code_key"
	ConstraintRegistrationCourse      = "registrations_student_course_key"
	ConstraintRegistrationOffering    = "registrations_student_offering_key"
	ConstraintSessionEnrollment       = "session_enrollments_student_session_key"
	ConstraintEvaluationToken         = "evaluations_request_token_key"
	ConstraintEvaluationStudent       = "evaluations_student_offering_key"
	ConstraintFeedbackToken           = "feedback_request_token_key"
	ConstraintFeedbackStudentOffering = "feedback_student_offering_key"
)

var (
	// ErrNotFound is returned by mutations whose target row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoTransactionSupport is returned by WithTransaction on a transaction-bound store.
	ErrNoTransactionSupport = errors.New("nested transactions are not supported")
)

// psql builds statements with PostgreSQL placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CourseStore persists courses. Lookups return (nil, nil) when nothing matches.
type CourseStore interface {
	GetCourseByCode(ctx context.Context, code string) (*models.Course, error)
	GetCourseByID(ctx context.Context, id int64) (*models.Course, error)
	CreateCourse(ctx context.Context, course *models.Course) error
	RenameCourse(ctx context.Context, id int64, name string) error
}

// OfferingStore persists offerings and their enrollment counter.
type OfferingStore interface {
	CreateOffering(ctx context.Context, offering *models.Offering) error
	GetOfferingByID(ctx context.Context, id int64) (*models.Offering, error)
	GetOfferingForUpdate(ctx context.Context, id int64) (*models.Offering, error)
	GetOfferingForKeyShare(ctx context.Context, id int64) (*models.Offering, error)
	ListActiveOfferingsByCourseCode(ctx context.Context, code string) ([]*models.Offering, error)
	ListOfferings(ctx context.Context, filter dto.OfferingFilter) ([]*models.Offering, int64, error)
	UpdateOffering(ctx context.Context, offering *models.Offering) error
	DeleteOffering(ctx context.Context, id int64) error
	// AdjustOfferingEnrollment applies delta to enrolled_count. An increment is refused
	// (false) when the offering is already at capacity; a decrement floors at zero.
	AdjustOfferingEnrollment(ctx context.Context, id int64, delta int) (bool, error)
}

// SessionStore persists sessions and their participant counter.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByID(ctx context.Context, id int64) (*models.Session, error)
	GetSessionForUpdate(ctx context.Context, id int64) (*models.Session, error)
	ListSessionsByOffering(ctx context.Context, offeringID int64) ([]*models.Session, error)
	UpdateSessionTimes(ctx context.Context, id int64, start time.Time, end *time.Time) error
	DeleteSession(ctx context.Context, id int64) error
	AdjustSessionParticipants(ctx context.Context, id int64, delta int) (bool, error)
}

// RegistrationStore persists offering-level bookings.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, registration *models.Registration) error
	GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error)
	GetRegistrationForUpdate(ctx context.Context, id int64) (*models.Registration, error)
	HasCourseRegistration(ctx context.Context, studentID, courseID int64) (bool, error)
	HasOfferingRegistration(ctx context.Context, studentID, offeringID int64) (bool, error)
	DeleteRegistration(ctx context.Context, id int64) error
	ListRegistrationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) ([]*models.Registration, int64, error)
	ListRegistrationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) ([]*models.Registration, int64, error)
}

// SessionEnrollmentStore persists session-level bookings.
type SessionEnrollmentStore interface {
	// LockStudentSchedule serializes schedule changes of one student until the
	// surrounding transaction ends.
	LockStudentSchedule(ctx context.Context, studentID int64) error
	CreateSessionEnrollment(ctx context.Context, enrollment *models.SessionEnrollment) error
	GetSessionEnrollmentByID(ctx context.Context, id int64) (*models.SessionEnrollment, error)
	HasSessionEnrollment(ctx context.Context, studentID, sessionID int64) (bool, error)
	DeleteSessionEnrollment(ctx context.Context, id int64) error
	ListStudentSchedule(ctx context.Context, studentID int64) ([]models.ScheduledSession, error)
	ListSessionStudentIDs(ctx context.Context, sessionID int64) ([]int64, error)
	ListStudentEnrollmentsInOffering(ctx context.Context, studentID, offeringID int64) ([]*models.SessionEnrollment, error)
	CountCompletedSessions(ctx context.Context, studentID, offeringID int64) (int, error)
}

// SubmissionFilter narrows evaluation and feedback listings.
type SubmissionFilter struct {
	StudentID  *int64
	OfferingID *int64
	dto.PageRequest
}

// EvaluationStore persists evaluations with their metrics.
type EvaluationStore interface {
	CreateEvaluation(ctx context.Context, evaluation *models.Evaluation) error
	GetEvaluationByToken(ctx context.Context, token string) (*models.Evaluation, error)
	GetEvaluationByStudentOffering(ctx context.Context, studentID, offeringID int64) (*models.Evaluation, error)
	ListEvaluations(ctx context.Context, filter SubmissionFilter) ([]*models.Evaluation, int64, error)
}

// FeedbackStore persists feedback with its ratings.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, feedback *models.Feedback) error
	GetFeedbackByToken(ctx context.Context, token string) (*models.Feedback, error)
	GetFeedbackByStudentOffering(ctx context.Context, studentID, offeringID int64) (*models.Feedback, error)
	ListFeedback(ctx context.Context, filter SubmissionFilter) ([]*models.Feedback, int64, error)
}

// AuditStore appends audit entries.
type AuditStore interface {
	CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Tx is the data access available to services, inside or outside a transaction.
//
// Transactions take locks in one global order: student schedule locks (ascending student id),
// then offering rows, then registration rows, then session rows. Inserts count as locking the
// rows their foreign keys reference.
type Tx interface {
	CourseStore
	OfferingStore
	SessionStore
	RegistrationStore
	SessionEnrollmentStore
	EvaluationStore
	FeedbackStore
	AuditStore
}

// Store is a Tx bound to the pool that can also open transactions.
type Store interface {
	Tx
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Repositories holds all the repository instances
type Repositories struct {
	*CourseRepository
	*OfferingRepository
	*SessionRepository
	*RegistrationRepository
	*SessionEnrollmentRepository
	*EvaluationRepository
	*FeedbackRepository
	*AuditRepository

	database *db.PostgresDB
}

// NewRepositories initializes all repositories on the pool of database.
func NewRepositories(database *db.PostgresDB) *Repositories {
	r := newRepositories(database.Pool)
	r.database = database
	return r
}

func newRepositories(q Querier) *Repositories {
	return &Repositories{
		CourseRepository:            NewCourseRepository(q),
		OfferingRepository:          NewOfferingRepository(q),
		SessionRepository:           NewSessionRepository(q),
		RegistrationRepository:      NewRegistrationRepository(q),
		SessionEnrollmentRepository: NewSessionEnrollmentRepository(q),
		EvaluationRepository:        NewEvaluationRepository(q),
		FeedbackRepository:          NewFeedbackRepository(q),
		AuditRepository:             NewAuditRepository(q),
	}
}

// WithTransaction runs fn with repositories bound to a single database transaction.
func (r *Repositories) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if r.database == nil {
		return ErrNoTransactionSupport
	}
	return r.database.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

// queryCount runs a COUNT(*) select and returns the total.
func queryCount(ctx context.Context, q Querier, count squirrel.SelectBuilder) (int64, error) {
	sql, args, err := count.ToSql()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

var _ Store = (*Repositories)(nil)
