package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
)

func TestRegisterSessionRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS101", 10, nil)
	morning := f.session(offering, at(10, 0), atPtr(11, 0), nil)
	overlapping := f.session(offering, at(10, 30), atPtr(11, 30), nil)
	adjacent := f.session(offering, at(11, 0), atPtr(12, 0), nil)
	f.enroll(100, offering.ID)

	f.register(100, morning.ID)

	_, err := f.svc.Sessions.RegisterSession(asStudent(100), overlapping.ID)
	assert.Equal(t, apperrors.KindConflict, apperrors.Kind(err))
	assert.ErrorIs(t, err, apperrors.ErrTimeConflict)
	assert.EqualError(t, err, "time conflicts")
	assert.Equal(t, 0, f.reloadSession(overlapping.ID).CurrentParticipants)

	f.register(100, adjacent.ID)

	schedule, err := f.svc.Sessions.ListScheduleByStudent(asStudent(100), 100)
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Equal(t, morning.ID, schedule[0].SessionID)
	assert.Equal(t, adjacent.ID, schedule[1].SessionID)
}

func TestRegisterSessionOverlapAcrossOfferings(t *testing.T) {
	f := newFixture(t)
	math := f.offering("MATH101", 10, nil)
	physics := f.offering("PHY101", 11, nil)
	lecture := f.session(math, at(9, 0), atPtr(10, 30), nil)
	lab := f.session(physics, at(10, 0), atPtr(11, 0), nil)
	f.enroll(100, math.ID)
	f.enroll(100, physics.ID)

	f.register(100, lecture.ID)
	_, err := f.svc.Sessions.RegisterSession(asStudent(100), lab.ID)
	assert.ErrorIs(t, err, apperrors.ErrTimeConflict)
}

func TestRegisterSessionIgnoresOpenEndedAndCancelled(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS102", 10, nil)
	booked := f.session(offering, at(10, 0), atPtr(11, 0), nil)
	openEnded := f.session(offering, at(10, 15), nil, nil)
	later := f.session(offering, at(10, 30), atPtr(11, 30), nil)
	f.enroll(100, offering.ID)

	f.register(100, booked.ID)
	f.register(100, openEnded.ID)

	f.store.setSessionStatus(booked.ID, models.SessionCancelled)
	f.register(100, later.ID)
}

func TestRegisterSessionAdmissionRules(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS103", 10, nil)
	session := f.session(offering, at(8, 0), atPtr(9, 0), intPtr(1))

	t.Run("not enrolled in offering", func(t *testing.T) {
		_, err := f.svc.Sessions.RegisterSession(asStudent(100), session.ID)
		assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(err))
		assert.ErrorIs(t, err, apperrors.ErrNotEnrolled)
	})

	f.enroll(100, offering.ID)
	f.enroll(101, offering.ID)
	f.register(100, session.ID)

	t.Run("already registered", func(t *testing.T) {
		_, err := f.svc.Sessions.RegisterSession(asStudent(100), session.ID)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyRegistered)
	})

	t.Run("session full", func(t *testing.T) {
		_, err := f.svc.Sessions.RegisterSession(asStudent(101), session.ID)
		assert.Equal(t, apperrors.KindConflict, apperrors.Kind(err))
		assert.ErrorIs(t, err, apperrors.ErrSessionFull)
		assert.EqualError(t, err, "Session is full")
	})

	t.Run("own session", func(t *testing.T) {
		_, err := f.svc.Sessions.RegisterSession(asStudent(10), session.ID)
		assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(err))
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := f.svc.Sessions.RegisterSession(asStudent(100), 9999)
		assert.Equal(t, apperrors.KindNotFound, apperrors.Kind(err))
	})

	t.Run("completed session", func(t *testing.T) {
		done := f.session(offering, at(12, 0), atPtr(13, 0), nil)
		f.store.setSessionStatus(done.ID, models.SessionCompleted)
		_, err := f.svc.Sessions.RegisterSession(asStudent(101), done.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotOpen)
	})

	assert.Equal(t, 1, f.reloadSession(session.ID).CurrentParticipants)
}

func TestRegisterSessionInactiveOffering(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS104", 10, nil)
	session := f.session(offering, at(8, 0), atPtr(9, 0), nil)
	f.enroll(100, offering.ID)

	inactive := models.OfferingInactive
	_, err := f.svc.Offerings.UpdateOffering(asInstructor(10), offering.ID, &dto.UpdateOfferingRequest{Status: &inactive})
	require.NoError(t, err)

	_, err = f.svc.Sessions.RegisterSession(asStudent(100), session.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)
}

func TestRegisterSessionLastSeatConcurrently(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS105", 10, nil)
	session := f.session(offering, at(14, 0), atPtr(15, 0), intPtr(1))
	const students = 6
	for i := 0; i < students; i++ {
		f.enroll(int64(100+i), offering.ID)
	}

	errs := runConcurrently(students, func(i int) error {
		_, err := f.svc.Sessions.RegisterSession(asStudent(int64(100+i)), session.ID)
		return err
	})

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrSessionFull)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.reloadSession(session.ID).CurrentParticipants)
}

func TestRegisterOverlappingSessionsConcurrently(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS106", 10, nil)
	sessions := []*models.Session{
		f.session(offering, at(10, 0), atPtr(11, 0), nil),
		f.session(offering, at(10, 30), atPtr(11, 30), nil),
		f.session(offering, at(10, 45), atPtr(11, 15), nil),
	}
	f.enroll(100, offering.ID)

	errs := runConcurrently(len(sessions), func(i int) error {
		_, err := f.svc.Sessions.RegisterSession(asStudent(100), sessions[i].ID)
		return err
	})

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrTimeConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	schedule, err := f.svc.Sessions.ListScheduleByStudent(asStudent(100), 100)
	require.NoError(t, err)
	assert.Len(t, schedule, 1)
}

func TestRescheduleSession(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS107", 10, nil)
	morning := f.session(offering, at(10, 0), atPtr(11, 0), nil)
	noon := f.session(offering, at(11, 0), atPtr(12, 0), nil)
	f.enroll(100, offering.ID)
	f.enroll(101, offering.ID)
	f.register(100, morning.ID)
	f.register(100, noon.ID)
	f.register(101, noon.ID)

	t.Run("overlap with a booked student is rejected", func(t *testing.T) {
		_, err := f.svc.Sessions.RescheduleSession(asInstructor(10), noon.ID, &dto.RescheduleSessionRequest{
			StartTime: at(10, 30),
			EndTime:   atPtr(11, 30),
		})
		assert.Equal(t, apperrors.KindConflict, apperrors.Kind(err))
		assert.ErrorIs(t, err, apperrors.ErrTimeConflict)

		unchanged := f.reloadSession(noon.ID)
		assert.True(t, unchanged.StartTime.Equal(at(11, 0)))
	})

	t.Run("own interval does not conflict", func(t *testing.T) {
		updated, err := f.svc.Sessions.RescheduleSession(asInstructor(10), noon.ID, &dto.RescheduleSessionRequest{
			StartTime: at(11, 15),
			EndTime:   atPtr(12, 15),
		})
		require.NoError(t, err)
		assert.True(t, updated.StartTime.Equal(at(11, 15)))
		assert.True(t, f.reloadSession(noon.ID).EndTime.Equal(at(12, 15)))
	})

	t.Run("locks every booked student", func(t *testing.T) {
		f.store.db.mu.Lock()
		locks := append([]int64(nil), f.store.db.scheduleLocks...)
		f.store.db.mu.Unlock()
		assert.Subset(t, locks, []int64{100, 101})
	})

	t.Run("only the owner", func(t *testing.T) {
		_, err := f.svc.Sessions.RescheduleSession(asInstructor(11), noon.ID, &dto.RescheduleSessionRequest{
			StartTime: at(15, 0),
			EndTime:   atPtr(16, 0),
		})
		assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(err))
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := f.svc.Sessions.RescheduleSession(asInstructor(10), noon.ID, &dto.RescheduleSessionRequest{
			StartTime: at(15, 0),
			EndTime:   atPtr(14, 0),
		})
		assert.Equal(t, apperrors.KindValidation, apperrors.Kind(err))
	})
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS108", 10, nil)

	session := f.session(offering, at(9, 0), atPtr(10, 0), nil)
	assert.Equal(t, 30, session.Capacity)
	assert.Equal(t, models.SessionScheduled, session.Status)

	_, err := f.svc.Sessions.CreateSession(asInstructor(11), &dto.CreateSessionRequest{
		OfferingID: offering.ID, Title: "Intruder", StartTime: at(9, 0),
	})
	assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(err))

	_, err = f.svc.Sessions.CreateSession(asInstructor(10), &dto.CreateSessionRequest{
		OfferingID: offering.ID, Title: "Backwards", StartTime: at(9, 0), EndTime: atPtr(9, 0),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.Kind(err))

	_, err = f.svc.Sessions.CreateSession(asInstructor(10), &dto.CreateSessionRequest{
		OfferingID: 9999, Title: "Nowhere", StartTime: at(9, 0),
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.Kind(err))

	completed := models.OfferingCompleted
	_, err = f.svc.Offerings.UpdateOffering(asInstructor(10), offering.ID, &dto.UpdateOfferingRequest{Status: &completed})
	require.NoError(t, err)
	_, err = f.svc.Sessions.CreateSession(asInstructor(10), &dto.CreateSessionRequest{
		OfferingID: offering.ID, Title: "Late", StartTime: at(9, 0),
	})
	assert.ErrorIs(t, err, apperrors.ErrNotOpen)
}

func TestUnregisterSession(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS109", 10, nil)
	session := f.session(offering, at(9, 0), atPtr(10, 0), intPtr(1))
	f.enroll(100, offering.ID)
	f.enroll(101, offering.ID)
	enrollment := f.register(100, session.ID)

	err := f.svc.Sessions.UnregisterSession(asStudent(101), enrollment.ID)
	assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(err))
	assert.Equal(t, 1, f.reloadSession(session.ID).CurrentParticipants)

	require.NoError(t, f.svc.Sessions.UnregisterSession(asStudent(100), enrollment.ID))
	assert.Equal(t, 0, f.reloadSession(session.ID).CurrentParticipants)

	err = f.svc.Sessions.UnregisterSession(asStudent(100), enrollment.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.Kind(err))

	f.register(101, session.ID)
}

func TestDeleteSessionDropsBookings(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS110", 10, nil)
	session := f.session(offering, at(9, 0), atPtr(10, 0), nil)
	f.enroll(100, offering.ID)
	f.register(100, session.ID)

	assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(f.svc.Sessions.DeleteSession(asInstructor(11), session.ID)))
	require.NoError(t, f.svc.Sessions.DeleteSession(asInstructor(10), session.ID))

	schedule, err := f.svc.Sessions.ListScheduleByStudent(asStudent(100), 100)
	require.NoError(t, err)
	assert.Empty(t, schedule)

	assert.Equal(t, apperrors.KindNotFound, apperrors.Kind(f.svc.Sessions.DeleteSession(asInstructor(10), session.ID)))
}

func TestListSessionsByOfferingInStartOrder(t *testing.T) {
	f := newFixture(t)
	offering := f.offering("CS111", 10, nil)
	late := f.session(offering, at(15, 0), atPtr(16, 0), nil)
	early := f.session(offering, at(8, 0), atPtr(9, 0), nil)

	sessions, err := f.svc.Sessions.ListSessionsByOffering(asStudent(100), offering.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, early.ID, sessions[0].ID)
	assert.Equal(t, late.ID, sessions[1].ID)

	_, err = f.svc.Sessions.ListSessionsByOffering(asStudent(100), 9999)
	assert.Equal(t, apperrors.KindNotFound, apperrors.Kind(err))

	_, err = f.svc.Sessions.ListScheduleByStudent(asStudent(101), 100)
	assert.Equal(t, apperrors.KindForbidden, apperrors.Kind(err))
}
