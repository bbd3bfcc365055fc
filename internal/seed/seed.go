package seed

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/services"
)

// Course is one catalogue entry created by CreateDefaultData.
type Course struct {
	Code   string
	Fields services.CourseFields
}

func describe(s string) *string { return &s }

// DefaultCourses is the starter catalogue for a fresh database.
var DefaultCourses = []Course{
	{Code: "CS101", Fields: services.CourseFields{Name: "Introduction to Programming", Credits: 4, Description: describe("Variables, control flow and functions.")}},
	{Code: "CS102", Fields: services.CourseFields{Name: "Data Structures", Credits: 4}},
	{Code: "CS201", Fields: services.CourseFields{Name: "Algorithms", Credits: 4}},
	{Code: "MATH101", Fields: services.CourseFields{Name: "Calculus I", Credits: 5}},
	{Code: "MATH102", Fields: services.CourseFields{Name: "Linear Algebra", Credits: 3}},
	{Code: "EEE101", Fields: services.CourseFields{Name: "Circuit Theory", Credits: 4}},
}

// CreateDefaultData resolves every course of catalogue so existing codes are left untouched.
// A failing course is logged and does not stop the rest.
func CreateDefaultData(ctx context.Context, resolver services.CourseResolver, catalogue []Course, lgr zerolog.Logger) error {
	lgr.Info().Int("courses", len(catalogue)).Msg("Checking/Creating default courses...")
	var finalErr error

	for _, c := range catalogue {
		course, err := resolver.Resolve(ctx, c.Code, c.Fields)
		if err != nil {
			lgr.Error().Err(err).Str("courseCode", c.Code).Msg("Error creating default course")
			finalErr = errors.Join(finalErr, err)
			continue
		}
		lgr.Debug().Str("courseCode", course.Code).Int64("courseId", course.ID).Msg("Default course ready")
	}

	if finalErr != nil {
		lgr.Warn().Err(finalErr).Msg("Default data creation finished with errors")
		return finalErr
	}
	lgr.Info().Msg("Default data check/creation finished")
	return nil
}
