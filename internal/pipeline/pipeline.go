// Package pipeline runs report requests through their stages:
//
//	Unauthenticated -> Authenticated -> Validated -> Persisted
//
// Each stage either hands its result to the next one or stops the request with
// a *StageError naming where it stopped. Nothing reaches the report store
// before validation has fully succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/potholewatch/server/internal/geocode"
	"github.com/potholewatch/server/internal/model"
	"github.com/potholewatch/server/internal/repo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DashboardLimit is how many cities each dashboard ranking lists
const DashboardLimit = 5

// Stage is a step of the submission state machine
type Stage int

const (
	Unauthenticated Stage = iota
	Authenticated
	Validated
	Persisted
)

func (s Stage) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Validated:
		return "validated"
	case Persisted:
		return "persisted"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError reports the last stage a request reached before failing
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or Unauthenticated if there is none
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return Unauthenticated
}

// Pipeline orchestrates report submission and the read-only query paths
type Pipeline struct {
	gate     *Gate
	reports  repo.ReportRepo
	geocoder geocode.Geocoder
	validate *validator.Validate
	tracer   trace.Tracer
}

// New creates a pipeline; a nil geocoder resolves every location to the unknown sentinels
func New(gate *Gate, reports repo.ReportRepo, geocoder geocode.Geocoder) *Pipeline {
	if geocoder == nil {
		geocoder = geocode.Nop{}
	}
	return &Pipeline{
		gate:     gate,
		reports:  reports,
		geocoder: geocoder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer("github.com/potholewatch/server/internal/pipeline"),
	}
}

// SubmitReport authenticates authorization, validates body and stores the report.
func (p *Pipeline) SubmitReport(ctx context.Context, authorization string, body io.Reader) (model.Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.SubmitReport")
	defer span.End()

	identity, err := p.gate.Authenticate(authorization)
	if err != nil {
		return model.Report{}, p.fail(span, Unauthenticated, err)
	}
	span.SetAttributes(attribute.String("pipeline.stage", Authenticated.String()))

	sub, err := DecodeSubmission(body)
	if err != nil {
		return model.Report{}, p.fail(span, Authenticated, err)
	}
	span.SetAttributes(attribute.String("pipeline.stage", Validated.String()))

	report, err := p.persist(ctx, identity, sub)
	if err != nil {
		return model.Report{}, p.fail(span, Validated, err)
	}
	span.SetAttributes(
		attribute.String("pipeline.stage", Persisted.String()),
		attribute.String("report.city", report.City),
	)
	return report, nil
}

// persist resolves the locality and hands the record to the store. An empty
// identity is recorded as the unknown submitter.
func (p *Pipeline) persist(ctx context.Context, identity string, sub Submission) (model.Report, error) {
	if identity == "" {
		identity = model.UnknownSubmitter
	}
	city, country := p.resolve(ctx, sub.Lat, sub.Lng)

	report, err := p.reports.Create(ctx, model.Report{
		Lat:         sub.Lat,
		Lng:         sub.Lng,
		City:        city,
		Country:     country,
		SubmittedBy: identity,
	})
	if errors.Is(err, repo.ErrInvalidReport) {
		return model.Report{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err != nil {
		return model.Report{}, err
	}
	return report, nil
}

// resolve degrades geocoding failures to the unknown sentinels
func (p *Pipeline) resolve(ctx context.Context, lat, lng float64) (string, string) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ReverseGeocode")
	defer span.End()

	city, country, err := p.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoResult) {
			log.Printf("Reverse geocoding (%v, %v) failed: %v", lat, lng, err)
		}
		span.RecordError(err)
		return model.UnknownCity, model.UnknownCountry
	}
	if city == "" {
		city = model.UnknownCity
	}
	if country == "" {
		country = model.UnknownCountry
	}
	return city, country
}

func (p *Pipeline) fail(span trace.Span, stage Stage, err error) error {
	span.SetAttributes(attribute.String("pipeline.stage", stage.String()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &StageError{Stage: stage, Err: err}
}

// listQuery is the optional filter accepted by ListReports
type listQuery struct {
	City string `validate:"omitempty,max=200"`
}

// ListReports returns all reports, or those in city when it is non-empty.
func (p *Pipeline) ListReports(ctx context.Context, city string) ([]model.Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ListReports")
	defer span.End()

	if err := p.validate.Struct(listQuery{City: city}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: city filter: %w", ErrInvalidInput, err)
	}
	reports, err := p.reports.Find(ctx, city)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("reports.count", len(reports)))
	return reports, nil
}

// Dashboard returns the total count with the cities holding the most and least reports.
func (p *Pipeline) Dashboard(ctx context.Context) (model.Dashboard, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Dashboard")
	defer span.End()

	total, err := p.reports.Count(ctx)
	if err != nil {
		span.RecordError(err)
		return model.Dashboard{}, err
	}
	most, err := p.reports.AggregateCounts(ctx, model.Most, DashboardLimit)
	if err != nil {
		span.RecordError(err)
		return model.Dashboard{}, err
	}
	least, err := p.reports.AggregateCounts(ctx, model.Least, DashboardLimit)
	if err != nil {
		span.RecordError(err)
		return model.Dashboard{}, err
	}
	return model.Dashboard{Total: total, MostCities: most, LeastCities: least}, nil
}

// Ping checks the report store
func (p *Pipeline) Ping(ctx context.Context) error {
	return p.reports.Ping(ctx)
}
