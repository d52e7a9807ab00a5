package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/driveid"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

// recordTimeout bounds a single audit write.
const recordTimeout = 2 * time.Second

// Service records every mutating call of the wrapped resource.Service.
// Reads pass straight through. A failed audit write is logged and never
// fails the call.
type Service struct {
	resource.Service

	rec    Recorder
	drive  driveid.ID
	logger *slog.Logger
}

var _ resource.Service = (*Service)(nil)

// Wrap returns svc with auditing.
func Wrap(svc resource.Service, rec Recorder, drive driveid.ID, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{Service: svc, rec: rec, drive: drive, logger: logger}
}

func (s *Service) CreateFolder(ctx context.Context, parent, name string) (resource.MutationResult, error) {
	res, err := s.Service.CreateFolder(ctx, parent, name)
	s.record(ctx, "create_folder", res.Path, joinTarget(parent, name), err)

	return res, err
}

func (s *Service) UploadDocument(ctx context.Context, folder, name, content string, isBase64 bool) (resource.MutationResult, error) {
	res, err := s.Service.UploadDocument(ctx, folder, name, content, isBase64)
	s.record(ctx, "upload_document", res.Path, joinTarget(folder, name), err)

	return res, err
}

func (s *Service) UpdateDocument(ctx context.Context, folder, name, content string, isBase64 bool) (resource.MutationResult, error) {
	res, err := s.Service.UpdateDocument(ctx, folder, name, content, isBase64)
	s.record(ctx, "update_document", res.Path, joinTarget(folder, name), err)

	return res, err
}

func (s *Service) DeleteItem(ctx context.Context, path string) (resource.MutationResult, error) {
	res, err := s.Service.DeleteItem(ctx, path)
	s.record(ctx, "delete_item", res.Path, path, err)

	return res, err
}

// RecordRejection stores an authorization failure. preview is the rejected
// token's preview, empty when none was presented.
func RecordRejection(ctx context.Context, rec Recorder, transport, preview, reason string, logger *slog.Logger) {
	if rec == nil {
		return
	}

	e := Event{
		Transport: transport,
		Caller:    preview,
		Action:    "authorize",
		Outcome:   OutcomeRejected,
		Detail:    reason,
	}

	write(ctx, rec, e, logger)
}

func (s *Service) record(ctx context.Context, action, path, requested string, err error) {
	e := Event{
		Transport: "unknown",
		Action:    action,
		Drive:     s.drive,
		Path:      path,
		Outcome:   OutcomeOK,
	}

	if caller, ok := authz.CallerFrom(ctx); ok {
		e.Transport = caller.Transport
		e.Caller = caller.Preview
	}

	if err != nil {
		e.Outcome = OutcomeError
		e.Detail = fault.Message(err)
		e.Path = requested
	}

	write(ctx, s.rec, e, s.logger)
}

func write(ctx context.Context, rec Recorder, e Event, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := rec.Record(ctx, e); err != nil && logger != nil {
		logger.Error("audit write failed",
			slog.String("action", e.Action),
			slog.String("error", err.Error()),
		)
	}
}

func joinTarget(dir, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}
