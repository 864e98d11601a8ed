package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/persistence"
	"github.com/spec-kit/ticket-intake/internal/query"
	"github.com/spec-kit/ticket-intake/internal/repository"
	"github.com/spec-kit/ticket-intake/internal/validation"
	"github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

// DefaultRegion is used to interpret phone numbers without a country code.
const DefaultRegion = "KE"

// TicketService coordinates the intake form workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	validator  *validation.Validator
	dispatcher events.Dispatcher
	logger     *zap.Logger

	// submitMu admits one submission at a time.
	submitMu sync.Mutex
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Validator  *validation.Validator
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// UploadedFile is an attachment whose content has not been read yet.
type UploadedFile struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FilesFromMultipart adapts multipart headers. A missing Content-Type is
// inferred from the file extension.
func FilesFromMultipart(headers []*multipart.FileHeader) []UploadedFile {
	files := make([]UploadedFile, 0, len(headers))
	for _, h := range headers {
		mimeType := h.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(h.Filename))); byExt != "" {
				mimeType = byExt
			}
		}
		if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
			mimeType = mt
		}
		files = append(files, UploadedFile{
			Name:     h.Filename,
			MimeType: mimeType,
			Size:     h.Size,
			Open: func() (io.ReadCloser, error) {
				return h.Open()
			},
		})
	}
	return files
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := deps.Validator
	if v == nil {
		v = validation.New(0)
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		validator:  v,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Submit validates a form submission, reads its attachments and stores the
// ticket. Nothing is written unless every step succeeds.
func (s *TicketService) Submit(ctx context.Context, draft domain.TicketDraft, files []UploadedFile) (domain.Ticket, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	draft.Attachments = make([]domain.Attachment, len(files))
	for i, f := range files {
		draft.Attachments[i] = domain.Attachment{Name: f.Name, MimeType: f.MimeType, SizeBytes: f.Size}
	}
	// Metadata is checked before any file is read.
	if errs := s.validator.Validate(draft); errs != nil {
		return domain.Ticket{}, validationError(errs)
	}

	contents, err := readAll(ctx, files)
	if err != nil {
		s.logger.Warn("attachment read failed", zap.Error(err))
		return domain.Ticket{}, err
	}
	for i := range draft.Attachments {
		draft.Attachments[i].Content = contents[i]
		draft.Attachments[i].SizeBytes = int64(len(contents[i]))
	}
	// Reported sizes may differ from what was actually read.
	if msg := validation.CheckAttachments(draft.Attachments, s.validator.MaxAttachments()); msg != "" {
		return domain.Ticket{}, validationError([]validation.FieldError{{Field: "attachments", Message: msg}})
	}

	ticket := domain.NewTicket(trimDraft(draft))
	stored, err := s.tickets.Append(ctx, ticket)
	if err != nil {
		return domain.Ticket{}, err
	}
	s.publishEvent(ctx, events.New(events.EventTicketCreated, stored.ID, events.TicketCreatedPayload{
		Subject:          stored.Subject,
		PreferredContact: stored.PreferredContact,
		Attachments:      len(stored.Attachments),
	}))
	return stored, nil
}

// readAll reads every file concurrently and waits for all of them.
func readAll(ctx context.Context, files []UploadedFile) ([][]byte, error) {
	contents := make([][]byte, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open attachment %s: %w", f.Name, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(io.LimitReader(rc, validation.MaxTotalBytes+1))
			if err != nil {
				return fmt.Errorf("read attachment %s: %w", f.Name, err)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contents, nil
}

// List returns the tickets selected by q, filtered then sorted.
func (s *TicketService) List(ctx context.Context, q query.Query) ([]domain.Ticket, error) {
	tickets, err := s.tickets.Get(ctx)
	if err != nil {
		return nil, err
	}
	return query.View(tickets, q), nil
}

// Get returns one ticket.
func (s *TicketService) Get(ctx context.Context, id int64) (domain.Ticket, error) {
	return s.tickets.Find(ctx, id)
}

// Edit applies a patch after validating it against the ticket it is applied
// to. Validation and write happen under the store lock.
func (s *TicketService) Edit(ctx context.Context, id int64, patch domain.TicketPatch) (domain.Ticket, error) {
	if patch.Empty() {
		return s.tickets.Find(ctx, id)
	}
	updated, err := s.tickets.UpdateFunc(ctx, id, func(current domain.Ticket) (domain.TicketPatch, error) {
		if errs := s.validator.ValidatePatch(current, patch); errs != nil {
			return domain.TicketPatch{}, validationError(errs)
		}
		return trimPatch(patch), nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	s.publishEvent(ctx, events.New(events.EventTicketUpdated, id, events.TicketUpdatedPayload{
		Fields: patchedFields(patch),
	}))
	return updated, nil
}

// Delete removes a ticket. A stale id is reported as not found.
func (s *TicketService) Delete(ctx context.Context, id int64) error {
	current, err := s.tickets.Find(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.tickets.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return errorutil.NewNotFound("ticket", map[string]any{"id": id})
	}
	s.publishEvent(ctx, events.New(events.EventTicketDeleted, id, events.TicketDeletedPayload{
		Subject: current.Subject,
	}))
	return nil
}

// Attachment returns the attachment at index (zero-based).
func (s *TicketService) Attachment(ctx context.Context, id int64, index int) (domain.Attachment, error) {
	ticket, err := s.tickets.Find(ctx, id)
	if err != nil {
		return domain.Attachment{}, err
	}
	if index < 0 || index >= len(ticket.Attachments) {
		return domain.Attachment{}, errorutil.NewNotFound("attachment", map[string]any{"id": id, "index": index})
	}
	return ticket.Attachments[index], nil
}

// CallLink builds a tel: URI for the ticket's phone number.
func (s *TicketService) CallLink(ctx context.Context, id int64) (string, error) {
	ticket, err := s.tickets.Find(ctx, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(ticket.Phone) == "" {
		return "", errorutil.NewDomainError(errorutil.CodeNotFound, "No phone number available.", http.StatusNotFound, map[string]any{"id": id})
	}
	return "tel:" + NormalizePhone(ticket.Phone), nil
}

// EmailLink builds a mailto: URI carrying the ticket subject.
func (s *TicketService) EmailLink(ctx context.Context, id int64) (string, error) {
	ticket, err := s.tickets.Find(ctx, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(ticket.Email) == "" {
		return "", errorutil.NewDomainError(errorutil.CodeNotFound, "No email available.", http.StatusNotFound, map[string]any{"id": id})
	}
	return "mailto:" + ticket.Email + "?subject=" + url.QueryEscape(string(ticket.Subject)), nil
}

// NormalizePhone formats a number as E.164, reading local numbers as Kenyan.
// Unparseable input is returned with everything but digits and '+' removed.
func NormalizePhone(raw string) string {
	num, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil {
		var b strings.Builder
		for _, r := range raw {
			if (r >= '0' && r <= '9') || r == '+' {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if id, ok := persistence.SessionFromContext(ctx); ok {
		event.SessionID = id
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func validationError(errs []validation.FieldError) error {
	return errorutil.NewValidationError("validation failed", map[string]any{"errors": errs})
}

func trimDraft(d domain.TicketDraft) domain.TicketDraft {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Subject = domain.TicketSubject(strings.TrimSpace(string(d.Subject)))
	d.Message = strings.TrimSpace(d.Message)
	d.PreferredContact = domain.ContactMethod(strings.TrimSpace(string(d.PreferredContact)))
	return d
}

func trimPatch(p domain.TicketPatch) domain.TicketPatch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	p.FullName = trim(p.FullName)
	p.Email = trim(p.Email)
	p.Phone = trim(p.Phone)
	p.Message = trim(p.Message)
	if p.Subject != nil {
		v := domain.TicketSubject(strings.TrimSpace(string(*p.Subject)))
		p.Subject = &v
	}
	if p.PreferredContact != nil {
		v := domain.ContactMethod(strings.TrimSpace(string(*p.PreferredContact)))
		p.PreferredContact = &v
	}
	return p
}

func patchedFields(p domain.TicketPatch) []string {
	var fields []string
	if p.FullName != nil {
		fields = append(fields, "fullName")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.Phone != nil {
		fields = append(fields, "phone")
	}
	if p.Subject != nil {
		fields = append(fields, "subject")
	}
	if p.Message != nil {
		fields = append(fields, "message")
	}
	if p.PreferredContact != nil {
		fields = append(fields, "preferredContact")
	}
	return fields
}
