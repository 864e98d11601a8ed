package handlers

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-intake/internal/api/dto"
	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/query"
	"github.com/spec-kit/ticket-intake/internal/service"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

// Table rows show this many characters of the message.
const messagePreviewLength = 30

// TicketsHandler serves the intake form and ticket table.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets. Accepts multipart forms with attachments or a
// JSON body without them.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var (
		draft domain.TicketDraft
		files []service.UploadedFile
	)
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart form", nil)
		}
		draft = draftFromForm(form.Value)
		files = service.FilesFromMultipart(form.File["attachment"])
	} else {
		var req dto.SubmitTicketRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		draft = req.Draft()
	}

	ticket, err := h.service.Submit(c.UserContext(), draft, files)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /tickets?filters=...&sortBy=...
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	q, err := query.ParseRaw(string(c.Request().URI().QueryString()))
	if err != nil {
		return apperrors.NewValidationError("invalid query string", nil)
	}
	tickets, err := h.service.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	rows := make([]dto.TicketRow, 0, len(tickets))
	for i, t := range tickets {
		rows = append(rows, ticketRow(i+1, t))
	}
	return c.JSON(dto.TicketListResponse{
		Data:    rows,
		Query:   q.Encode(),
		Filters: nonNil(q.Filters),
		SortBy:  nonNil(q.Sorts),
	})
}

// ViewState POST /tickets/view-state.
func (h *TicketsHandler) ViewState(c *fiber.Ctx) error {
	var req dto.ViewStateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	q := query.Query{Filters: req.Filters, Sorts: req.SortBy}.Normalize()
	switch req.Reset {
	case "":
	case "filters":
		q = q.WithoutFilters()
	case "sort":
		q = q.WithoutSort()
	default:
		return apperrors.NewValidationError("reset must be filters or sort", map[string]any{"reset": req.Reset})
	}
	encoded := q.Encode()
	link := "/tickets"
	if encoded != "" {
		link += "?" + encoded
	}
	return c.JSON(fiber.Map{"data": dto.ViewStateResponse{Query: encoded, URL: link}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// DownloadAttachment GET /tickets/:id/attachments/:index.
func (h *TicketsHandler) DownloadAttachment(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return apperrors.NewValidationError("invalid attachment index", nil)
	}
	att, err := h.service.Attachment(c.UserContext(), id, index)
	if err != nil {
		return err
	}
	c.Attachment(att.Name)
	c.Set(fiber.HeaderContentType, att.MimeType)
	return c.Send(att.Content)
}

// CallLink GET /tickets/:id/call.
func (h *TicketsHandler) CallLink(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	link, err := h.service.CallLink(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LinkResponse{Href: link}})
}

// EmailLink GET /tickets/:id/email.
func (h *TicketsHandler) EmailLink(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	link, err := h.service.EmailLink(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LinkResponse{Href: link}})
}

// EditTicket PATCH /tickets/:id.
func (h *TicketsHandler) EditTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.EditTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Edit(c.UserContext(), id, req.Patch())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// DeleteTicket DELETE /tickets/:id?confirm=true.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	if !c.QueryBool("confirm") {
		return apperrors.NewValidationError("deletion must be confirmed", map[string]any{"confirm": "true"})
	}
	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

// draftFromForm reads the form fields. The checkbox group may post
// preferredContact[]; a checked terms box posts "on".
func draftFromForm(values map[string][]string) domain.TicketDraft {
	get := func(names ...string) string {
		for _, n := range names {
			if v := values[n]; len(v) > 0 {
				return v[0]
			}
		}
		return ""
	}
	terms, err := strconv.ParseBool(get("terms"))
	if err != nil {
		terms = strings.EqualFold(get("terms"), "on")
	}
	return domain.TicketDraft{
		FullName:         get("fullName"),
		Email:            get("email"),
		Phone:            get("phone"),
		Subject:          domain.TicketSubject(get("subject")),
		Message:          get("message"),
		PreferredContact: domain.ContactMethod(get("preferredContact", "preferredContact[]")),
		Terms:            terms,
	}
}

func ticketRow(index int, t domain.Ticket) dto.TicketRow {
	contact := t.Email
	if contact == "" {
		contact = t.Phone
	}
	return dto.TicketRow{
		Index:    index,
		ID:       t.ID,
		FullName: t.FullName,
		Contact:  contact,
		Subject:  t.Subject,
		Message:  truncate(t.Message, messagePreviewLength),
		Date:     t.SubmittedAt,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func ticketDetail(t domain.Ticket) dto.TicketDetailResponse {
	atts := make([]dto.AttachmentResponse, 0, len(t.Attachments))
	for i, a := range t.Attachments {
		atts = append(atts, dto.AttachmentResponse{
			Index:     i,
			Name:      a.Name,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
			URL:       "/tickets/" + strconv.FormatInt(t.ID, 10) + "/attachments/" + strconv.Itoa(i),
		})
	}
	return dto.TicketDetailResponse{
		ID:               t.ID,
		FullName:         t.FullName,
		Email:            t.Email,
		Phone:            t.Phone,
		Subject:          t.Subject,
		Message:          t.Message,
		PreferredContact: t.PreferredContact,
		Attachments:      atts,
		Date:             t.SubmittedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
