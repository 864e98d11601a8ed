package dto

import (
	"time"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/query"
)

// SubmitTicketRequest is the JSON form of a submission. Multipart forms use
// the same field names.
type SubmitTicketRequest struct {
	FullName         string               `json:"fullName"`
	Email            string               `json:"email"`
	Phone            string               `json:"phone"`
	Subject          domain.TicketSubject `json:"subject"`
	Message          string               `json:"message"`
	PreferredContact domain.ContactMethod `json:"preferredContact"`
	Terms            bool                 `json:"terms"`
}

// Draft converts the request to a domain draft.
func (r SubmitTicketRequest) Draft() domain.TicketDraft {
	return domain.TicketDraft{
		FullName:         r.FullName,
		Email:            r.Email,
		Phone:            r.Phone,
		Subject:          r.Subject,
		Message:          r.Message,
		PreferredContact: r.PreferredContact,
		Terms:            r.Terms,
	}
}

// EditTicketRequest payload; omitted fields stay unchanged.
type EditTicketRequest struct {
	FullName         *string               `json:"fullName"`
	Email            *string               `json:"email"`
	Phone            *string               `json:"phone"`
	Subject          *domain.TicketSubject `json:"subject"`
	Message          *string               `json:"message"`
	PreferredContact *domain.ContactMethod `json:"preferredContact"`
}

// Patch converts the request to a domain patch.
func (r EditTicketRequest) Patch() domain.TicketPatch {
	return domain.TicketPatch{
		FullName:         r.FullName,
		Email:            r.Email,
		Phone:            r.Phone,
		Subject:          r.Subject,
		Message:          r.Message,
		PreferredContact: r.PreferredContact,
	}
}

// TicketRow is one line of the ticket table.
type TicketRow struct {
	Index    int                  `json:"index"`
	ID       int64                `json:"id"`
	FullName string               `json:"fullName"`
	Contact  string               `json:"contact"`
	Subject  domain.TicketSubject `json:"subject"`
	Message  string               `json:"message"`
	Date     time.Time            `json:"date"`
}

// TicketListResponse carries the rows and the canonical view state.
type TicketListResponse struct {
	Data    []TicketRow        `json:"data"`
	Query   string             `json:"query"`
	Filters []query.FilterRule `json:"filters"`
	SortBy  []query.SortRule   `json:"sortBy"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	MimeType  string `json:"type"`
	SizeBytes int64  `json:"size"`
	URL       string `json:"url"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID               int64                `json:"id"`
	FullName         string               `json:"fullName"`
	Email            string               `json:"email,omitempty"`
	Phone            string               `json:"phone,omitempty"`
	Subject          domain.TicketSubject `json:"subject"`
	Message          string               `json:"message"`
	PreferredContact domain.ContactMethod `json:"preferredContact"`
	Attachments      []AttachmentResponse `json:"attachments"`
	Date             time.Time            `json:"date"`
}

// ViewStateRequest asks for the query string describing a table view.
// Reset clears "filters" or "sort" before encoding.
type ViewStateRequest struct {
	Filters []query.FilterRule `json:"filters"`
	SortBy  []query.SortRule   `json:"sortBy"`
	Reset   string             `json:"reset,omitempty"`
}

// ViewStateResponse is the canonical encoding of a view.
type ViewStateResponse struct {
	Query string `json:"query"`
	URL   string `json:"url"`
}

// LinkResponse carries a tel: or mailto: URI.
type LinkResponse struct {
	Href string `json:"href"`
}
