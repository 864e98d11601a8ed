package domain

import "time"

// TicketSubject enumerates the request categories offered by the form.
type TicketSubject string

const (
	SubjectBilling   TicketSubject = "Billing"
	SubjectTechnical TicketSubject = "Technical"
	SubjectGeneral   TicketSubject = "General"
)

// Subjects lists the closed subject set in display order.
var Subjects = []TicketSubject{SubjectBilling, SubjectTechnical, SubjectGeneral}

// ContactMethod is how the requester prefers to be reached.
type ContactMethod string

const (
	ContactPhone ContactMethod = "phone"
	ContactEmail ContactMethod = "email"
)

// Ticket is one submitted support request.
type Ticket struct {
	ID               int64         `json:"id"`
	FullName         string        `json:"fullName"`
	Email            string        `json:"email,omitempty"`
	Phone            string        `json:"phone,omitempty"`
	Subject          TicketSubject `json:"subject"`
	Message          string        `json:"message"`
	PreferredContact ContactMethod `json:"preferredContact"`
	Attachments      []Attachment  `json:"attachments,omitempty"`
	SubmittedAt      time.Time     `json:"date"`
}

// Attachment is a file uploaded with a ticket. Content is stored inline.
type Attachment struct {
	Name      string `json:"name"`
	MimeType  string `json:"type"`
	SizeBytes int64  `json:"size"`
	Content   []byte `json:"data,omitempty"`
}

// TicketDraft is an unvalidated form submission.
type TicketDraft struct {
	FullName         string
	Email            string
	Phone            string
	Subject          TicketSubject
	Message          string
	PreferredContact ContactMethod
	Terms            bool
	Attachments      []Attachment
}

// TicketPatch lists the editable fields; nil means unchanged.
type TicketPatch struct {
	FullName         *string
	Email            *string
	Phone            *string
	Subject          *TicketSubject
	Message          *string
	PreferredContact *ContactMethod
}

// Empty reports whether the patch changes nothing.
func (p TicketPatch) Empty() bool {
	return p.FullName == nil && p.Email == nil && p.Phone == nil &&
		p.Subject == nil && p.Message == nil && p.PreferredContact == nil
}

// Apply returns a copy of t with the patched fields replaced.
func (p TicketPatch) Apply(t Ticket) Ticket {
	if p.FullName != nil {
		t.FullName = *p.FullName
	}
	if p.Email != nil {
		t.Email = *p.Email
	}
	if p.Phone != nil {
		t.Phone = *p.Phone
	}
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.PreferredContact != nil {
		t.PreferredContact = *p.PreferredContact
	}
	return t
}

// NewTicket builds an unsaved ticket from a draft.
func NewTicket(d TicketDraft) Ticket {
	return Ticket{
		FullName:         d.FullName,
		Email:            d.Email,
		Phone:            d.Phone,
		Subject:          d.Subject,
		Message:          d.Message,
		PreferredContact: d.PreferredContact,
		Attachments:      d.Attachments,
	}
}

// Clone returns a deep copy so callers never alias stored slices.
func (t Ticket) Clone() Ticket {
	if t.Attachments == nil {
		return t
	}
	atts := make([]Attachment, len(t.Attachments))
	for i, a := range t.Attachments {
		atts[i] = a
		if a.Content != nil {
			atts[i].Content = append([]byte(nil), a.Content...)
		}
	}
	t.Attachments = atts
	return t
}

// CloneTickets deep-copies a ticket list.
func CloneTickets(in []Ticket) []Ticket {
	out := make([]Ticket, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
