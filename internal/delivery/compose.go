package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/tbourn/go-contact-intake/internal/domain"
)

// notAvailable stands in for empty optional fields in email bodies.
const notAvailable = "N/A"

// Message is a composed email ready for a mail transport.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Composer turns submissions into notification emails.
type Composer struct {
	// Context leads the subject line, e.g. "Moducode call booking".
	Context string
	From    string
	To      string
	// EscapeHTML escapes visitor-provided text in the HTML body. When false
	// values are interpolated verbatim.
	EscapeHTML bool
}

var htmlBody = template.Must(template.New("submission").Parse(`<h2>New contact form submission</h2>
<p><strong>From:</strong> {{.Name}} &lt;{{.Email}}&gt;</p>
<p><strong>Company:</strong> {{.Company}}</p>
<p><strong>Job Title:</strong> {{.JobTitle}}</p>
<p><strong>Country:</strong> {{.Country}}</p>
<p><strong>Phone:</strong> {{.Phone}}</p>
<h3>Message</h3>
<p>{{.Message}}</p>
<hr>
<p><small>Submission ID: {{.ID}}</small></p>
<p><small>Timestamp: {{.Timestamp}}</small></p>
`))

type htmlFields struct {
	Name, Email, Company, JobTitle, Country, Phone template.HTML
	Message, ID, Timestamp                         template.HTML
}

var newlines = strings.NewReplacer("\r\n", "<br/>", "\n", "<br/>")

// Compose builds the email for s. Reply-To is the visitor's address.
func (c Composer) Compose(s domain.Submission) Message {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	ts := s.FormattedTimestamp()

	return Message{
		From:    c.From,
		To:      c.To,
		ReplyTo: s.Email,
		Subject: strings.TrimSpace(fmt.Sprintf("%s submission — %s %s", c.Context, s.FirstName, s.LastName)),
		HTML:    c.html(s, name, ts),
		Text: fmt.Sprintf("%s\n\n--\nFrom: %s <%s>\nCompany: %s\nJob Title: %s\nCountry: %s\nPhone: %s\n\nSubmission ID: %s\nTimestamp: %s",
			s.Message, name, s.Email, orNA(s.Company), orNA(s.JobTitle), orNA(s.Country), orNA(s.Phone), s.ID, ts),
	}
}

func (c Composer) html(s domain.Submission, name, ts string) string {
	h := func(v string) template.HTML {
		if c.EscapeHTML {
			return template.HTML(template.HTMLEscapeString(v))
		}
		return template.HTML(v)
	}
	f := htmlFields{
		Name:      h(name),
		Email:     h(s.Email),
		Company:   h(orNA(s.Company)),
		JobTitle:  h(orNA(s.JobTitle)),
		Country:   h(orNA(s.Country)),
		Phone:     h(orNA(s.Phone)),
		Message:   template.HTML(newlines.Replace(string(h(s.Message)))),
		ID:        h(s.ID),
		Timestamp: h(ts),
	}
	var b strings.Builder
	// Every field is template.HTML, so execution cannot fail on content.
	_ = htmlBody.Execute(&b, f)
	return b.String()
}

func orNA(v string) string {
	if v == "" {
		return notAvailable
	}
	return v
}

var headerSafe = strings.NewReplacer("\r", "", "\n", "")

// Bytes renders m as an RFC 5322 multipart/alternative message with
// quoted-printable text and HTML parts.
func (m Message) Bytes(date time.Time, messageID string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headerSafe.Replace(v))
	}
	header("From", m.From)
	header("To", m.To)
	if m.ReplyTo != "" {
		header("Reply-To", m.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("Message-ID", "<"+messageID+">")
	header("MIME-Version", "1.0")
	header("Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()}))
	buf.WriteString("\r\n")

	parts := []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
