package gmp

import (
	"encoding/xml"
	"strings"
)

// responseStatus carries the status attributes present on every GMP response.
type responseStatus struct {
	Status     string `xml:"status,attr"`
	StatusText string `xml:"status_text,attr"`
}

func (r *responseStatus) status() *responseStatus { return r }

// ok reports whether the status is in the 2xx range.
func (r *responseStatus) ok() bool {
	return len(r.Status) == 3 && r.Status[0] == '2'
}

type response interface {
	status() *responseStatus
}

type idRef struct {
	ID string `xml:"id,attr"`
}

type authenticateCommand struct {
	XMLName  xml.Name `xml:"authenticate"`
	Username string   `xml:"credentials>username"`
	Password string   `xml:"credentials>password"`
}

type authenticateResponse struct {
	XMLName xml.Name `xml:"authenticate_response"`
	responseStatus
	Role     string `xml:"role"`
	Timezone string `xml:"timezone"`
}

type getVersionCommand struct {
	XMLName xml.Name `xml:"get_version"`
}

type getVersionResponse struct {
	XMLName xml.Name `xml:"get_version_response"`
	responseStatus
	Version string `xml:"version"`
}

type getTargetsCommand struct {
	XMLName xml.Name `xml:"get_targets"`
	Filter  string   `xml:"filter,attr"`
}

type targetElement struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name"`
}

type getTargetsResponse struct {
	XMLName xml.Name `xml:"get_targets_response"`
	responseStatus
	Targets []targetElement `xml:"target"`
}

type createTargetCommand struct {
	XMLName  xml.Name `xml:"create_target"`
	Name     string   `xml:"name"`
	Hosts    string   `xml:"hosts"`
	PortList idRef    `xml:"port_list"`
}

type createTaskCommand struct {
	XMLName xml.Name `xml:"create_task"`
	Name    string   `xml:"name"`
	Config  idRef    `xml:"config"`
	Target  idRef    `xml:"target"`
	Scanner idRef    `xml:"scanner"`
}

// createResponse decodes create_target_response and create_task_response.
type createResponse struct {
	XMLName xml.Name
	responseStatus
	ID string `xml:"id,attr"`
}

type startTaskCommand struct {
	XMLName xml.Name `xml:"start_task"`
	TaskID  string   `xml:"task_id,attr"`
}

type startTaskResponse struct {
	XMLName xml.Name `xml:"start_task_response"`
	responseStatus
	ReportID string `xml:"report_id"`
}

type getReportsCommand struct {
	XMLName  xml.Name `xml:"get_reports"`
	ReportID string   `xml:"report_id,attr"`
	FormatID string   `xml:"format_id,attr,omitempty"`
	Details  string   `xml:"details,attr,omitempty"`
}

type getReportsResponse struct {
	XMLName xml.Name `xml:"get_reports_response"`
	responseStatus
	Reports []reportEnvelope `xml:"report"`
}

// innerReport is the XML rendering of a report, nested inside the envelope.
type innerReport struct {
	ID            string `xml:"id,attr"`
	ScanRunStatus string `xml:"scan_run_status"`
}

// reportEnvelope is the outer <report> element of get_reports_response. For
// non-XML formats the rendered document follows <report_format> as base64
// character data; for the XML format a nested <report> follows instead.
type reportEnvelope struct {
	ID           string
	FormatID     string
	Extension    string
	ContentType  string
	ReportFormat *idRef
	Report       *innerReport
	// Payload is the character data following <report_format>.
	Payload string
}

// UnmarshalXML implements xml.Unmarshaler.
func (r *reportEnvelope) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			r.ID = attr.Value
		case "format_id":
			r.FormatID = attr.Value
		case "extension":
			r.Extension = attr.Value
		case "content_type":
			r.ContentType = attr.Value
		}
	}

	var payload strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "report_format":
				format := &idRef{}
				if err := d.DecodeElement(format, &t); err != nil {
					return err
				}
				r.ReportFormat = format
			case "report":
				inner := &innerReport{}
				if err := d.DecodeElement(inner, &t); err != nil {
					return err
				}
				r.Report = inner
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.CharData:
			if r.ReportFormat != nil {
				payload.Write(t)
			}
		case xml.EndElement:
			r.Payload = payload.String()
			return nil
		}
	}
}
