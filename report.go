package civicscreen

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidReport is returned by Report.Validate for reports missing required fields.
var ErrInvalidReport = errors.New("civicscreen: invalid report")

// Report is a citizen-submitted civic issue report. The pipeline never mutates it.
type Report struct {
	ReportID    string   `json:"report_id"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	UserID      *string  `json:"user_id,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// Validate checks the required fields. Transport layers call it before Submit.
func (r Report) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ReportID) == "" {
		missing = append(missing, "report_id")
	}
	if strings.TrimSpace(r.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(r.Category) == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidReport, strings.Join(missing, ", "))
	}
	return nil
}

func (r Report) hasImage() bool {
	return r.ImageURL != nil && strings.TrimSpace(*r.ImageURL) != ""
}

func (r Report) hasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Status is the terminal state of an admission decision.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Rejection reasons.
const (
	ReasonDuplicateText     = "duplicate_text"
	ReasonDuplicateImage    = "duplicate_image"
	ReasonDuplicateLocation = "duplicate_location"
)

// Verdict is the admission outcome for one report.
type Verdict struct {
	ReportID      string   `json:"report_id"`
	Status        Status   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
	Category      string   `json:"category,omitempty"`
	TextCategory  *string  `json:"text_category"`
	ImageCategory *string  `json:"image_category"`
}

func rejected(reportID, reason string) Verdict {
	return Verdict{ReportID: reportID, Status: StatusRejected, Reason: reason}
}

// Record is the unit appended to the dataset log: the raw report plus its verdict.
type Record struct {
	ID            string         `json:"id"`
	ReceivedAt    time.Time      `json:"received_at"`
	Report        Report         `json:"report"`
	Verdict       Verdict        `json:"verdict"`
	ImageMetadata *ImageMetadata `json:"image_metadata,omitempty"`
}
