package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trainstatus/ingest/source"
)

type AlertSection int

const (
	AlertSectionHeader AlertSection = iota
	AlertSectionDescription
)

func (s AlertSection) String() string {
	if s == AlertSectionDescription {
		return "description"
	}
	return "header"
}

type AlertFormat int

const (
	AlertFormatPlain AlertFormat = iota
	AlertFormatHTML
)

func (f AlertFormat) String() string {
	if f == AlertFormatHTML {
		return "html"
	}
	return "plain"
}

type AlertData interface{ isAlertData() }

// MtaAlertData is shared by both MTA sources (subway and bus); the Mercury
// extension carries the same fields regardless of mode.
type MtaAlertData struct {
	AlertType           string  `json:"alert_type"`
	DisplayBeforeActive *int32  `json:"display_before_active,omitempty"`
	// CloneID names the original_id of the alert this one supersedes.
	CloneID *string `json:"clone_id,omitempty"`
}

func (MtaAlertData) isAlertData() {}

func DecodeAlertData(src source.Source, raw []byte) (AlertData, error) {
	switch src {
	case source.MtaSubway, source.MtaBus:
		var d MtaAlertData
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decoding alert data: %w", err)
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown source %v", src)
	}
}

type Alert struct {
	ID         string // client-proposed id; store may remap to an existing natural-key id
	OriginalID string
	Source     source.Source
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RecordedAt time.Time
	Data       AlertData
}

type AlertTranslation struct {
	AlertID  string
	Section  AlertSection
	Format   AlertFormat
	Language string
	Text     string
}

// ParseMtaLanguageTag splits an MTA translation language tag such as
// "en-html" into (language, format). A trailing "-html" selects HTML
// format and is stripped; anything else is Plain.
func ParseMtaLanguageTag(tag string) (language string, format AlertFormat) {
	const htmlSuffix = "-html"
	if len(tag) > len(htmlSuffix) && tag[len(tag)-len(htmlSuffix):] == htmlSuffix {
		return tag[:len(tag)-len(htmlSuffix)], AlertFormatHTML
	}
	return tag, AlertFormatPlain
}

// ActivePeriod's EndTime of nil means open-ended.
type ActivePeriod struct {
	AlertID   string
	StartTime time.Time
	EndTime   *time.Time
}

type AffectedEntity struct {
	AlertID   string
	RouteID   *string
	Source    source.Source
	StopID    *string
	SortOrder int32
}

// APIAlert is the flattened, client-facing shape of an alert: one row per
// alert with its English header/description translation and the widest
// active-period bounds, rather than the normalized storage tables.
type APIAlert struct {
	ID              string           `json:"id"`
	OriginalID      string           `json:"original_id"`
	AlertType       string           `json:"alert_type"`
	HeaderHTML      string           `json:"header_html"`
	DescriptionHTML *string          `json:"description_html,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	Entities        []APIAlertEntity `json:"entities"`
}

type APIAlertEntity struct {
	RouteID   string  `json:"route_id"`
	SortOrder int32   `json:"sort_order"`
	StopID    *string `json:"stop_id,omitempty"`
}
