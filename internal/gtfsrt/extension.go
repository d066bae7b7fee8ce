// Package gtfsrt decodes the GTFS-Realtime vendor extensions this system
// depends on (NYCT subway, Mercury alerts) on top of the base FeedMessage
// types from github.com/MobilityData/gtfs-realtime-bindings.
//
// The base GTFS-RT schema is assumed available (spec Non-goals: "Specific
// protobuf schema definitions"); these vendor extensions are not part of
// that public .proto, and the bindings package has no generated Go type for
// them. Rather than vendor a hand-maintained .proto and its generated code
// for two small messages, this package reads the extension submessages
// directly off the unknown fields of the message that carries them
// (TripDescriptor, TripUpdate_StopTimeUpdate, Alert) with protowire: the base
// library doesn't know these extension numbers exist, so any message an
// upstream feed attaches lands in GetUnknown() verbatim, and we only need a
// handful of scalar fields out of each.
package gtfsrt

import (
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Extension field numbers, per the NYCT subway and Mercury alert vendor
// extension protos.
const (
	nyctTripDescriptorFieldNumber  = 1001
	nyctStopTimeUpdateFieldNumber  = 1001
	mercuryAlertFieldNumber        = 1001
)

// Field numbers within NyctTripDescriptor.
const (
	nyctTripTrainIDField    = 1
	nyctTripIsAssignedField = 2
	nyctTripDirectionField  = 3
)

// Field numbers within NyctStopTimeUpdate.
const (
	nyctStopScheduledTrackField = 1
	nyctStopActualTrackField   = 2
)

// Field numbers within MercuryAlert.
const (
	mercuryAlertTypeField             = 1
	mercuryDisplayBeforeActiveField   = 2
	mercuryCreatedAtField             = 4
	mercuryUpdatedAtField             = 5
	mercuryCloneIDField               = 6
	mercurySortOrderField             = 7
)

// NyctTripDescriptor holds the fields the subway adapter needs out of the
// NYCT extension on a TripDescriptor.
type NyctTripDescriptor struct {
	TrainID    string
	HasTrainID bool
	// Direction: 1=north, 2=east (unused), 3=south, 4=west (unused).
	Direction    int32
	HasDirection bool
	IsAssigned   bool
}

// NyctStopTimeUpdate holds the track fields out of the NYCT extension on a
// TripUpdate_StopTimeUpdate.
type NyctStopTimeUpdate struct {
	ScheduledTrack *string
	ActualTrack    *string
}

// MercuryAlert holds the fields the alert adapters need out of the Mercury
// extension on an Alert.
type MercuryAlert struct {
	AlertType           string
	DisplayBeforeActive *int32
	CreatedAtUnix       int64
	UpdatedAtUnix       int64
	CloneID             *string
	SortOrder           int32
}

// extensionBytes scans a message's unrecognized wire bytes for the
// length-delimited submessage attached at fieldNumber, returning the raw
// bytes of the first occurrence.
func extensionBytes(m proto.Message, fieldNumber protowire.Number) ([]byte, bool) {
	unknown := m.ProtoReflect().GetUnknown()
	for len(unknown) > 0 {
		num, typ, n := protowire.ConsumeTag(unknown)
		if n < 0 {
			return nil, false
		}
		unknown = unknown[n:]

		n = protowire.ConsumeFieldValue(num, typ, unknown)
		if n < 0 {
			return nil, false
		}
		field := unknown[:n]
		unknown = unknown[n:]

		if num == fieldNumber && typ == protowire.BytesType {
			b, _ := protowire.ConsumeBytes(field)
			return b, true
		}
	}
	return nil, false
}

func scanFields(data []byte, visit func(num protowire.Number, typ protowire.Type, val []byte) bool) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return
		}
		data = data[n:]
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return
		}
		field := data[:n]
		data = data[n:]
		if !visit(num, typ, field) {
			return
		}
	}
}

func readString(field []byte, typ protowire.Type) (string, bool) {
	if typ != protowire.BytesType {
		return "", false
	}
	b, _ := protowire.ConsumeBytes(field)
	return string(b), true
}

func readVarint(field []byte, typ protowire.Type) (uint64, bool) {
	if typ != protowire.VarintType {
		return 0, false
	}
	v, _ := protowire.ConsumeVarint(field)
	return v, true
}

// GetNyctTripDescriptor extracts the NYCT extension from a TripDescriptor,
// if present.
func GetNyctTripDescriptor(td proto.Message) (*NyctTripDescriptor, bool) {
	raw, ok := extensionBytes(td, nyctTripDescriptorFieldNumber)
	if !ok {
		return nil, false
	}
	out := &NyctTripDescriptor{}
	scanFields(raw, func(num protowire.Number, typ protowire.Type, val []byte) bool {
		switch num {
		case nyctTripTrainIDField:
			if s, ok := readString(val, typ); ok {
				out.TrainID = s
				out.HasTrainID = true
			}
		case nyctTripIsAssignedField:
			if v, ok := readVarint(val, typ); ok {
				out.IsAssigned = v != 0
			}
		case nyctTripDirectionField:
			if v, ok := readVarint(val, typ); ok {
				out.Direction = int32(v)
				out.HasDirection = true
			}
		}
		return true
	})
	return out, true
}

// GetNyctStopTimeUpdate extracts the NYCT track extension from a
// TripUpdate_StopTimeUpdate, if present.
func GetNyctStopTimeUpdate(stu proto.Message) (*NyctStopTimeUpdate, bool) {
	raw, ok := extensionBytes(stu, nyctStopTimeUpdateFieldNumber)
	if !ok {
		return nil, false
	}
	out := &NyctStopTimeUpdate{}
	scanFields(raw, func(num protowire.Number, typ protowire.Type, val []byte) bool {
		switch num {
		case nyctStopScheduledTrackField:
			if s, ok := readString(val, typ); ok {
				out.ScheduledTrack = &s
			}
		case nyctStopActualTrackField:
			if s, ok := readString(val, typ); ok {
				out.ActualTrack = &s
			}
		}
		return true
	})
	return out, true
}

// GetMercuryAlert extracts the Mercury extension from an Alert, if present.
// Entities without it are skipped entirely by the alert pipeline (spec
// §4.3 step 2).
func GetMercuryAlert(alert proto.Message) (*MercuryAlert, bool) {
	raw, ok := extensionBytes(alert, mercuryAlertFieldNumber)
	if !ok {
		return nil, false
	}
	out := &MercuryAlert{}
	scanFields(raw, func(num protowire.Number, typ protowire.Type, val []byte) bool {
		switch num {
		case mercuryAlertTypeField:
			if s, ok := readString(val, typ); ok {
				out.AlertType = s
			}
		case mercuryDisplayBeforeActiveField:
			if v, ok := readVarint(val, typ); ok {
				dv := int32(v)
				out.DisplayBeforeActive = &dv
			}
		case mercuryCreatedAtField:
			if v, ok := readVarint(val, typ); ok {
				out.CreatedAtUnix = int64(v)
			}
		case mercuryUpdatedAtField:
			if v, ok := readVarint(val, typ); ok {
				out.UpdatedAtUnix = int64(v)
			}
		case mercuryCloneIDField:
			if s, ok := readString(val, typ); ok {
				out.CloneID = &s
			}
		case mercurySortOrderField:
			if v, ok := readVarint(val, typ); ok {
				out.SortOrder = int32(v)
			}
		}
		return true
	})
	return out, true
}
