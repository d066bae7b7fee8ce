package gtfsrt

import (
	"testing"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protowire"
)

// withUnknown wraps inner as a length-delimited field at fieldNumber,
// mimicking what an upstream feed's unrecognized extension submessage looks
// like over the wire.
func withUnknown(raw []byte, fieldNumber protowire.Number, inner []byte) []byte {
	raw = protowire.AppendTag(raw, fieldNumber, protowire.BytesType)
	raw = protowire.AppendBytes(raw, inner)
	return raw
}

func TestGetNyctTripDescriptor(t *testing.T) {
	inner := protowire.AppendTag(nil, nyctTripTrainIDField, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte("0123+ GS/SIR"))
	inner = protowire.AppendTag(inner, nyctTripIsAssignedField, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 1)
	inner = protowire.AppendTag(inner, nyctTripDirectionField, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 3)

	var unknown []byte
	unknown = withUnknown(unknown, nyctTripDescriptorFieldNumber, inner)

	td := &gtfsproto.TripDescriptor{}
	td.ProtoReflect().SetUnknown(unknown)

	nyct, ok := GetNyctTripDescriptor(td)
	if !ok {
		t.Fatal("expected extension present")
	}
	if !nyct.HasTrainID || nyct.TrainID != "0123+ GS/SIR" {
		t.Errorf("TrainID = %q, HasTrainID = %v", nyct.TrainID, nyct.HasTrainID)
	}
	if !nyct.IsAssigned {
		t.Error("expected IsAssigned true")
	}
	if !nyct.HasDirection || nyct.Direction != 3 {
		t.Errorf("Direction = %d, HasDirection = %v", nyct.Direction, nyct.HasDirection)
	}
}

func TestGetNyctTripDescriptorAbsent(t *testing.T) {
	td := &gtfsproto.TripDescriptor{}
	_, ok := GetNyctTripDescriptor(td)
	if ok {
		t.Error("expected no extension on a bare TripDescriptor")
	}
}

func TestGetNyctStopTimeUpdate(t *testing.T) {
	inner := protowire.AppendTag(nil, nyctStopScheduledTrackField, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte("4"))
	inner = protowire.AppendTag(inner, nyctStopActualTrackField, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte("4 "))

	var unknown []byte
	unknown = withUnknown(unknown, nyctStopTimeUpdateFieldNumber, inner)

	stu := &gtfsproto.TripUpdate_StopTimeUpdate{}
	stu.ProtoReflect().SetUnknown(unknown)

	nyct, ok := GetNyctStopTimeUpdate(stu)
	if !ok {
		t.Fatal("expected extension present")
	}
	if nyct.ScheduledTrack == nil || *nyct.ScheduledTrack != "4" {
		t.Errorf("ScheduledTrack = %v", nyct.ScheduledTrack)
	}
	if nyct.ActualTrack == nil || *nyct.ActualTrack != "4 " {
		t.Errorf("ActualTrack = %v", nyct.ActualTrack)
	}
}

func TestGetMercuryAlert(t *testing.T) {
	inner := protowire.AppendTag(nil, mercuryAlertTypeField, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte("Delays"))
	inner = protowire.AppendTag(inner, mercuryDisplayBeforeActiveField, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 3600)
	inner = protowire.AppendTag(inner, mercuryCreatedAtField, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 1700000000)
	inner = protowire.AppendTag(inner, mercuryUpdatedAtField, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 1700000100)
	inner = protowire.AppendTag(inner, mercuryCloneIDField, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte("lmm:alert:1234"))
	inner = protowire.AppendTag(inner, mercurySortOrderField, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 5)

	var unknown []byte
	unknown = withUnknown(unknown, mercuryAlertFieldNumber, inner)

	alert := &gtfsproto.Alert{}
	alert.ProtoReflect().SetUnknown(unknown)

	m, ok := GetMercuryAlert(alert)
	if !ok {
		t.Fatal("expected extension present")
	}
	if m.AlertType != "Delays" {
		t.Errorf("AlertType = %q", m.AlertType)
	}
	if m.DisplayBeforeActive == nil || *m.DisplayBeforeActive != 3600 {
		t.Errorf("DisplayBeforeActive = %v", m.DisplayBeforeActive)
	}
	if m.CreatedAtUnix != 1700000000 {
		t.Errorf("CreatedAtUnix = %d", m.CreatedAtUnix)
	}
	if m.UpdatedAtUnix != 1700000100 {
		t.Errorf("UpdatedAtUnix = %d", m.UpdatedAtUnix)
	}
	if m.CloneID == nil || *m.CloneID != "lmm:alert:1234" {
		t.Errorf("CloneID = %v", m.CloneID)
	}
	if m.SortOrder != 5 {
		t.Errorf("SortOrder = %d", m.SortOrder)
	}
}

func TestGetMercuryAlertAbsent(t *testing.T) {
	alert := &gtfsproto.Alert{}
	_, ok := GetMercuryAlert(alert)
	if ok {
		t.Error("expected no extension on a bare Alert")
	}
}
