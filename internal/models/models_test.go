package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestCampaignRecord_Fields(t *testing.T) {
	typ := reflect.TypeOf(CampaignRecord{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "CampaignID", "uniqueIndex:idx_channel_campaign")
	assertGormTag(t, typ, "CampaignID", "not null")
	assertGormTag(t, typ, "Channel", "uniqueIndex:idx_channel_campaign")
	assertGormTag(t, typ, "Channel", "size:16")
	assertGormTag(t, typ, "Descriptor", "type:text")
	assertGormTag(t, typ, "EventTag", "index")
	assertGormTag(t, typ, "CreatedAt", "index")

	assertFieldType(t, typ, "Total", "int")
	assertFieldType(t, typ, "Provisional", "bool")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestTemplateSubmission_Fields(t *testing.T) {
	typ := reflect.TypeOf(TemplateSubmission{})

	assertGormTag(t, typ, "Name", "uniqueIndex:idx_template_lang")
	assertGormTag(t, typ, "Language", "uniqueIndex:idx_template_lang")
	assertGormTag(t, typ, "Status", "default:PENDING")
	assertGormTag(t, typ, "Category", "not null")
}
