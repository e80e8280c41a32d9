package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/MindCare/internal/screening"
)

func TestSessionRecordJSON(t *testing.T) {
	rec := SessionRecord{ID: "abc", UserID: "+123", Session: screening.NewSession()}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"id":"abc"`, `"user_id":"+123"`, `"phase":{"kind":"START"`, `"tier2_totals"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("encoded record missing %s: %s", key, b)
		}
	}
}

func TestChoiceRequestValidate(t *testing.T) {
	var r ChoiceRequest
	if err := r.Validate(); !errors.Is(err, ErrMissingChoice) {
		t.Errorf("expected ErrMissingChoice, got %v", err)
	}
	zero := 0
	r.Value = &zero
	if err := r.Validate(); err != nil {
		t.Errorf("zero is a valid payload value: %v", err)
	}
}

func TestTextRequestValidate(t *testing.T) {
	if err := (&TextRequest{}).Validate(); err != nil {
		t.Errorf("empty text should be accepted: %v", err)
	}
	long := TextRequest{Text: strings.Repeat("a", MaxTextLength+1)}
	if err := long.Validate(); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("expected ErrTextTooLong, got %v", err)
	}
}

func TestProfileRequestValidate(t *testing.T) {
	r := ProfileRequest{DisplayName: "  Sam  "}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DisplayName != "Sam" {
		t.Errorf("display name not trimmed: %q", r.DisplayName)
	}
	r.DisplayName = strings.Repeat("x", MaxDisplayNameLength+1)
	if err := r.Validate(); !errors.Is(err, ErrDisplayNameTooLong) {
		t.Errorf("expected ErrDisplayNameTooLong, got %v", err)
	}
}

func TestValidateUserID(t *testing.T) {
	if err := ValidateUserID(" "); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if err := ValidateUserID("+15551234567"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("unexpected success response %+v", ok)
	}
	e := Error("boom")
	if e.Status != string(APIStatusError) || e.Message != "boom" || e.Result != nil {
		t.Errorf("unexpected error response %+v", e)
	}
	b, _ := json.Marshal(e)
	if strings.Contains(string(b), "result") {
		t.Errorf("error envelope should omit result: %s", b)
	}
}
