package validation

import (
	"testing"

	"github.com/neuralnotes/neuralnotes/errors"
)

func TestMeetingIDFormat(t *testing.T) {
	cases := []struct {
		value string
		ok    bool
	}{
		{"mtg_0a1b2c3d", true},
		{"mtg_00000000", true},
		{"", false},
		{"mtg_", false},
		{"mtg_0a1b2c3", false},
		{"mtg_0a1b2c3dd", false},
		{"mtg_0A1B2C3D", false},
		{"meet_0a1b2c3d", false},
	}
	for _, tc := range cases {
		err := ValidateMeetingID(tc.value)
		if tc.ok && err != nil {
			t.Errorf("ValidateMeetingID(%q) = %v, want nil", tc.value, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidateMeetingID(%q) = nil, want error", tc.value)
		}
	}
}

func TestValidatorCollectsAllErrors(t *testing.T) {
	appErr := New().
		Required("question", "").
		Range("top_k", 99, 1, 20).
		MeetingID("meeting_id", "nope").
		Validate()
	if appErr == nil {
		t.Fatal("expected validation error")
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("code = %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 3 {
		t.Errorf("fields = %v", appErr.Details["fields"])
	}
}

func TestValidatorPassesCleanInput(t *testing.T) {
	appErr := New().
		Required("question", "what was decided?").
		Range("top_k", 5, 1, 20).
		MeetingID("meeting_id", "mtg_0a1b2c3d").
		JobID("job_id", "6ba7b810-9dad-11d1-80b4-00c04fd430c8").
		Validate()
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
}

func TestStructValidation(t *testing.T) {
	type askRequest struct {
		Question string `json:"question" validate:"required,max=2000"`
		TopK     int    `json:"top_k" validate:"gte=0,lte=20"`
	}

	if err := Validate(askRequest{Question: "what happened?", TopK: 5}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	err := Validate(askRequest{Question: "", TopK: 50})
	if err == nil {
		t.Fatal("invalid request accepted")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeInvalidInput {
		t.Fatalf("err = %v", err)
	}
	fields := appErr.Details["fields"].([]FieldError)
	if len(fields) != 2 {
		t.Errorf("fields = %v", fields)
	}
}
