package activities

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateDetails(t *testing.T) {
	email := &EmailDetails{Subject: "s", Body: "b"}
	calendar := &CalendarDetails{Title: "kickoff"}
	generic := &GenericDetails{Note: "call notes"}

	tests := []struct {
		name string
		req  CreateActivityRequest
		want bool
	}{
		{"email kind with email details", CreateActivityRequest{Kind: "email", Email: email}, true},
		{"calendar kind with calendar details", CreateActivityRequest{Kind: "calendar", Calendar: calendar}, true},
		{"generic kind with generic details", CreateActivityRequest{Kind: "generic", Generic: generic}, true},
		{"no details", CreateActivityRequest{Kind: "email"}, false},
		{"two details objects", CreateActivityRequest{Kind: "email", Email: email, Generic: generic}, false},
		{"kind and details mismatch", CreateActivityRequest{Kind: "email", Calendar: calendar}, false},
		{"unknown kind", CreateActivityRequest{Kind: "sms", Generic: generic}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.validateDetails(); got != tt.want {
				t.Errorf("validateDetails() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToInputCarriesCounterparts(t *testing.T) {
	opportunityID := uuid.New()
	req := CreateActivityRequest{
		Kind:          "email",
		ProspectID:    uuid.New(),
		OpportunityID: &opportunityID,
		EventDate:     time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		Email:         &EmailDetails{Subject: "s", Body: "b"},
		Counterparts: []CounterpartInput{
			{Name: "Dana", Email: "dana@acme.test", Phone: "+31612345678"},
		},
	}

	in := req.toInput()
	if in.Kind != KindEmail {
		t.Errorf("kind = %s, want %s", in.Kind, KindEmail)
	}
	if in.OpportunityID == nil || *in.OpportunityID != opportunityID {
		t.Errorf("opportunityId = %v, want %s", in.OpportunityID, opportunityID)
	}
	if len(in.Counterparts) != 1 || in.Counterparts[0].Email != "dana@acme.test" {
		t.Errorf("counterparts = %+v, want the observed participant carried over", in.Counterparts)
	}
}
