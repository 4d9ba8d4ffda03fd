package id_test

import (
	"strings"
	"testing"

	"github.com/bitflowhq/bitflow-go/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"StreamID", id.NewStreamID, "strm_"},
		{"PlanID", id.NewPlanID, "plan_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"EndpointID", id.NewEndpointID, "whe_"},
		{"DeliveryID", id.NewDeliveryID, "whd_"},
		{"EventID", id.NewEventID, "evt_"},
		{"RequestID", id.NewRequestID, "req_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixStream)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixStream {
		t.Errorf("expected prefix %q, got %q", id.PrefixStream, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"StreamID", id.NewStreamID, id.ParseStreamID},
		{"PlanID", id.NewPlanID, id.ParsePlanID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
		{"EndpointID", id.NewEndpointID, id.ParseEndpointID},
		{"DeliveryID", id.NewDeliveryID, id.ParseDeliveryID},
		{"EventID", id.NewEventID, id.ParseEventID},
		{"RequestID", id.NewRequestID, id.ParseRequestID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseStreamID rejects plan_", id.NewPlanID().String(), id.ParseStreamID},
		{"ParsePlanID rejects sub_", id.NewSubscriptionID().String(), id.ParsePlanID},
		{"ParseSubscriptionID rejects whe_", id.NewEndpointID().String(), id.ParseSubscriptionID},
		{"ParseEndpointID rejects whd_", id.NewDeliveryID().String(), id.ParseEndpointID},
		{"ParseDeliveryID rejects evt_", id.NewEventID().String(), id.ParseDeliveryID},
		{"ParseEventID rejects req_", id.NewRequestID().String(), id.ParseEventID},
		{"ParseRequestID rejects strm_", id.NewStreamID().String(), id.ParseRequestID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"",
		"strm_",
		"not-a-typeid",
		"strm_!!!invalid!!!",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := id.Parse(input); err == nil {
				t.Errorf("expected error for %q, got nil", input)
			}
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewStreamID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}
