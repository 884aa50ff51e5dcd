package activitymap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := tenantauth.ActivityEvent{
		EventType:   tenantauth.ActivityEventCallbackSuccess,
		Subject:     "user-100",
		TenantScope: "Acme-42",
		FromStatus:  tenantauth.StatusAuthenticating,
		ToStatus:    tenantauth.StatusAuthenticated,
		Metadata: map[string]any{
			"ip": "10.0.0.1",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(tenantauth.ActivityEventCallbackSuccess) {
		t.Fatalf("expected verb %q, got %q", tenantauth.ActivityEventCallbackSuccess, out.Verb)
	}
	if out.ObjectType != "organization" {
		t.Fatalf("expected object_type organization, got %q", out.ObjectType)
	}
	if out.ObjectID != "Acme-42" {
		t.Fatalf("expected object_id Acme-42, got %q", out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["ip"] != "10.0.0.1" {
		t.Fatalf("expected metadata ip, got %#v", out.Metadata["ip"])
	}
	if out.Metadata[activitymap.MetadataKeyFromStatus] != "authenticating" {
		t.Fatalf("expected metadata from_status authenticating, got %#v", out.Metadata[activitymap.MetadataKeyFromStatus])
	}
	if out.Metadata[activitymap.MetadataKeyToStatus] != "authenticated" {
		t.Fatalf("expected metadata to_status authenticated, got %#v", out.Metadata[activitymap.MetadataKeyToStatus])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyOrganization]; ok {
		t.Fatalf("organization is the object, it must not be repeated in metadata")
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := tenantauth.ActivityEvent{
		EventType:   tenantauth.ActivityEventLoginFailure,
		TenantScope: "Acme-42",
		Metadata: map[string]any{
			"error":    "organization is required",
			"agent_id": "agent-7",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("agent"),
		activitymap.WithObjectIDResolver(func(e tenantauth.ActivityEvent) string {
			if v, ok := e.Metadata["agent_id"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "agent" {
		t.Fatalf("expected object_type agent, got %q", out.ObjectType)
	}
	if out.ObjectID != "agent-7" {
		t.Fatalf("expected object_id agent-7, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyOrganization] != "Acme-42" {
		t.Fatalf("expected organization in metadata, got %#v", out.Metadata[activitymap.MetadataKeyOrganization])
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  tenantauth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses subject when present",
			event:  tenantauth.ActivityEvent{Subject: "user-1"},
			expect: "user-1",
		},
		{
			name:   "uses default fallback without subject",
			event:  tenantauth.ActivityEvent{EventType: tenantauth.ActivityEventLoginStarted},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback without subject",
			event:  tenantauth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("agent")},
			expect: "agent",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestSinkPublishesNormalized(t *testing.T) {
	t.Parallel()

	var published []activitymap.Normalized
	sink := activitymap.Sink(func(n activitymap.Normalized) error {
		published = append(published, n)
		return nil
	}, activitymap.WithDefaultChannel("tenant-auth"))

	err := sink.Record(context.Background(), tenantauth.ActivityEvent{
		EventType:   tenantauth.ActivityEventLogout,
		Subject:     "user-1",
		TenantScope: "Acme-42",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(published) != 1 || published[0].Channel != "tenant-auth" || published[0].Verb != "auth.logout" {
		t.Fatalf("unexpected published records: %+v", published)
	}

	failing := activitymap.Sink(func(activitymap.Normalized) error { return errors.New("queue full") })
	if err := failing.Record(context.Background(), tenantauth.ActivityEvent{}); err == nil {
		t.Fatalf("expected publish error to be returned")
	}
}
