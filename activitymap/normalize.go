package activitymap

import (
	"context"
	"strings"
	"time"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

const (
	// MetadataKeyFromStatus stores the auth status before the event.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the auth status after the event.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyOrganization stores the tenant scope when the object is not the organization.
	MetadataKeyOrganization = "organization"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "organization"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(tenantauth.ActivityEvent) string
}

// Normalize converts a session ActivityEvent into a generic normalized shape.
// The subject is the actor and the organization is the object, unless a
// resolver says otherwise.
func Normalize(event tenantauth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Subject),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event, options.objectIDResolver != nil),
		OccurredAt: occurredAt,
	}
}

// Sink returns an ActivitySink that normalizes every event before handing it to publish.
func Sink(publish func(Normalized) error, opts ...Option) tenantauth.ActivitySink {
	return tenantauth.ActivitySinkFunc(func(_ context.Context, event tenantauth.ActivityEvent) error {
		return publish(Normalize(event, opts...))
	})
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(tenantauth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor-id used when the event carries no subject.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event tenantauth.ActivityEvent, resolver func(tenantauth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.TenantScope)
}

func normalizeMetadata(event tenantauth.ActivityEvent, customObject bool) map[string]any {
	metadata := cloneMap(event.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	if event.FromStatus != "" {
		set(MetadataKeyFromStatus, string(event.FromStatus))
	}
	if event.ToStatus != "" {
		set(MetadataKeyToStatus, string(event.ToStatus))
	}
	if customObject && event.TenantScope != "" {
		if _, exists := metadata[MetadataKeyOrganization]; !exists {
			set(MetadataKeyOrganization, event.TenantScope)
		}
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
