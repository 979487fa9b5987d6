package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tgnms/groupsocket/pkg/logging"
	"github.com/tgnms/groupsocket/pkg/metrics"
)

var (
	// ErrInvalidTopic indicates a topic outside the router prefix or one
	// that names no group.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrInvalidPayload indicates a payload that is not a JSON document.
	ErrInvalidPayload = errors.New("payload is not valid JSON")
)

// Publisher broadcasts a payload to a group. *websocket.Registry
// implements it.
type Publisher interface {
	MessageGroup(name string, payload any) (int, error)
}

// Option configures ingest components.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Set
}

// WithLogger sets the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records routed and dropped messages on set.
func WithMetrics(set *metrics.Set) Option {
	return func(o *options) { o.metrics = set }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Router maps topics of the form "<prefix>/<group>" to groups and forwards
// their payloads to a Publisher. The group is everything after the prefix,
// so it may itself contain slashes.
type Router struct {
	prefix    string
	publisher Publisher
	log       *slog.Logger
	metrics   *metrics.Set
}

// NewRouter creates a router. An empty prefix routes every topic to the
// group of the same name.
func NewRouter(publisher Publisher, prefix string, opts ...Option) *Router {
	o := buildOptions(opts)
	return &Router{
		prefix:    strings.Trim(prefix, "/"),
		publisher: publisher,
		log:       logging.Component(o.logger, "ingest"),
		metrics:   o.metrics,
	}
}

// Prefix returns the topic prefix without slashes.
func (r *Router) Prefix() string { return r.prefix }

// Filter returns the MQTT subscription filter covering every routable
// topic.
func (r *Router) Filter() string {
	if r.prefix == "" {
		return "#"
	}
	return r.prefix + "/#"
}

// GroupForTopic returns the group a topic addresses.
func (r *Router) GroupForTopic(topic string) (string, error) {
	group := topic
	if r.prefix != "" {
		rest, ok := strings.CutPrefix(topic, r.prefix+"/")
		if !ok {
			return "", fmt.Errorf("%w: %q is outside %q", ErrInvalidTopic, topic, r.prefix)
		}
		group = rest
	}
	if group == "" || strings.HasPrefix(group, "$") {
		return "", fmt.Errorf("%w: %q names no group", ErrInvalidTopic, topic)
	}
	return group, nil
}

// Route forwards payload to the group named by topic. source labels the
// ingest metric. The payload is passed through unchanged.
func (r *Router) Route(source, topic string, payload []byte) (int, error) {
	group, err := r.GroupForTopic(topic)
	if err != nil {
		r.metrics.Dropped(metrics.DropInvalidTopic)
		return 0, err
	}
	if !json.Valid(payload) {
		r.metrics.Dropped(metrics.DropInvalidJSON)
		return 0, fmt.Errorf("%w: topic %q", ErrInvalidPayload, topic)
	}

	n, err := r.publisher.MessageGroup(group, json.RawMessage(payload))
	if err != nil {
		return 0, fmt.Errorf("publish to %q: %w", group, err)
	}
	r.metrics.Ingested(source)
	r.log.Debug("routed message", "source", source, "topic", topic, "group", group, "recipients", n)
	return n, nil
}
