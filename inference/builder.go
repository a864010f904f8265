package inference

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/common"
)

// SessionKind selects the session implementation.
type SessionKind string

const (
	// SessionDynamic allocates tensors per call and is re-entrant.
	SessionDynamic SessionKind = "dynamic"
	// SessionBound preallocates tensors and serializes runs.
	SessionBound SessionKind = "bound"
)

// ParseSessionKind maps a configuration string to a SessionKind. An empty
// string selects SessionDynamic.
func ParseSessionKind(s string) (SessionKind, error) {
	switch SessionKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", SessionDynamic:
		return SessionDynamic, nil
	case SessionBound:
		return SessionBound, nil
	default:
		return "", common.Errorf(common.ErrInvalidConfig, "unknown session kind %q", s)
	}
}

// SessionBuilder assembles a Session with a fluent API. The first error stops
// every later step and is returned by Build.
type SessionBuilder struct {
	config   *SessionConfig
	kind     SessionKind
	poolSize int
	profiled bool
	factory  SessionFactory
	err      error
}

// NewSessionBuilder creates a new session builder.
//
// Returns:
//   - *SessionBuilder: The session builder.
//
// @example
// session, err := inference.NewSessionBuilder().
//
//	WithConfig(cfg).
//	WithKind(inference.SessionBound).
//	WithPool(4).
//	WithProfiling().
//	Build()
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{kind: SessionDynamic, poolSize: 1}
}

// WithConfig sets the model and provider configuration.
func (b *SessionBuilder) WithConfig(cfg SessionConfig) *SessionBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.validate(); err != nil {
		b.err = err
		return b
	}
	b.config = &cfg
	return b
}

// WithKind selects the session implementation.
func (b *SessionBuilder) WithKind(kind SessionKind) *SessionBuilder {
	if b.HasError() {
		return b
	}
	parsed, err := ParseSessionKind(string(kind))
	if err != nil {
		b.err = err
		return b
	}
	b.kind = parsed
	return b
}

// WithPool runs size sessions behind a Pool. A size of 1 uses a single session
// directly.
func (b *SessionBuilder) WithPool(size int) *SessionBuilder {
	if b.HasError() {
		return b
	}
	if size <= 0 {
		b.err = common.Errorf(common.ErrInvalidConfig, "pool size must be positive, got %d", size)
		return b
	}
	b.poolSize = size
	return b
}

// WithProfiling wraps the built session in a ProfiledSession.
func (b *SessionBuilder) WithProfiling() *SessionBuilder {
	b.profiled = true
	return b
}

// WithFactory replaces model loading with factory, e.g. to build pools of
// stub sessions in tests. WithConfig is not required when a factory is set.
func (b *SessionBuilder) WithFactory(factory SessionFactory) *SessionBuilder {
	if b.HasError() {
		return b
	}
	if factory == nil {
		b.err = errors.New("session factory is nil")
		return b
	}
	b.factory = factory
	return b
}

// HasError checks if the session builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *SessionBuilder) HasError() bool {
	return b.err != nil
}

// Build creates the session.
//
// Returns:
//   - Session: The session.
//   - error: The first error recorded by the builder or raised while loading.
func (b *SessionBuilder) Build() (Session, error) {
	if b.HasError() {
		return nil, b.err
	}

	factory := b.factory
	if factory == nil {
		if b.config == nil {
			return nil, errors.New("session config not set")
		}
		factory = b.modelFactory(*b.config)
	}

	var (
		session Session
		err     error
	)
	if b.poolSize > 1 {
		session, err = NewPool(factory, b.poolSize)
	} else {
		session, err = factory()
	}
	if err != nil {
		return nil, err
	}

	if b.profiled {
		return NewProfiledSession(session), nil
	}
	return session, nil
}

func (b *SessionBuilder) modelFactory(cfg SessionConfig) SessionFactory {
	if b.kind == SessionBound {
		return func() (Session, error) {
			s, err := NewBoundSession(cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	return func() (Session, error) {
		s, err := NewONNXSession(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
