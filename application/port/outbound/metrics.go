package outbound

import "github.com/mentorclub/auth-service/domain/entity"

// LifecycleMetrics records token lifecycle events.
type LifecycleMetrics interface {
	TokenMinted(kind entity.TokenKind)
	TokenPurged(kind entity.TokenKind, reason string)
	ValidationFailed(reason string)
	RotationCompleted()
	LoginAttempt(outcome string)
}

type noopMetrics struct{}

// NoopMetrics discards every event.
func NoopMetrics() LifecycleMetrics { return noopMetrics{} }

func (noopMetrics) TokenMinted(entity.TokenKind)         {}
func (noopMetrics) TokenPurged(entity.TokenKind, string) {}
func (noopMetrics) ValidationFailed(string)              {}
func (noopMetrics) RotationCompleted()                   {}
func (noopMetrics) LoginAttempt(string)                  {}
