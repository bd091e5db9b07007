package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard HTTP fields.

// RequestID tags the request correlation id.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Method tags the HTTP method.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path tags the request path.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status tags the HTTP status code.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Duration tags the request duration.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// ClientIP tags the client address.
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Domain fields.

// UserID tags the local user id.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// ExternalID tags the identity-provider subject.
func ExternalID(v string) zap.Field { return zap.String("external_id", v) }

// SessionID tags the session id.
func SessionID(v string) zap.Field { return zap.String("session_id", v) }

// Email tags an email address (use sparingly in prod).
func Email(v string) zap.Field { return zap.String("email", v) }

// Issuer tags the identity-provider issuer.
func Issuer(v string) zap.Field { return zap.String("issuer", v) }

// System fields.

// Component tags the originating component.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op tags the current operation.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer tags the layer (controller, service, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err tags an error.
func Err(err error) zap.Field { return zap.Error(err) }

// Generic fields.

// String is a generic string field.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int is a generic int field.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Bool is a generic bool field.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// Any is a generic field for arbitrary values.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
