package auth

import (
	"context"

	commune_errors "commune-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Event marks a user crossing the signed-in boundary. The session manager
// consumes these to start and stop per-user realtime state.
type Event struct {
	UserID   uuid.UUID
	SignedIn bool
}

type Claims struct {
	jwt.RegisteredClaims
}

// Provider verifies access tokens minted by the external identity service and
// relays sign-in/sign-out notifications. Token issuance lives outside this
// service; only verification happens here.
type Provider struct {
	secret []byte
	events chan Event
}

func NewProvider(secret string) *Provider {
	return &Provider{
		secret: []byte(secret),
		events: make(chan Event, 16),
	}
}

// UserFromToken verifies the HS256 signature and returns the subject.
func (p *Provider) UserFromToken(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, commune_errors.ErrUnauthenticated
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, commune_errors.ErrUnauthenticated
		}
		return p.secret, nil
	})
	if err != nil {
		return uuid.Nil, commune_errors.ErrUnauthenticated
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, commune_errors.ErrUnauthenticated
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, commune_errors.ErrUnauthenticated
	}
	return userID, nil
}

// Events delivers sign-in/sign-out notifications in order.
func (p *Provider) Events() <-chan Event {
	return p.events
}

func (p *Provider) NotifySignedIn(userID uuid.UUID) {
	p.events <- Event{UserID: userID, SignedIn: true}
}

func (p *Provider) NotifySignedOut(userID uuid.UUID) {
	p.events <- Event{UserID: userID, SignedIn: false}
}

type ctxKey string

var userIDKey ctxKey = "user_id"

func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
