package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	fbauth "firebase.google.com/go/auth"
	"google.golang.org/api/option"
)

// FirebaseProvider verifies ID tokens against a live Firebase project,
// adapted from the teacher's pkg/auth/providers/firebase.go down to
// the single VerifyToken call this server actually needs.
type FirebaseProvider struct {
	client *fbauth.Client
}

// NewFirebaseProvider initializes a Firebase app scoped to projectID
// and returns a Provider backed by it.
func NewFirebaseProvider(ctx context.Context, projectID, credentialsPath string) (*FirebaseProvider, error) {
	cfg := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("auth: initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: getting firebase auth client: %w", err)
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) VerifyToken(ctx context.Context, idToken string) (Principal, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: verifying id token: %w", err)
	}
	return Principal{UID: token.UID}, nil
}
