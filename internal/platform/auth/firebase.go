package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/brightcart/api/internal/platform/config"
)

const firebaseAdminClaim = "admin"

// firebaseTokenVerifier is the subset of the Admin SDK client the verifier needs.
type firebaseTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens and maps them to identities.
type FirebaseVerifier struct {
	client      firebaseTokenVerifier
	adminEmails map[string]struct{}
}

// NewFirebaseVerifier initialises the Admin SDK for the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, adminEmails []string) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return newFirebaseVerifier(client, adminEmails), nil
}

func newFirebaseVerifier(client firebaseTokenVerifier, adminEmails []string) *FirebaseVerifier {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &FirebaseVerifier{client: client, adminEmails: admins}
}

// Verify implements Verifier. Admin is granted by an "admin" custom claim or a configured admin email.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		switch {
		case firebaseauth.IsIDTokenExpired(err):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	email := strings.ToLower(claimAsString(token.Claims, "email"))
	admin, _ := token.Claims[firebaseAdminClaim].(bool)
	if _, ok := v.adminEmails[email]; ok && email != "" {
		admin = true
	}
	return &Identity{
		UID:      token.UID,
		Email:    email,
		Name:     claimAsString(token.Claims, "name"),
		Roles:    RolesFor(admin),
		Provider: "firebase",
	}, nil
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
