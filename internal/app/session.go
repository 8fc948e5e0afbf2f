package app

import (
	"context"
	"fmt"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/session"
)

// Login exchanges credentials for a token and stores the session. Cached
// listings from a previous account are dropped.
func Login(ctx context.Context, d *Deps, username, password string) (api.User, error) {
	resp, err := d.Client.Login(ctx, username, password)
	if err != nil {
		return api.User{}, fmt.Errorf("login: %w", err)
	}
	sess := session.Session{Token: resp.Token, Role: resp.User.Role, Name: resp.User.Username}
	if err := d.Sessions.Save(sess); err != nil {
		return api.User{}, fmt.Errorf("save session: %w", err)
	}
	if err := d.Tours.Invalidate(); err != nil {
		d.Log.Warnf("drop cached listings after login: %v", err)
	}
	d.Log.Infow("logged in", "user", resp.User.Username, "role", resp.User.Role)
	return resp.User, nil
}

// Logout forgets the session and the cached listings.
func Logout(d *Deps) error {
	if err := d.Sessions.Clear(); err != nil {
		return err
	}
	if err := d.Tours.Invalidate(); err != nil {
		return fmt.Errorf("clear cached listings: %w", err)
	}
	d.Log.Infow("logged out")
	return nil
}
