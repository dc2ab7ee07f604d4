package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/course-archiver/internal/archiver"
)

// Credentials describe the login form and what to type into it.
type Credentials struct {
	LoginURL         string
	User             string
	Password         string
	EmailSelector    string
	PasswordSelector string
	SubmitSelector   string
}

// Validate reports missing credential fields.
func (c Credentials) Validate() error {
	switch {
	case strings.TrimSpace(c.LoginURL) == "":
		return fmt.Errorf("login url is required")
	case c.User == "":
		return fmt.Errorf("user is required")
	case c.Password == "":
		return fmt.Errorf("password is required")
	case c.EmailSelector == "", c.PasswordSelector == "", c.SubmitSelector == "":
		return fmt.Errorf("login form selectors are required")
	}
	return nil
}

// Login submits the login form in a throwaway tab. The session cookie lands
// in the shared browser context, so every later scope is authenticated.
// Success is detected by the password field going away.
func (d *Driver) Login(ctx context.Context, creds Credentials) (err error) {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", archiver.ErrLogin, err)
	}
	tab, err := d.newTab(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", archiver.ErrLogin, err)
	}
	defer func() {
		_ = tab.Close()
	}()

	if err := tab.Navigate(ctx, creds.LoginURL); err != nil {
		return fmt.Errorf("%w: %w", archiver.ErrLogin, err)
	}
	if err := tab.run(ctx, d.cfg.NavigationTimeout,
		chromedp.WaitVisible(creds.EmailSelector, chromedp.ByQuery),
		chromedp.SendKeys(creds.EmailSelector, creds.User, chromedp.ByQuery),
		chromedp.SendKeys(creds.PasswordSelector, creds.Password, chromedp.ByQuery),
		chromedp.Click(creds.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitNotPresent(creds.PasswordSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("%w: submit login form: %w", archiver.ErrLogin, err)
	}
	d.logger.Info("logged in", zap.String("user", creds.User))
	return nil
}
