package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/course-archiver/internal/archiver"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultNavigationTimeout, cfg.NavigationTimeout)
	assert.Equal(t, defaultWindowWidth, cfg.WindowWidth)
	assert.Equal(t, defaultWindowHeight, cfg.WindowHeight)

	cfg = Config{NavigationTimeout: time.Second, WindowWidth: 800, WindowHeight: 600}.withDefaults()
	assert.Equal(t, time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 800, cfg.WindowWidth)
}

func TestAllocatorOptions(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(Config{}.withDefaults()))
	withExtras := len(allocatorOptions(Config{NoSandbox: true, UserAgent: "archiver/1.0"}.withDefaults()))
	assert.Equal(t, base+2, withExtras)
}

func TestNewRejectsNegativeMaxTabs(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxTabs: -1}, nil)
	require.Error(t, err)
}

func TestClosedDriverRefusesScopes(t *testing.T) {
	t.Parallel()

	var d *Driver
	_, err := d.NewScope(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, d.Close())
}

func TestAcquireSlot(t *testing.T) {
	t.Parallel()

	d := &Driver{sem: make(chan struct{}, 1)}
	release, err := d.acquireSlot(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.acquireSlot(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := d.acquireSlot(context.Background())
	require.NoError(t, err)
	release2()

	unlimited := &Driver{}
	noop, err := unlimited.acquireSlot(context.Background())
	require.NoError(t, err)
	noop()
}

func TestScopeCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	cancels, releases := 0, 0
	s := &Scope{
		cancel:  func() { cancels++ },
		release: func() { releases++ },
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, releases)
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	assert.Zero(t, meta.status())

	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://courses.example.com/missing"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://frames.example.com/"},
	})
	assert.Equal(t, 404, meta.status())

	meta.reset()
	assert.Zero(t, meta.status())
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled")
	}
}

func TestWrapStatements(t *testing.T) {
	t.Parallel()

	got := wrapStatements(`document.querySelector(".show").click()`)
	assert.Contains(t, got, `document.querySelector(".show").click()`)
	assert.Contains(t, got, "return true")
}

func TestCredentialsValidate(t *testing.T) {
	t.Parallel()

	valid := Credentials{
		LoginURL:         "https://courses.example.com/login",
		User:             "student@example.com",
		Password:         "secret",
		EmailSelector:    "#login-email",
		PasswordSelector: "#login-password",
		SubmitSelector:   ".login-button",
	}
	require.NoError(t, valid.Validate())

	for _, mutate := range []func(*Credentials){
		func(c *Credentials) { c.LoginURL = "" },
		func(c *Credentials) { c.User = "" },
		func(c *Credentials) { c.Password = "" },
		func(c *Credentials) { c.SubmitSelector = "" },
	} {
		c := valid
		mutate(&c)
		require.Error(t, c.Validate())
	}
}

func TestLoginRejectsIncompleteCredentials(t *testing.T) {
	t.Parallel()

	d := &Driver{}
	err := d.Login(context.Background(), Credentials{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, archiver.ErrLogin))
}

func TestDriverImplementsBrowser(t *testing.T) {
	t.Parallel()

	var _ archiver.Browser = (*Driver)(nil)
	var _ archiver.Scope = (*Scope)(nil)
}

func TestAttachReportsCallerCancellation(t *testing.T) {
	t.Parallel()

	tabCtx, cancelTab := chromedp.NewContext(context.Background())
	defer cancelTab()
	scope := &Scope{tabCtx: tabCtx, cancel: cancelTab}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := scope.attach(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
