package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ghola/internal/lemonsqueezy"
)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) HasActiveSubscription(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type mockLicenses struct {
	mock.Mock
}

func (m *mockLicenses) ValidateLicense(ctx context.Context, key string) (lemonsqueezy.LicenseResult, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(lemonsqueezy.LicenseResult), args.Error(1)
}

type resolutions struct {
	mu   sync.Mutex
	seen []Resolution
}

func (r *resolutions) record(_ string, res Resolution) {
	r.mu.Lock()
	r.seen = append(r.seen, res)
	r.mu.Unlock()
}

const checkout = "https://ghola.lemonsqueezy.com/buy/abc"

func TestRestoreWithoutCachedEmailStaysUnchecked(t *testing.T) {
	checker := &mockChecker{}
	res := &resolutions{}
	g := NewGate(Options{Checker: checker, OnResolve: res.record})

	out, err := g.Restore(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, StateUnchecked, out.State)
	assert.Empty(t, res.seen)
	checker.AssertNotCalled(t, "HasActiveSubscription", mock.Anything, mock.Anything)
}

func TestRestoreWithCachedEmailResolvesPremium(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryEmailCache()
	require.NoError(t, cache.SetEmail(ctx, "chat-1", "fan@example.com"))
	checker := &mockChecker{}
	checker.On("HasActiveSubscription", mock.Anything, "fan@example.com").Return(true, nil).Once()
	res := &resolutions{}

	g := NewGate(Options{Checker: checker, Cache: cache, OnResolve: res.record})
	out, err := g.Restore(ctx, "chat-1")
	require.NoError(t, err)
	assert.True(t, out.IsPremium())
	assert.True(t, g.IsPremium("chat-1"))
	assert.Equal(t, []Resolution{{Email: "fan@example.com", IsPremium: true}}, res.seen)
	checker.AssertExpectations(t)
}

func TestSubmitMissReturnsCheckoutLink(t *testing.T) {
	ctx := context.Background()
	checker := &mockChecker{}
	checker.On("HasActiveSubscription", mock.Anything, "new@example.com").Return(false, nil)
	cache := NewMemoryEmailCache()
	res := &resolutions{}

	g := NewGate(Options{Checker: checker, Cache: cache, CheckoutURL: checkout, OnResolve: res.record})
	out, err := g.Submit(ctx, "chat-1", "  new@example.com ")
	require.NoError(t, err)
	assert.Equal(t, StateFree, out.State)
	assert.Equal(t, checkout+"?checkout%5Bemail%5D=new%40example.com", out.CheckoutURL)
	assert.Equal(t, []Resolution{{Email: "new@example.com", IsPremium: false}}, res.seen)

	cached, err := cache.GetEmail(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", cached)
	assert.Equal(t, "new@example.com", g.Email(ctx, "chat-1"))
}

func TestSubmitHitHasNoCheckoutLink(t *testing.T) {
	checker := &mockChecker{}
	checker.On("HasActiveSubscription", mock.Anything, "fan@example.com").Return(true, nil)

	g := NewGate(Options{Checker: checker, CheckoutURL: checkout})
	out, err := g.Submit(context.Background(), "chat-1", "fan@example.com")
	require.NoError(t, err)
	assert.True(t, out.IsPremium())
	assert.Empty(t, out.CheckoutURL)
}

func TestSubmitRequiresEmail(t *testing.T) {
	g := NewGate(Options{})
	_, err := g.Submit(context.Background(), "chat-1", "  ")
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestCheckFailureFallsBackToFree(t *testing.T) {
	checker := &mockChecker{}
	checker.On("HasActiveSubscription", mock.Anything, mock.Anything).Return(false, errors.New("503"))
	res := &resolutions{}

	g := NewGate(Options{Checker: checker, CheckoutURL: checkout, OnResolve: res.record})
	out, err := g.Submit(context.Background(), "chat-1", "fan@example.com")
	require.Error(t, err)
	assert.Equal(t, StateFree, out.State)
	assert.Equal(t, StateFree, g.State("chat-1"))
	assert.Len(t, res.seen, 1)
	assert.False(t, res.seen[0].IsPremium)
	checker.AssertNumberOfCalls(t, "HasActiveSubscription", 1)
}

func TestWithoutCheckerEveryoneIsFree(t *testing.T) {
	g := NewGate(Options{CheckoutURL: checkout})
	out, err := g.Submit(context.Background(), "chat-1", "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, StateFree, out.State)
	assert.NotEmpty(t, out.CheckoutURL)
}

func TestActivateLicense(t *testing.T) {
	ctx := context.Background()
	licenses := &mockLicenses{}
	licenses.On("ValidateLicense", mock.Anything, "GOOD").Return(lemonsqueezy.LicenseResult{Valid: true}, nil)
	licenses.On("ValidateLicense", mock.Anything, "USED").Return(lemonsqueezy.LicenseResult{Activated: true}, nil)
	licenses.On("ValidateLicense", mock.Anything, "BAD").Return(lemonsqueezy.LicenseResult{Error: "license_key not found."}, nil)
	res := &resolutions{}
	g := NewGate(Options{Licenses: licenses, OnResolve: res.record})

	out, err := g.ActivateLicense(ctx, "a", "BAD")
	require.NoError(t, err)
	assert.False(t, out.IsPremium())
	assert.Equal(t, "license_key not found.", out.Message)
	assert.Empty(t, res.seen)

	out, err = g.ActivateLicense(ctx, "a", " GOOD ")
	require.NoError(t, err)
	assert.True(t, out.IsPremium())

	out, err = g.ActivateLicense(ctx, "b", "USED")
	require.NoError(t, err)
	assert.True(t, out.IsPremium())
	assert.Len(t, res.seen, 2)
}

func TestLicensedClientSurvivesRestore(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryEmailCache()
	require.NoError(t, cache.SetEmail(ctx, "a", "fan@example.com"))
	checker := &mockChecker{}
	licenses := &mockLicenses{}
	licenses.On("ValidateLicense", mock.Anything, "GOOD").Return(lemonsqueezy.LicenseResult{Valid: true}, nil)

	g := NewGate(Options{Checker: checker, Licenses: licenses, Cache: cache})
	_, err := g.ActivateLicense(ctx, "a", "GOOD")
	require.NoError(t, err)

	out, err := g.Restore(ctx, "a")
	require.NoError(t, err)
	assert.True(t, out.IsPremium())
	checker.AssertNotCalled(t, "HasActiveSubscription", mock.Anything, mock.Anything)
}

func TestActivateLicenseErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewGate(Options{}).ActivateLicense(ctx, "a", "")
	assert.ErrorIs(t, err, ErrLicenseKeyRequired)

	_, err = NewGate(Options{}).ActivateLicense(ctx, "a", "KEY")
	assert.ErrorIs(t, err, ErrLicensesDisabled)

	licenses := &mockLicenses{}
	licenses.On("ValidateLicense", mock.Anything, "KEY").Return(lemonsqueezy.LicenseResult{}, errors.New("timeout"))
	out, err := NewGate(Options{Licenses: licenses}).ActivateLicense(ctx, "a", "KEY")
	assert.ErrorIs(t, err, ErrLicenseCheck)
	assert.Equal(t, StateUnchecked, out.State)
}

func TestFileEmailCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache, err := NewFileEmailCache(dir)
	require.NoError(t, err)

	email, err := cache.GetEmail(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, email)

	require.NoError(t, cache.SetEmail(ctx, "a", "a@example.com"))
	require.NoError(t, cache.SetEmail(ctx, "b", "b@example.com"))

	reopened, err := NewFileEmailCache(dir)
	require.NoError(t, err)
	email, err = reopened.GetEmail(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)
	email, err = reopened.GetEmail(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", email)
}
