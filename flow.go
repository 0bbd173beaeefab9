package userflow

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Flow orchestrates the account lifecycle: login, logout, registration,
// password restore, provider login, and session i18n. It owns no transport;
// every operation takes an explicit session handle and request info from
// the embedding layer.
type Flow struct {
	store    Datastore
	tokens   *TokenCodec
	creds    *Credentials
	config   *Config
	mailer   Mailer
	geo      GeoResolver
	ua       UAParser
	activity ActivitySink
	logger   Logger
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the flow logger.
func WithLogger(logger Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMailer sets the outbound mail collaborator.
func WithMailer(m Mailer) Option {
	return func(f *Flow) {
		if m != nil {
			f.mailer = m
		}
	}
}

// WithGeoResolver sets the geolocation collaborator.
func WithGeoResolver(g GeoResolver) Option {
	return func(f *Flow) {
		f.geo = g
	}
}

// WithUAParser sets the user agent parsing collaborator.
func WithUAParser(p UAParser) Option {
	return func(f *Flow) {
		f.ua = p
	}
}

// WithActivitySink sets the activity event observer.
func WithActivitySink(s ActivitySink) Option {
	return func(f *Flow) {
		f.activity = normalizeActivitySink(s)
	}
}

// WithCredentials overrides the credential manager.
func WithCredentials(c *Credentials) Option {
	return func(f *Flow) {
		if c != nil {
			f.creds = c
		}
	}
}

// WithTokenCodec overrides the token codec.
func WithTokenCodec(tc *TokenCodec) Option {
	return func(f *Flow) {
		if tc != nil {
			f.tokens = tc
		}
	}
}

// New creates a Flow over the given datastore. The config is validated
// here; a missing secret key is a startup failure, not a request one.
func New(store Datastore, config *Config, opts ...Option) (*Flow, error) {
	if store == nil {
		return nil, errors.New("flow requires a datastore", errors.CategoryOperation).
			WithTextCode("MISSING_DATASTORE")
	}
	if config == nil {
		return nil, errors.New("flow requires a config", errors.CategoryOperation).
			WithTextCode("MISSING_CONFIG")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &Flow{
		store:    store,
		config:   config,
		tokens:   NewTokenCodec([]byte(config.SecretKey), config.tokenSalts()),
		creds:    NewCredentials(config.PasswordCost),
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   &defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f, nil
}

// Tokens exposes the codec so boundary layers can verify auth tokens
// without a full flow round trip.
func (f *Flow) Tokens() *TokenCodec {
	return f.tokens
}

// Config returns the validated configuration.
func (f *Flow) Config() *Config {
	return f.config
}

// LoginResult is returned by every operation that establishes a session.
type LoginResult struct {
	// AuthToken is an opaque signed token over the user's auth_id. It
	// resolves back to the user through ResolveAuthToken until the auth_id
	// rotates or the token ages out.
	AuthToken string `json:"auth_token"`
	User      *User  `json:"user"`
}

// Login validates credentials and establishes a session. Validation
// failures come back field scoped: USER_DOES_NOT_EXIST on email,
// INVALID_PASSWORD on password, DISABLED_ACCOUNT unscoped.
//
// The Remember flag rides along for the session transport; cookie
// lifetimes are the boundary layer's concern.
func (f *Flow) Login(ctx context.Context, sess SessionState, req RequestInfo, in LoginInput) (*LoginResult, error) {
	ds := f.store.Fork()

	user, err := f.validateLogin(ctx, ds, in)
	if err != nil {
		if IsValidationError(err) {
			f.emit(ctx, ActivityEventLoginFailure, user, map[string]any{"email": in.Email})
		}
		return nil, err
	}

	token, err := f.loginUser(ctx, ds, sess, req, user)
	if err != nil {
		return nil, err
	}

	f.emit(ctx, ActivityEventLoginSuccess, user, map[string]any{"remember": in.Remember})
	return &LoginResult{AuthToken: token, User: user}, nil
}

// loginUser binds the session to the user, records the login when the
// audit kind is configured, and mints the auth token. The provider stash
// is dropped: a completed login supersedes any half-finished provider
// handshake.
func (f *Flow) loginUser(ctx context.Context, ds Datastore, sess SessionState, req RequestInfo, user *User) (string, error) {
	if !user.IsActive() {
		return "", ErrUserDisabled
	}

	sess.Set(sessionKeyUser, user.AuthID)
	clearAssociations(sess)

	if ds.Configured(KindLoginRecord) {
		record := &LoginRecord{
			UserID:     user.ID,
			Time:       time.Now().UTC(),
			RemoteAddr: req.RemoteAddr,
			GeoInfo:    f.lookupGeo(ctx, req.RemoteAddr).asMap(),
			UAInfo:     f.parseUA(req.UserAgent).asMap(),
		}
		ds.Put(record)
		if err := ds.Commit(ctx); err != nil {
			return "", err
		}
		f.logger.Debug("login record: %s", print.MaybePrettyJSON(record))
	}

	return f.tokens.Issue(PurposeAuthToken, user.AuthID)
}

// Logout drops the session's user binding. Idempotent: logging out an
// anonymous session is a no-op.
func (f *Flow) Logout(ctx context.Context, sess SessionState) error {
	user, err := f.CurrentUser(ctx, sess)
	if err != nil {
		return err
	}

	sess.Delete(sessionKeyUser)

	if user != nil {
		f.emit(ctx, ActivityEventLogout, user, nil)
	}
	return nil
}

// CurrentUser resolves the session's user, or nil for anonymous sessions.
func (f *Flow) CurrentUser(ctx context.Context, sess SessionState) (*User, error) {
	authID, ok := sess.Get(sessionKeyUser)
	if !ok || authID == "" {
		return nil, nil
	}

	return f.store.Fork().FindUser(ctx, Filter{"auth_id": authID})
}

// ResolveAuthToken verifies an auth token and resolves the user it was
// minted for. A rotated auth_id makes old tokens resolve to nil.
func (f *Flow) ResolveAuthToken(ctx context.Context, token string) (*User, error) {
	authID, err := f.tokens.Verify(PurposeAuthToken, token, f.config.AuthTokenAge)
	if err != nil {
		return nil, err
	}

	return f.store.Fork().FindUser(ctx, Filter{"auth_id": authID})
}

// Status is the session snapshot: current user, resolved i18n, pending
// provider associations, and geo info when a resolver is wired.
type Status struct {
	User     *User  `json:"user"`
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Providers maps provider name to the pending or bound external
	// identity stashed in this session.
	Providers map[string]*ProviderUser `json:"auth_provider,omitempty"`
	Geo       GeoInfo                  `json:"geoip,omitempty"`
}

// Status reports the session state. Stale stash entries, whose provider
// user rows no longer exist, are dropped on the way out.
func (f *Flow) Status(ctx context.Context, sess SessionState, req RequestInfo) (*Status, error) {
	user, err := f.CurrentUser(ctx, sess)
	if err != nil {
		return nil, err
	}

	info, err := f.I18n(ctx, sess, req, true)
	if err != nil {
		return nil, err
	}

	out := &Status{
		User:     user,
		Locale:   info.Locale,
		Timezone: info.Timezone,
	}

	// An authenticated account's stored choices win over session state.
	if user != nil {
		if user.Locale != "" {
			out.Locale = user.Locale
		}
		if user.Timezone != "" {
			out.Timezone = user.Timezone
		}
	}

	ds := f.store.Fork()
	stash := pendingAssociations(sess)
	if len(stash) > 0 && ds.Configured(KindProviderUser) {
		resolved := map[string]*ProviderUser{}
		kept := map[string]string{}
		for provider, providerUserID := range stash {
			record, err := ds.FindProviderUser(ctx, Filter{
				"provider":         provider,
				"provider_user_id": providerUserID,
			})
			if err != nil {
				return nil, err
			}
			if record == nil {
				continue
			}
			resolved[provider] = record
			kept[provider] = providerUserID
		}

		clearAssociations(sess)
		for provider, providerUserID := range kept {
			stashAssociation(sess, provider, providerUserID)
		}
		if len(resolved) > 0 {
			out.Providers = resolved
		}
	}

	if f.geo != nil {
		out.Geo = f.lookupGeo(ctx, req.RemoteAddr)
	}

	return out, nil
}

func (f *Flow) lookupGeo(ctx context.Context, remoteAddr string) GeoInfo {
	if f.geo == nil || remoteAddr == "" {
		return GeoInfo{}
	}

	info, err := f.geo.Lookup(ctx, remoteAddr)
	if err != nil {
		f.logger.Warn("geo lookup failed for %s: %v", remoteAddr, err)
		return GeoInfo{}
	}
	return info
}

func (f *Flow) parseUA(userAgent string) UAInfo {
	if f.ua == nil || userAgent == "" {
		return UAInfo{}
	}
	return f.ua.Parse(userAgent)
}

func (f *Flow) emit(ctx context.Context, event ActivityEventType, user *User, meta map[string]any) {
	evt := ActivityEvent{
		EventType:  event,
		Metadata:   meta,
		OccurredAt: time.Now(),
	}
	if user != nil {
		evt.UserID = user.ID.String()
		evt.Actor = ActorRef{ID: user.ID.String(), Type: "user"}
	}

	if err := f.activity.Record(ctx, evt); err != nil {
		f.logger.Warn("activity sink rejected %s: %v", event, err)
	}
}
