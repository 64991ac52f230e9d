package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"amazon-order-export/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/amazon/core")

const DefaultBaseUrl = "https://www.amazon.de"

// signin endpoint of the german storefront, the openid blob selects the
// default desktop login flex handle
const LoginPath = "/ap/signin?_encoding=UTF8&openid.assoc_handle=deflex&openid.claimed_id=http%3A%2F%2Fspecs.openid.net%2Fauth%2F2.0%2Fidentifier_select&openid.identity=http%3A%2F%2Fspecs.openid.net%2Fauth%2F2.0%2Fidentifier_select&openid.mode=checkid_setup&openid.ns=http%3A%2F%2Fspecs.openid.net%2Fauth%2F2.0&openid.ns.pape=http%3A%2F%2Fspecs.openid.net%2Fextensions%2Fpape%2F1.0&openid.pape.max_auth_age=0&openid.return_to=https%3A%2F%2Fwww.amazon.de%2Fref%3Dnav_signin"

const (
	selectorEmailField    = "#ap_email"
	selectorPasswordField = "#ap_password"
	selectorSignInForm    = "form[name=signIn]"
	selectorOtpField      = "#auth-mfa-otpcode"
	selectorOtpForm       = "form#auth-mfa-form"
	selectorAlert         = "div.a-alert-container"
)

// rendered by the site on rejected logins, in the storefront's language
const loginFailureMarker = "Ein Problem ist aufgetreten"

type Credentials struct {
	Email    string
	Password string
	// one-time second-factor code, may be empty for accounts
	// without a second factor
	OneTimeCode string
}

// AuthError is the typed outcome of a rejected login. Alerts holds the
// text of every error banner found on the post-login page.
type AuthError struct {
	Alerts []string
}

func (e *AuthError) Error() string {
	if len(e.Alerts) == 0 {
		return "login rejected"
	}
	return fmt.Sprintf("login rejected: %s", strings.Join(e.Alerts, "; "))
}

type Client struct {
	BaseUrl *url.URL
	Browser Browser
}

type ClientOptions struct {
	// defaults to DefaultBaseUrl
	BaseUrl string
	// when set, replaces the default resty-backed form browser
	Browser Browser
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	rawBase := opts.BaseUrl
	if rawBase == "" {
		rawBase = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(rawBase)
	if err != nil {
		return nil, err
	}

	browser := opts.Browser
	if browser == nil {
		browser, err = NewFormBrowser(FormBrowserOptions{BaseUrl: rawBase})
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		BaseUrl: baseUrl,
		Browser: browser,
	}, nil
}

func (c *Client) Close() error {
	return c.Browser.Close()
}

func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return c.BaseUrl.ResolveReference(ref).String()
}

// Login authenticates the browser session. The session state lives
// entirely in the transport's cookie jar, there is no separate token.
//
// The outcome is a typed post-condition check: a page with one or more
// alert banners, or one carrying the site's failure marker, yields an
// *AuthError. A second-factor challenge on the post-login page is
// answered with the supplied one-time code; its absence means the
// account has no second factor and the step is skipped.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	slog.InfoContext(ctx, "logging in", "email", creds.Email)

	err := c.Browser.Visit(ctx, c.Resolve(LoginPath))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("fetch login page: %w", err)
	}

	err = c.Browser.SetField(selectorEmailField, creds.Email)
	if err != nil {
		span.SetStatus(codes.Error, "login form missing email field")
		return fmt.Errorf("fill login form: %w", err)
	}
	err = c.Browser.SetField(selectorPasswordField, creds.Password)
	if err != nil {
		span.SetStatus(codes.Error, "login form missing password field")
		return fmt.Errorf("fill login form: %w", err)
	}
	err = c.Browser.SubmitForm(ctx, selectorSignInForm)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return fmt.Errorf("submit login form: %w", err)
	}

	doc, err := c.Browser.Document()
	if err != nil {
		return err
	}

	// accounts without a second factor never render the challenge field
	if doc.Find(selectorOtpField).Length() > 0 {
		doc, err = c.answerChallenge(ctx, creds)
		if err != nil {
			return err
		}
	}

	var alerts []string
	doc.Find(selectorAlert).Each(func(_ int, sel *goquery.Selection) {
		msg := htmlutil.SelectionText(sel)
		if msg == "" {
			return
		}
		slog.ErrorContext(ctx, "login alert", "message", msg)
		alerts = append(alerts, msg)
	})

	if len(alerts) > 0 || strings.Contains(doc.Text(), loginFailureMarker) {
		authErr := &AuthError{Alerts: alerts}
		span.RecordError(authErr)
		span.SetStatus(codes.Error, "login rejected")
		return authErr
	}

	slog.InfoContext(ctx, "login successful")
	return nil
}

func (c *Client) answerChallenge(ctx context.Context, creds Credentials) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:answerChallenge")
	defer span.End()

	slog.InfoContext(ctx, "second-factor challenge requested")

	if creds.OneTimeCode == "" {
		err := &AuthError{Alerts: []string{"a second-factor code is required but none was provided"}}
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing one-time code")
		return nil, err
	}

	err := c.Browser.SetField(selectorOtpField, creds.OneTimeCode)
	if err != nil {
		return nil, fmt.Errorf("fill challenge form: %w", err)
	}
	err = c.Browser.SubmitForm(ctx, selectorOtpForm)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit challenge form")
		return nil, fmt.Errorf("submit challenge form: %w", err)
	}

	return c.Browser.Document()
}
