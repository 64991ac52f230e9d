package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"amazon-order-export/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

// Browser is the capability surface the auth controller and the order
// listing navigator drive the site through. The concrete transport
// (plain http session, headless render, ...) stays swappable behind it.
type Browser interface {
	Visit(ctx context.Context, rawUrl string) error
	Location() *url.URL
	Document() (*goquery.Document, error)
	SetField(selector, value string) error
	Click(ctx context.Context, selector string) error
	SubmitForm(ctx context.Context, selector string) error
	Close() error
}

// NoElementError reports a selector that matched nothing in the current
// document. Callers that treat absence as an expected variant should
// check the document themselves instead of provoking this.
type NoElementError struct {
	Selector string
}

func (e *NoElementError) Error() string {
	return fmt.Sprintf("no element matches selector %q", e.Selector)
}

var instrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

type deferredOutput struct{}

func (deferredOutput) Write(id string, contents string) {
	if instrumentOutput != nil {
		instrumentOutput.Write(id, contents)
	}
}

// formBrowser implements Browser on top of a cookie-jarred resty client.
// Field values set via SetField are collected and sent with the next
// form submission, the way a real browser would serialize the form.
type formBrowser struct {
	http    *resty.Client
	base    *url.URL
	current *url.URL
	doc     *goquery.Document
	fields  map[string]string
}

type FormBrowserOptions struct {
	BaseUrl string
}

func NewFormBrowser(opts FormBrowserOptions) (Browser, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, otel.Tracer("scrapers/amazon/http"), deferredOutput{})

	return &formBrowser{
		http:   client,
		base:   baseUrl,
		fields: map[string]string{},
	}, nil
}

func (b *formBrowser) resolve(rawUrl string) (*url.URL, error) {
	ref, err := url.Parse(rawUrl)
	if err != nil {
		return nil, err
	}
	if b.current != nil {
		return b.current.ResolveReference(ref), nil
	}
	return b.base.ResolveReference(ref), nil
}

func (b *formBrowser) consume(res *resty.Response) error {
	if res.StatusCode() >= 400 {
		return fmt.Errorf("%s %s: %s", res.Request.Method, res.Request.URL, res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return fmt.Errorf("parse %s: %w", res.Request.URL, err)
	}
	b.doc = doc
	// RawResponse.Request carries the final url after redirects
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		b.current = res.RawResponse.Request.URL
	}
	b.fields = map[string]string{}
	return nil
}

func (b *formBrowser) Visit(ctx context.Context, rawUrl string) error {
	target, err := b.resolve(rawUrl)
	if err != nil {
		return err
	}
	res, err := b.http.R().
		SetContext(ctx).
		Get(target.String())
	if err != nil {
		return err
	}
	return b.consume(res)
}

func (b *formBrowser) Location() *url.URL {
	if b.current == nil {
		return b.base
	}
	return b.current
}

func (b *formBrowser) Document() (*goquery.Document, error) {
	if b.doc == nil {
		return nil, fmt.Errorf("no page has been visited yet")
	}
	return b.doc, nil
}

func (b *formBrowser) SetField(selector, value string) error {
	if b.doc == nil {
		return fmt.Errorf("no page has been visited yet")
	}
	field := b.doc.Find(selector).First()
	if field.Length() == 0 {
		return &NoElementError{Selector: selector}
	}
	name := field.AttrOr("name", "")
	if name == "" {
		return fmt.Errorf("element %q has no name attribute", selector)
	}
	b.fields[name] = value
	return nil
}

func (b *formBrowser) Click(ctx context.Context, selector string) error {
	if b.doc == nil {
		return fmt.Errorf("no page has been visited yet")
	}
	anchor := b.doc.Find(selector).First()
	if anchor.Length() == 0 {
		return &NoElementError{Selector: selector}
	}
	href := anchor.AttrOr("href", "")
	if href == "" {
		return fmt.Errorf("element %q has no href attribute", selector)
	}
	return b.Visit(ctx, href)
}

func (b *formBrowser) SubmitForm(ctx context.Context, selector string) error {
	if b.doc == nil {
		return fmt.Errorf("no page has been visited yet")
	}
	form := b.doc.Find(selector).First()
	if form.Length() == 0 {
		return &NoElementError{Selector: selector}
	}

	values := b.serializeForm(form)

	action, err := b.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}
	method := strings.ToUpper(form.AttrOr("method", "GET"))

	var res *resty.Response
	if method == "POST" {
		res, err = b.http.R().
			SetContext(ctx).
			SetFormDataFromValues(values).
			Post(action.String())
	} else {
		action.RawQuery = values.Encode()
		res, err = b.http.R().
			SetContext(ctx).
			Get(action.String())
	}
	if err != nil {
		return err
	}
	return b.consume(res)
}

func (b *formBrowser) serializeForm(form *goquery.Selection) url.Values {
	values := url.Values{}

	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		switch input.AttrOr("type", "text") {
		case "submit", "button", "image", "file":
			return
		case "checkbox", "radio":
			if _, checked := input.Attr("checked"); !checked {
				return
			}
		}
		values.Set(name, input.AttrOr("value", ""))
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		option := sel.Find("option[selected]").First()
		if option.Length() == 0 {
			option = sel.Find("option").First()
		}
		if option.Length() == 0 {
			return
		}
		values.Set(name, option.AttrOr("value", ""))
	})
	form.Find("textarea[name]").Each(func(_ int, area *goquery.Selection) {
		values.Set(area.AttrOr("name", ""), area.Text())
	})

	for name, value := range b.fields {
		values.Set(name, value)
	}
	return values
}

func (b *formBrowser) Close() error {
	b.http.GetClient().CloseIdleConnections()
	return nil
}
