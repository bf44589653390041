package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/adapters/util"
	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
)

const portalClientTimeout = 5 * time.Minute

// PortalAdapter checks an authenticated web portal: a scripted form login
// followed by selector-based link scraping over a configured set of pages.
// Vendor-specific flows that need a full browser plug in behind the same
// Adapter port; this implementation covers portals with a plain login form.
type PortalAdapter struct {
	cfg    *core.PortalConfig
	client *http.Client
	log    *slog.Logger
}

var _ ports.Adapter = (*PortalAdapter)(nil)

func NewPortalAdapter(cfg *core.PortalConfig, log *slog.Logger) *PortalAdapter {
	jar, _ := cookiejar.New(nil)
	return &PortalAdapter{
		cfg: cfg,
		client: &http.Client{
			Jar: jar,
			Transport: &util.LoggingTransport{
				Base: &util.RetryTransport{MaxRetries: 3},
				Log:  log,
			},
			Timeout: portalClientTimeout,
		},
		log: log,
	}
}

// Authenticate performs the scripted login flow against the configured
// login URL. The returned session is the cookie-carrying client used for
// subsequent page fetches. Any login failure aborts the whole check: no
// discovery happens from an unauthenticated state.
func (a *PortalAdapter) Authenticate(ctx context.Context) (ports.Session, error) {
	form := url.Values{
		"username": {a.cfg.Username},
		"password": {a.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, core.NewAuthError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, core.NewUnreachableError(fmt.Errorf("login request to %s failed: %w", a.cfg.AuthURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewAuthError(fmt.Errorf("login at %s returned status %d", a.cfg.AuthURL, resp.StatusCode))
	}

	// A portal that answers the login POST with another password form did
	// not accept the credentials, whatever the status code says.
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err == nil && doc.Find(`input[type="password"]`).Length() > 0 {
		return nil, core.NewAuthError(fmt.Errorf("login at %s was rejected", a.cfg.AuthURL))
	}

	a.log.Debug("portal login succeeded", slog.String("url", a.cfg.AuthURL))
	return a.client, nil
}

// Discover visits the base pages plus the enabled custom pages and yields
// one candidate per link matched by any of the page's selectors. A page
// with zero matches is not an error by itself. A page that cannot be
// fetched aborts the run, returning the candidates collected so far.
func (a *PortalAdapter) Discover(ctx context.Context, sess ports.Session) (*ports.Discovery, error) {
	client, ok := sess.(*http.Client)
	if !ok || client == nil {
		return nil, core.NewAuthError(fmt.Errorf("discover called without an authenticated session"))
	}

	pages := make([]core.PortalPage, 0, len(a.cfg.BasePages)+len(a.cfg.CustomPages))
	pages = append(pages, a.cfg.BasePages...)
	for _, p := range a.cfg.CustomPages {
		if p.Enabled {
			pages = append(pages, p)
		}
	}

	disc := &ports.Discovery{}
	seen := make(map[string]struct{})

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return disc, err
		}
		candidates, err := a.scrapePage(ctx, client, page, seen)
		if err != nil {
			return disc, core.NewUnreachableError(fmt.Errorf("page %q: %w", page.Name, err))
		}
		if len(candidates) == 0 {
			a.log.Debug("page matched no download links", slog.String("page", page.Name), slog.String("url", page.URL))
		}
		disc.Candidates = append(disc.Candidates, candidates...)
	}

	return disc, nil
}

func (a *PortalAdapter) scrapePage(ctx context.Context, client *http.Client, page core.PortalPage, seen map[string]struct{}) ([]core.CandidateFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch of %s returned status %d", page.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", page.URL, err)
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, err
	}

	var candidates []core.CandidateFile
	for _, selector := range page.Selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			abs := base.ResolveReference(ref)
			if _, dup := seen[abs.String()]; dup {
				return
			}
			seen[abs.String()] = struct{}{}

			c := core.CandidateFile{
				Path:        abs.Path,
				Name:        path.Base(abs.Path),
				Category:    page.Name,
				Title:       strings.TrimSpace(sel.Text()),
				DownloadURL: abs.String(),
				Metadata:    map[string]string{"page": page.Name},
			}
			a.probeCandidate(ctx, client, abs.String(), &c)
			candidates = append(candidates, c)
		})
	}
	return candidates, nil
}

// probeCandidate issues a best-effort HEAD request for size and
// modification time, the content identity when no checksum is available.
// Probe failures leave the zero values in place.
func (a *PortalAdapter) probeCandidate(ctx context.Context, client *http.Client, target string, c *core.CandidateFile) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
			c.Size = size
		}
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			c.ModTime = t
		}
	}
	if etag := strings.Trim(resp.Header.Get("ETag"), `"`); etag != "" {
		c.Checksum = etag
	}
}
