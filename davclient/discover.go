package davclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/cyp0633/davcal/internal/httpclient"
	"github.com/cyp0633/davcal/internal/xml"
)

// CalendarRef is a calendar collection found by discovery.
type CalendarRef struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Color    string `json:"color,omitempty"`
	ReadOnly bool   `json:"read_only"`
	CTag     string `json:"ctag,omitempty"`
}

// Session is the result of discovery. It is resolved once per Client.
type Session struct {
	PrincipalURL  string        `json:"principal_url"`
	HomeSetURL    string        `json:"home_set_url"`
	OutboxURL     string        `json:"outbox_url,omitempty"`
	UserAddresses []string      `json:"user_addresses,omitempty"`
	Calendars     []CalendarRef `json:"calendars"`
}

// DNSResolver interface for mocking DNS lookups in tests
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

var (
	principalProps = []xml.PropName{
		xml.PropCalendarHomeSet,
		xml.PropScheduleOutboxURL,
		xml.PropCalendarUserAddressSet,
	}
	collectionProps = []xml.PropName{
		xml.PropResourceType,
		xml.PropDisplayName,
		xml.PropCalendarColor,
		xml.PropCurrentUserPrivilegeSet,
		xml.PropSupportedComponentSet,
		xml.PropGetCTag,
	}
)

// Session runs discovery on first use and returns a copy of the result.
func (c *Client) Session(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		s, err := c.discover(ctx)
		if err != nil {
			return Session{}, err
		}
		c.session = s
	}
	s := *c.session
	s.Calendars = append([]CalendarRef(nil), c.session.Calendars...)
	s.UserAddresses = append([]string(nil), c.session.UserAddresses...)
	return s, nil
}

// Calendars lists the event calendars of the current user.
func (c *Client) Calendars(ctx context.Context) ([]CalendarRef, error) {
	s, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Calendars, nil
}

// Calendar finds a calendar by display name, ignoring case.
func (c *Client) Calendar(ctx context.Context, name string) (CalendarRef, error) {
	cals, err := c.Calendars(ctx)
	if err != nil {
		return CalendarRef{}, err
	}
	for _, cal := range cals {
		if strings.EqualFold(cal.Name, name) {
			return cal, nil
		}
	}
	return CalendarRef{}, opError("find calendar", ErrNotFound).WithCalendar(name)
}

// candidates lists the URLs that may answer current-user-principal, in
// the order they are tried.
func (c *Client) candidates(ctx context.Context) []string {
	var locations []string

	// 1. direct location if a path is specified
	if c.server.Path != "/" && c.server.Path != "" {
		locations = append(locations, c.server.String())
	}

	// 2. DNS SRV, secure first
	host := c.server.Hostname()
	if c.resolver != nil && net.ParseIP(host) == nil {
		for _, prefix := range []string{"_caldavs._tcp.", "_caldav._tcp."} {
			name := prefix + host
			_, addrs, err := c.resolver.LookupSRV(ctx, "", "", name)
			if err != nil {
				continue
			}

			// TXT records may carry the context path
			var p string
			txts, _ := c.resolver.LookupTXT(ctx, name)
			for _, txt := range txts {
				if strings.HasPrefix(txt, "path=") {
					p = strings.TrimPrefix(txt, "path=")
					break
				}
			}

			scheme := "http"
			if prefix == "_caldavs._tcp." {
				scheme = "https"
			}
			for _, addr := range addrs {
				target := strings.TrimSuffix(addr.Target, ".")
				locations = append(locations, fmt.Sprintf("%s://%s:%d%s", scheme, target, addr.Port, p))
			}
		}
	}

	root := *c.server
	root.Path, root.RawPath, root.RawQuery = "/", "", ""

	// 3. well-known URL
	locations = append(locations, root.JoinPath(".well-known", "caldav").String())

	// 4. root path
	locations = append(locations, root.String())
	return locations
}

func (c *Client) discover(ctx context.Context) (*Session, error) {
	const op = "discover calendars"

	principal, err := c.findPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("found principal", "url", principal)

	body, err := xml.PropfindRequest{Props: principalProps}.Bytes()
	if err != nil {
		return nil, opError(op, err)
	}
	resp, err := c.do(ctx, httpclient.NewPropfind(principal, 0, body))
	if err != nil {
		return nil, opError(op, err).WithHref(principal)
	}
	if !resp.Success() {
		return nil, rejected(op, resp).WithHref(principal)
	}
	responses, err := xml.ParseMultistatus(resp.Body)
	if err != nil {
		return nil, opError(op, err).WithHref(principal)
	}

	s := &Session{PrincipalURL: principal}
	for _, r := range responses {
		if h, ok := r.FirstHref(xml.PropCalendarHomeSet); ok && s.HomeSetURL == "" {
			s.HomeSetURL = resolve(resp, principal, h)
		}
		if h, ok := r.FirstHref(xml.PropScheduleOutboxURL); ok && s.OutboxURL == "" {
			s.OutboxURL = resolve(resp, principal, h)
		}
		s.UserAddresses = append(s.UserAddresses, r.Hrefs(xml.PropCalendarUserAddressSet)...)
	}
	if s.HomeSetURL == "" {
		return nil, opError(op, fmt.Errorf("%w: no calendar-home-set", ErrNotFound)).WithHref(principal)
	}

	s.Calendars, err = c.listCollections(ctx, s.HomeSetURL)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("discovery complete", "home_set", s.HomeSetURL, "calendars", len(s.Calendars))
	return s, nil
}

func (c *Client) findPrincipal(ctx context.Context) (string, error) {
	body, err := xml.PropfindRequest{Props: []xml.PropName{xml.PropCurrentUserPrincipal}}.Bytes()
	if err != nil {
		return "", opError("discover calendars", err)
	}

	var errs []error
	for _, location := range c.candidates(ctx) {
		resp, err := c.do(ctx, httpclient.NewPropfind(location, 0, body))
		if err != nil {
			if ctx.Err() != nil {
				return "", opError("discover calendars", ctx.Err())
			}
			errs = append(errs, err)
			continue
		}
		if !resp.Success() {
			c.logger.Debug("principal candidate rejected", "url", location, "status", resp.StatusCode)
			continue
		}
		responses, err := xml.ParseMultistatus(resp.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, r := range responses {
			if h, ok := r.FirstHref(xml.PropCurrentUserPrincipal); ok {
				return resolve(resp, location, h), nil
			}
		}
	}
	err = fmt.Errorf("%w: could not find current-user-principal", ErrNotFound)
	if len(errs) > 0 {
		err = errors.Join(append([]error{err}, errs...)...)
	}
	return "", opError("discover calendars", err).WithHref(c.server.String())
}

func (c *Client) listCollections(ctx context.Context, home string) ([]CalendarRef, error) {
	const op = "list calendars"

	body, err := xml.PropfindRequest{Props: collectionProps}.Bytes()
	if err != nil {
		return nil, opError(op, err)
	}
	resp, err := c.do(ctx, httpclient.NewPropfind(home, 1, body))
	if err != nil {
		return nil, opError(op, err).WithHref(home)
	}
	if !resp.Success() {
		return nil, rejected(op, resp).WithHref(home)
	}
	responses, err := xml.ParseMultistatus(resp.Body)
	if err != nil {
		return nil, opError(op, err).WithHref(home)
	}

	homeURL, _ := url.Parse(home)
	calendars := []CalendarRef{}
	for _, r := range responses {
		if !r.OK() || !r.IsCalendar() || !r.SupportsComponent("VEVENT") {
			continue
		}
		u := resolve(resp, home, r.Href)
		parsed, err := url.Parse(u)
		if err != nil || (homeURL != nil && samePath(parsed.Path, homeURL.Path)) {
			continue
		}

		name, _ := r.Text(xml.PropDisplayName)
		if name == "" {
			name = lastSegment(parsed.Path)
		}
		color, _ := r.Text(xml.PropCalendarColor)
		ctag, _ := r.Text(xml.PropGetCTag)
		calendars = append(calendars, CalendarRef{
			Name:     name,
			URL:      u,
			Color:    color,
			ReadOnly: !r.Writable(),
			CTag:     ctag,
		})
	}
	sort.SliceStable(calendars, func(i, j int) bool {
		return strings.ToLower(calendars[i].Name) < strings.ToLower(calendars[j].Name)
	})
	return calendars, nil
}

func samePath(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

func lastSegment(p string) string {
	name := path.Base(strings.TrimSuffix(p, "/"))
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}
