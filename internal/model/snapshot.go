package model

import (
	"slices"
	"strings"

	"github.com/shhac/wirebench/internal/domain"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

// Snapshot returns the persistable tree of the workspace. Runtime state
// such as in-flight attempts and open connections is not part of it.
func (w *Workspace) Snapshot() domain.Workspace {
	type shape struct {
		id, name, selected string
		tabs               []*Tab
	}
	w.mu.RLock()
	shapes := make([]shape, 0, len(w.collections))
	for _, c := range w.collections {
		s := shape{id: c.id, name: c.name, tabs: append([]*Tab(nil), c.tabs...)}
		if c.selected != nil {
			s.selected = c.selected.id
		}
		shapes = append(shapes, s)
	}
	w.mu.RUnlock()

	tree := domain.Workspace{
		Name:        w.name,
		Version:     domain.WorkspaceVersion,
		Collections: make([]domain.Collection, 0, len(shapes)),
	}
	for _, s := range shapes {
		dc := domain.Collection{ID: s.id, Name: s.name, Selected: s.selected, Tabs: []domain.Tab{}}
		for _, t := range s.tabs {
			dc.Tabs = append(dc.Tabs, t.snapshot())
		}
		tree.Collections = append(tree.Collections, dc)
	}
	return tree
}

// Restore rebuilds a workspace from a saved tree. Ids are kept. Trees
// with clashing names or ids are rejected; an empty tree yields the
// default collection.
func Restore(tree domain.Workspace, opts ...Option) (*Workspace, error) {
	if tree.Version > domain.WorkspaceVersion {
		return nil, apperrors.InvalidInput("workspace.restore", "unsupported workspace version %d", tree.Version)
	}
	if len(tree.Collections) == 0 {
		w := NewWorkspace(opts...)
		if tree.Name != "" {
			w.name = tree.Name
		}
		return w, nil
	}

	w := newBareWorkspace(opts...)
	if tree.Name != "" {
		w.name = tree.Name
	}
	ids := make(map[string]bool)
	for _, dc := range tree.Collections {
		name := strings.TrimSpace(dc.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("workspace.restore", "collection %q has no name", dc.ID)
		}
		if w.byNameLocked(name, nil) != nil {
			return nil, apperrors.DuplicateName("workspace.restore", name)
		}
		if dc.ID != "" {
			if ids[dc.ID] {
				return nil, apperrors.InvalidInput("workspace.restore", "duplicate id %q", dc.ID)
			}
			ids[dc.ID] = true
		}
		c := w.newCollection(dc.ID, name)
		for _, dt := range dc.Tabs {
			if dt.ID != "" {
				if ids[dt.ID] {
					return nil, apperrors.InvalidInput("workspace.restore", "duplicate id %q", dt.ID)
				}
				ids[dt.ID] = true
			}
			t, err := restoreTab(w, dt)
			if err != nil {
				return nil, err
			}
			t.owner = c
			c.tabs = append(c.tabs, t)
			if dc.Selected != "" && dc.Selected == t.id {
				c.selected = t
			}
		}
		w.collections = append(w.collections, c)
	}
	return w, nil
}

func (t *Tab) snapshot() domain.Tab {
	dt := domain.Tab{ID: t.id, Name: t.Name(), Kind: t.kind.Code()}
	switch t.kind {
	case KindHTTP:
		dt.HTTP = t.http.snapshot()
	case KindWebSocket:
		dt.WebSocket = t.ws.snapshot()
	case KindGRPC:
		dt.GRPC = t.grpc.snapshot()
	}
	return dt
}

func restoreTab(w *Workspace, dt domain.Tab) (*Tab, error) {
	kind, err := ParseKind(dt.Kind)
	if err != nil {
		return nil, err
	}
	var rec any
	switch kind {
	case KindHTTP:
		if dt.HTTP != nil {
			x, err := restoreHTTP(dt.HTTP)
			if err != nil {
				return nil, err
			}
			rec = x
		}
	case KindWebSocket:
		if dt.WebSocket != nil {
			rec = restoreWebSocket(dt.WebSocket)
		}
	case KindGRPC:
		if dt.GRPC != nil {
			rec = restoreGRPC(dt.GRPC)
		}
	}
	t := newTab(w, dt.ID, kind, rec)
	if name := strings.TrimSpace(dt.Name); name != "" {
		t.name = name
	}
	return t, nil
}

func toFields(entries []Entry) []domain.Field {
	var out []domain.Field
	for _, en := range entries {
		if en.Key == "" {
			continue
		}
		out = append(out, domain.Field{Key: en.Key, Value: en.Value, Enabled: en.Enabled})
	}
	return out
}

func fromFields(fields []domain.Field) []Entry {
	out := make([]Entry, 0, len(fields))
	for _, f := range fields {
		out = append(out, Entry{Key: f.Key, Value: f.Value, Enabled: f.Enabled})
	}
	return out
}

func headerMap(hs []Header) map[string]string {
	if len(hs) == 0 {
		return nil
	}
	m := make(map[string]string, len(hs))
	for _, h := range hs {
		if prev, ok := m[h.Name]; ok {
			m[h.Name] = prev + ", " + h.Value
			continue
		}
		m[h.Name] = h.Value
	}
	return m
}

func headerList(m map[string]string) []Header {
	var hs []Header
	for k, v := range m {
		hs = append(hs, Header{Name: k, Value: v})
	}
	slices.SortFunc(hs, func(a, b Header) int { return strings.Compare(a.Name, b.Name) })
	return hs
}

func (x *HTTPExchange) snapshot() *domain.HTTPRequest {
	x.g.mu.RLock()
	defer x.g.mu.RUnlock()
	d := &domain.HTTPRequest{
		ID:      x.id,
		Method:  string(x.method),
		URL:     x.baseTarget,
		Query:   toFields(x.query.entries),
		Headers: toFields(x.headers.entries),
		Body:    x.body,
		Auth: domain.Auth{
			Kind:         x.auth.kind.String(),
			Username:     x.auth.username,
			Password:     x.auth.password,
			Token:        x.auth.token,
			APIKeyHeader: x.auth.apiKeyHeader,
			APIKeyValue:  x.auth.apiKeyValue,
		},
	}
	if x.resp.Present {
		d.Response = &domain.HTTPResponse{
			StatusCode: x.resp.StatusCode,
			StatusText: x.resp.StatusText,
			Headers:    headerMap(x.resp.Headers),
			Body:       x.resp.Raw,
			Elapsed:    x.resp.Elapsed,
			IssuedAt:   x.resp.IssuedAt,
		}
	}
	return d
}

func restoreHTTP(d *domain.HTTPRequest) (*HTTPExchange, error) {
	method, err := ParseMethod(d.Method)
	if err != nil {
		return nil, err
	}
	kind, err := ParseAuthKind(d.Auth.Kind)
	if err != nil {
		return nil, err
	}
	x := NewHTTPExchange()
	if d.ID != "" {
		x.id = d.ID
	}
	x.method = method
	x.baseTarget = d.URL
	x.body = d.Body
	x.query.load(fromFields(d.Query))
	x.headers.load(fromFields(d.Headers))
	x.auth.kind = kind
	x.auth.username = d.Auth.Username
	x.auth.password = d.Auth.Password
	x.auth.token = d.Auth.Token
	if d.Auth.APIKeyHeader != "" {
		x.auth.apiKeyHeader = d.Auth.APIKeyHeader
	}
	x.auth.apiKeyValue = d.Auth.APIKeyValue
	x.effectiveTarget = buildEffectiveTarget(x.baseTarget, x.query.enabledLocked())
	if r := d.Response; r != nil {
		x.resp = HTTPResponse{
			Present:    true,
			StatusCode: r.StatusCode,
			StatusText: r.StatusText,
			Headers:    headerList(r.Headers),
			Raw:        r.Body,
			Preview:    TruncatePreview(r.Body, 0),
			Elapsed:    r.Elapsed,
			SizeBytes:  int64(len(r.Body)),
			IssuedAt:   r.IssuedAt,
		}
		x.resp.FormattedSize = FormatSize(x.resp.SizeBytes)
		x.resp.FormattedElapsed = FormatElapsed(x.resp.Elapsed)
	}
	return x, nil
}

func (s *WebSocketSession) snapshot() *domain.WebSocketRequest {
	s.g.mu.RLock()
	defer s.g.mu.RUnlock()
	d := &domain.WebSocketRequest{ID: s.id, URL: s.target, PendingMessage: s.pending}
	for _, en := range s.transcript {
		d.Transcript = append(d.Transcript, domain.TranscriptEntry{
			Direction: string(en.Direction),
			Text:      en.Text,
			Timestamp: en.Timestamp,
		})
	}
	return d
}

func restoreWebSocket(d *domain.WebSocketRequest) *WebSocketSession {
	s := NewWebSocketSession()
	if d.ID != "" {
		s.id = d.ID
	}
	s.target = d.URL
	s.pending = d.PendingMessage
	for _, en := range d.Transcript {
		s.transcript = append(s.transcript, TranscriptEntry{
			Direction: Direction(en.Direction),
			Text:      en.Text,
			Timestamp: en.Timestamp,
		})
	}
	return s
}

func (c *GRPCCall) snapshot() *domain.GRPCRequest {
	c.g.mu.RLock()
	defer c.g.mu.RUnlock()
	return &domain.GRPCRequest{
		ID:               c.id,
		Target:           c.target,
		DescriptorSource: c.descriptor,
		Service:          c.service,
		Method:           c.method,
		Discovered:       c.catalogLocked(),
		Metadata:         toFields(c.metadata.entries),
		Request:          c.payload,
		Response:         c.response,
		StatusCode:       c.code,
		IssuedAt:         c.issuedAt,
	}
}

func restoreGRPC(d *domain.GRPCRequest) *GRPCCall {
	c := NewGRPCCall()
	if d.ID != "" {
		c.id = d.ID
	}
	c.target = d.Target
	c.descriptor = d.DescriptorSource
	if len(d.Discovered) > 0 {
		c.services = make([]string, 0, len(d.Discovered))
		c.methodsBySvc = make(map[string][]string, len(d.Discovered))
		for _, set := range d.Discovered {
			c.services = append(c.services, set.Service)
			c.methodsBySvc[set.Service] = slices.Clone(set.Methods)
		}
	}
	// A selection only survives when the saved catalog still offers it.
	if slices.Contains(c.services, d.Service) {
		c.service = d.Service
		c.methods = slices.Clone(c.methodsBySvc[d.Service])
		if slices.Contains(c.methods, d.Method) {
			c.method = d.Method
		}
	}
	c.metadata.load(fromFields(d.Metadata))
	c.payload = d.Request
	c.response = d.Response
	c.code = d.StatusCode
	c.issuedAt = d.IssuedAt
	return c
}

// catalogLocked returns the discovered services in order. Callers hold
// the read lock.
func (c *GRPCCall) catalogLocked() []domain.RPCSet {
	if len(c.services) == 0 {
		return nil
	}
	sets := make([]domain.RPCSet, 0, len(c.services))
	for _, svc := range c.services {
		sets = append(sets, domain.RPCSet{Service: svc, Methods: slices.Clone(c.methodsBySvc[svc])})
	}
	return sets
}
