package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shhac/wirebench/internal/domain"
	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w := NewWorkspace(WithName("team"))
	def := w.Collections()[0]

	h, err := def.CreateTab(KindHTTP)
	require.NoError(t, err)
	require.NoError(t, h.SetName("Login"))
	x := h.HTTP()
	require.NoError(t, x.SetMethod(MethodPost))
	x.SetBaseTarget("https://api.example.com/login")
	require.NoError(t, x.Query().Append("debug", "1", false))
	require.NoError(t, x.Headers().Append("Content-Type", "application/json", true))
	x.Auth().SetToken("tok")
	require.NoError(t, x.Auth().SetKind(AuthBearer))
	x.SetBody(`{"user":"a"}`)
	gen, _, err := x.BeginAttempt(t0)
	require.NoError(t, err)
	require.True(t, x.CompleteAttempt(gen, HTTPResult{
		StatusCode: 200,
		StatusText: "200 OK",
		Headers:    []Header{{Name: "Content-Type", Value: "application/json"}},
		Body:       `{"ok":true}`,
		Elapsed:    42 * time.Millisecond,
	}))

	other, err := w.CreateCollection("Realtime")
	require.NoError(t, err)
	ws, err := other.CreateTab(KindWebSocket)
	require.NoError(t, err)
	ws.WebSocket().SetTarget("wss://echo.example.com")
	ws.WebSocket().SetPendingMessage("hi")

	g, err := other.CreateTab(KindGRPC)
	require.NoError(t, err)
	g.GRPC().SetTarget("localhost:50051")
	g.GRPC().SetCatalog("shop.proto", []string{"shop.Cart"}, map[string][]string{"shop.Cart": {"Add", "Remove"}})
	require.NoError(t, g.GRPC().SetService("shop.Cart"))
	require.NoError(t, g.GRPC().SetMethod("Add"))
	g.GRPC().SetRequestPayload(`{"sku":"A"}`)
	require.NoError(t, other.Select(ws))
	return w
}

func TestSnapshotRestoreKeepsIdentity(t *testing.T) {
	w := buildWorkspace(t)
	tree := w.Snapshot()

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	var decoded domain.Workspace
	require.NoError(t, json.Unmarshal(data, &decoded))

	r, err := Restore(decoded)
	require.NoError(t, err)
	assert.Equal(t, "team", r.Name())
	assert.Equal(t, tree, r.Snapshot())

	orig := w.Collections()
	back := r.Collections()
	require.Len(t, back, 2)
	for i := range orig {
		assert.Equal(t, orig[i].ID(), back[i].ID())
		assert.Equal(t, orig[i].Name(), back[i].Name())
		require.Equal(t, orig[i].Len(), back[i].Len())
		for j, tab := range orig[i].Tabs() {
			assert.Equal(t, tab.ID(), back[i].Tabs()[j].ID())
		}
	}

	login := back[0].Tabs()[0]
	assert.Equal(t, "Login", login.Name())
	assert.Equal(t, "HTTP POST", login.DisplayLabel())
	x := login.HTTP()
	assert.Equal(t, "https://api.example.com/login", x.EffectiveTarget())
	assert.Equal(t, AuthBearer, x.Auth().Kind())
	assert.Equal(t, Idle, x.Status())
	resp := x.Response()
	assert.True(t, resp.Present)
	assert.Equal(t, `{"ok":true}`, resp.Raw)
	assert.Equal(t, "42 ms", resp.FormattedElapsed)

	assert.Equal(t, "Realtime", back[1].Name())
	assert.True(t, back[1].Tabs()[0].Selected())
	assert.Equal(t, "hi", back[1].Tabs()[0].WebSocket().PendingMessage())
	assert.Equal(t, "Add", back[1].Tabs()[1].GRPC().Method())
}

func TestRestoreRejectsClashes(t *testing.T) {
	_, err := Restore(domain.Workspace{Collections: []domain.Collection{
		{ID: "1", Name: "Shop"},
		{ID: "2", Name: "shop"},
	}})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateName)

	_, err = Restore(domain.Workspace{Collections: []domain.Collection{
		{ID: "1", Name: "A", Tabs: []domain.Tab{{ID: "t", Kind: "http"}}},
		{ID: "2", Name: "B", Tabs: []domain.Tab{{ID: "t", Kind: "http"}}},
	}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Restore(domain.Workspace{Collections: []domain.Collection{
		{ID: "1", Name: "A", Tabs: []domain.Tab{{ID: "t", Kind: "smtp"}}},
	}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Restore(domain.Workspace{Version: domain.WorkspaceVersion + 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRestoreEmptyTreeCreatesDefault(t *testing.T) {
	w, err := Restore(domain.Workspace{Name: "fresh"})
	require.NoError(t, err)
	require.Len(t, w.Collections(), 1)
	assert.Equal(t, DefaultCollectionName, w.Collections()[0].Name())
	assert.Equal(t, "fresh", w.Name())
}

func TestRestoreFillsMissingRecord(t *testing.T) {
	w, err := Restore(domain.Workspace{Collections: []domain.Collection{
		{ID: "c", Name: "A", Tabs: []domain.Tab{{ID: "t", Kind: "grpc"}}},
	}})
	require.NoError(t, err)
	tab := w.FindTab("t")
	require.NotNil(t, tab)
	assert.NotNil(t, tab.GRPC())
	assert.Equal(t, DefaultTabName, tab.Name())
}

func TestRestoreGRPCKeepsCatalogAndDropsStaleSelection(t *testing.T) {
	restored := restoreGRPC(&domain.GRPCRequest{
		DescriptorSource: "shop.proto",
		Service:          "shop.Cart",
		Method:           "Add",
		Discovered:       []domain.RPCSet{{Service: "shop.Cart", Methods: []string{"Add", "Remove"}}},
	})
	assert.Equal(t, []string{"shop.Cart"}, restored.DiscoveredServices())
	assert.Equal(t, []string{"Add", "Remove"}, restored.DiscoveredMethods())
	assert.Equal(t, "Add", restored.Method())
	require.NoError(t, restored.SetMethod("Remove"))

	stale := restoreGRPC(&domain.GRPCRequest{
		Service:    "shop.Cart",
		Method:     "Checkout",
		Discovered: []domain.RPCSet{{Service: "shop.Cart", Methods: []string{"Add"}}},
	})
	assert.Equal(t, "shop.Cart", stale.Service())
	assert.Equal(t, "", stale.Method())

	bare := restoreGRPC(&domain.GRPCRequest{Service: "pkg.Svc", Method: "Do"})
	assert.Equal(t, "", bare.Service())
	assert.Equal(t, "", bare.Method())
	assert.Empty(t, bare.DiscoveredServices())
}
