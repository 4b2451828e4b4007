package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incident-portal/internal/events"
	"incident-portal/internal/rbac"
)

func TestStream_ReceivesPublishedChanges(t *testing.T) {
	f := newAPI(t, openLimits())
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, "admin", "", rbac.RoleAdmin))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/admin/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// The subscription is registered right after the upgrade, so keep
	// publishing until the first change arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.bus.Publish(context.Background(), events.Change{
					Table:    events.TableReports,
					Type:     events.Update,
					EntityID: "r-1",
					ReportID: "r-1",
				})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got events.Change
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TableReports, got.Table)
	assert.Equal(t, events.Update, got.Type)
	assert.Equal(t, "r-1", got.EntityID)
}

func TestStream_AnalystRejected(t *testing.T) {
	f := newAPI(t, openLimits())
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, "an-1", "", rbac.RoleAnalyst))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/admin/stream"

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
