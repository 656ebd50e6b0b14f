package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

func testGateway(t *testing.T, handler http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log, Config{BaseURL: srv.URL})
}

func TestGetItem(t *testing.T) {
	id := uuid.New()
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/item/"+id.String()+"/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
			"id":             id.String(),
			"type":           "file",
			"name":           "scan.nii.gz",
			"parent_path":    "data.sub-01",
			"container_code": "ds001",
			"container_type": "dataset",
			"size":           2048,
			"storage":        map[string]any{"location_uri": "minio://host/ds001/data/sub-01/scan.nii.gz"},
		}})
	})

	item, err := gw.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Name != "scan.nii.gz" || !item.IsFile() {
		t.Fatalf("unexpected item %+v", item)
	}
	if got := item.DisplayPath(); got != "data/sub-01/scan.nii.gz" {
		t.Fatalf("DisplayPath = %q", got)
	}
}

func TestGetItemNotFound(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_msg":"not found"}`, http.StatusNotFound)
	})
	_, err := gw.GetItem(context.Background(), uuid.New())
	if cerr.KindOf(err) != cerr.KindNotFound {
		t.Fatalf("kind = %v, want NotFound", cerr.KindOf(err))
	}
}

func TestSearchPassesQuery(t *testing.T) {
	zone := 1
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("container_code") != "ds001" || q.Get("container_type") != "dataset" {
			t.Errorf("container query = %v", q)
		}
		if q.Get("recursive") != "true" || q.Get("zone") != "1" {
			t.Errorf("recursive/zone query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{{"id": uuid.New().String(), "type": "folder", "name": "sub-01"}},
			"total":  1,
		})
	})

	items, total, err := gw.Search(context.Background(), SearchQuery{
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
		Zone:          &zone,
		Recursive:     true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Name != "sub-01" {
		t.Fatalf("Search = %d items, total %d", len(items), total)
	}
}

func TestUpstreamErrorSurfaced(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, _, err := gw.Search(context.Background(), SearchQuery{ContainerCode: "x", ContainerType: "dataset"})
	if cerr.KindOf(err) != cerr.KindUpstream {
		t.Fatalf("kind = %v, want Upstream", cerr.KindOf(err))
	}
}

func TestCreateItem(t *testing.T) {
	parent := uuid.New()
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var payload CreateItemPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Name != "newfolder" || payload.Parent == nil || *payload.Parent != parent {
			t.Errorf("payload = %+v", payload)
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
			"id": uuid.New().String(), "type": "folder", "name": payload.Name,
		}})
	})

	item, err := gw.CreateItem(context.Background(), CreateItemPayload{
		Parent:        &parent,
		ParentPath:    "data",
		Type:          domain.ItemTypeFolder,
		Name:          "newfolder",
		Owner:         "tester",
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.Name != "newfolder" {
		t.Fatalf("item = %+v", item)
	}
}
