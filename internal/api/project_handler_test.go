package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

func TestProjects_CreateGetDelete(t *testing.T) {
	h := newHarness(t, &fakeEngine{})

	rr := h.do(t, http.MethodPost, "/projects", map[string]any{"name": "Launch Video"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body)
	}
	var p timeline.Project
	decodeInto(t, rr, &p)
	if p.ID == "" || p.Name != "Launch Video" {
		t.Fatalf("created project = %+v", p)
	}

	rr = h.do(t, http.MethodGet, "/projects", nil)
	body := decodeJSONBody(t, rr)
	if list, _ := body["projects"].([]any); len(list) != 1 {
		t.Errorf("projects = %v, want 1 entry", body["projects"])
	}

	rr = h.do(t, http.MethodPatch, "/projects/"+p.ID, map[string]any{"name": "Launch Video v2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body)
	}
	decodeInto(t, rr, &p)
	if p.Name != "Launch Video v2" {
		t.Errorf("name = %q, want %q", p.Name, "Launch Video v2")
	}

	if rr = h.do(t, http.MethodDelete, "/projects/"+p.ID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if rr = h.do(t, http.MethodGet, "/projects/"+p.ID, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProjects_BadRequests(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.importProject(t)

	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"missing name", http.MethodPost, "/projects", map[string]any{}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/projects", map[string]any{"name": "x", "color": "red"}, http.StatusBadRequest},
		{"segment ends before start", http.MethodPost, "/projects/p1/segments", map[string]any{"start": 3, "end": 1}, http.StatusBadRequest},
		{"segment without timing", http.MethodPost, "/projects/p1/segments", map[string]any{"text": "hi"}, http.StatusBadRequest},
		{"segment on unknown clip", http.MethodPost, "/projects/p1/segments", map[string]any{"clip_id": "nope", "start": 0, "end": 1}, http.StatusNotFound},
		{"clip without source end", http.MethodPost, "/projects/p1/clips", map[string]any{"path": "/media/c.mp4"}, http.StatusUnprocessableEntity},
		{"trim past start", http.MethodPatch, "/projects/p1/clips/c1/trim", map[string]any{"source_start": 5, "source_end": 2}, http.StatusBadRequest},
		{"reorder unknown clip", http.MethodPut, "/projects/p1/clips/order", map[string]any{"clip_ids": []string{"c2", "zz"}}, http.StatusNotFound},
		{"reorder missing clip", http.MethodPut, "/projects/p1/clips/order", map[string]any{"clip_ids": []string{"c2"}}, http.StatusUnprocessableEntity},
		{"unknown project", http.MethodGet, "/projects/missing", nil, http.StatusNotFound},
		{"unknown segment", http.MethodDelete, "/projects/p1/segments/missing", nil, http.StatusNotFound},
		{"music without path", http.MethodPost, "/projects/p1/music", map[string]any{"start": 0, "end": 5}, http.StatusBadRequest},
		{"bad export preset", http.MethodPost, "/projects/p1/exports", map[string]any{"preset": "ultra"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := h.do(t, tc.method, tc.target, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tc.want, rr.Body)
			}
		})
	}
}

func TestProjects_EditTimeline(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	rr := h.do(t, http.MethodPost, "/projects", map[string]any{"name": "Edit"})
	var p timeline.Project
	decodeInto(t, rr, &p)
	base := "/projects/" + p.ID

	var first, second timeline.Clip
	rr = h.do(t, http.MethodPost, base+"/clips", map[string]any{"path": "/media/a.mp4", "source_end": 6})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add clip status = %d: %s", rr.Code, rr.Body)
	}
	decodeInto(t, rr, &first)
	rr = h.do(t, http.MethodPost, base+"/clips", map[string]any{"path": "/media/b.mp4", "source_start": 2, "source_end": 6})
	decodeInto(t, rr, &second)
	if second.Order <= first.Order {
		t.Errorf("second order = %d, want after %d", second.Order, first.Order)
	}

	rr = h.do(t, http.MethodPost, base+"/segments", map[string]any{
		"clip_id": second.ID, "start": 1, "end": 3, "text": "Second clip narration",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add segment status = %d: %s", rr.Code, rr.Body)
	}
	var seg timeline.Segment
	decodeInto(t, rr, &seg)

	rr = h.do(t, http.MethodPost, base+"/music", map[string]any{
		"path": "/media/song.mp3", "start": 0, "end": 10, "fade_out": 2,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add music status = %d: %s", rr.Code, rr.Body)
	}
	var music timeline.MusicLayer
	decodeInto(t, rr, &music)
	if music.Volume != 1 {
		t.Errorf("music volume = %v, want default 1", music.Volume)
	}

	rr = h.do(t, http.MethodGet, base+"/timeline", nil)
	var resolved timeline.Resolved
	decodeInto(t, rr, &resolved)
	if resolved.TotalDuration != 10 {
		t.Errorf("total duration = %v, want 10", resolved.TotalDuration)
	}
	span, ok := resolved.Segment(seg.ID)
	if !ok || span.Start != 7 || span.End != 9 {
		t.Errorf("segment span = %+v (found %v), want 7-9", span, ok)
	}

	// moving the second clip first shifts its narration with it
	rr = h.do(t, http.MethodPut, base+"/clips/order", map[string]any{"clip_ids": []string{second.ID, first.ID}})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reorder status = %d: %s", rr.Code, rr.Body)
	}
	rr = h.do(t, http.MethodGet, base+"/timeline", nil)
	decodeInto(t, rr, &resolved)
	if span, _ := resolved.Segment(seg.ID); span.Start != 1 || span.End != 3 {
		t.Errorf("segment span after reorder = %+v, want 1-3", span)
	}

	rr = h.do(t, http.MethodGet, base+"/timeline/at?t=5", nil)
	var at ClipAtResponse
	decodeInto(t, rr, &at)
	if !at.Found || at.ClipID != first.ID {
		t.Errorf("clip at 5s = %+v, want %s", at, first.ID)
	}

	if rr = h.do(t, http.MethodDelete, base+"/clips/"+second.ID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete clip status = %d: %s", rr.Code, rr.Body)
	}
	rr = h.do(t, http.MethodGet, base, nil)
	decodeInto(t, rr, &p)
	if len(p.Clips) != 1 || len(p.Segments) != 0 {
		t.Errorf("after delete: %d clips, %d segments, want 1 and 0", len(p.Clips), len(p.Segments))
	}
}

func TestClipAt_Bounds(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.importProject(t)

	cases := []struct {
		query  string
		status int
		clip   string
		found  bool
	}{
		{"t=0", http.StatusOK, "c1", true},
		{"t=12", http.StatusOK, "c2", true},
		{"t=30", http.StatusOK, "", false},
		{"t=-1", http.StatusBadRequest, "", false},
		{"t=soon", http.StatusBadRequest, "", false},
		{"", http.StatusBadRequest, "", false},
	}
	for _, tc := range cases {
		rr := h.do(t, http.MethodGet, "/projects/p1/timeline/at?"+tc.query, nil)
		if rr.Code != tc.status {
			t.Errorf("%q: status = %d, want %d", tc.query, rr.Code, tc.status)
			continue
		}
		if tc.status != http.StatusOK {
			continue
		}
		var at ClipAtResponse
		decodeInto(t, rr, &at)
		if at.ClipID != tc.clip || at.Found != tc.found {
			t.Errorf("%q: got %+v, want clip %q found %v", tc.query, at, tc.clip, tc.found)
		}
	}
}

func TestImportProject(t *testing.T) {
	h := newHarness(t, &fakeEngine{})

	doc := `{"id":"imported","name":"From File","clips":[{"id":"c1","order":0,"path":"/media/a.mp4","source_start":0,"source_end":4}]}`
	req := httptest.NewRequest(http.MethodPost, "/projects/import", strings.NewReader(doc))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body)
	}

	if rr = h.do(t, http.MethodGet, "/projects/imported", nil); rr.Code != http.StatusOK {
		t.Fatalf("get imported status = %d", rr.Code)
	}

	relative := bytes.ReplaceAll([]byte(doc), []byte("/media/a.mp4"), []byte("a.mp4"))
	req = httptest.NewRequest(http.MethodPost, "/projects/import", bytes.NewReader(relative))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr = httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("relative path status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestEDLDownload(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.importProject(t)

	rr := h.do(t, http.MethodGet, "/projects/p1/edl?fps=25", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "Demo Reel.edl") {
		t.Errorf("Content-Disposition = %q", got)
	}
	edl := rr.Body.String()
	for _, want := range []string{"TITLE: Demo Reel", "FCM: NON-DROP FRAME", "* MEDIA PATH:  /media/b.mp4", "00:00:10:00"} {
		if !strings.Contains(edl, want) {
			t.Errorf("EDL missing %q:\n%s", want, edl)
		}
	}

	if rr = h.do(t, http.MethodGet, "/projects/p1/edl?fps=0", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("fps=0 status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestClipMedia_LoopbackOnly(t *testing.T) {
	h := newHarness(t, &fakeEngine{})
	h.importProject(t)

	req := httptest.NewRequest(http.MethodGet, "/projects/p1/clips/c1/media", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "192.168.1.40:5000"
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	if rr = h.do(t, http.MethodGet, "/projects/p1/clips/missing/media", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown clip status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
