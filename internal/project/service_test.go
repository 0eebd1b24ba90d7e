package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/voxreel/voxreel-agent/internal/db"
	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

type fakeProber struct {
	descs map[string]*media.Descriptor
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*media.Descriptor, error) {
	f.calls++
	d, ok := f.descs[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return d, nil
}

func video(path string, dur float64) *media.Descriptor {
	return &media.Descriptor{Path: path, Duration: dur, Width: 1920, Height: 1080, FrameRate: 30, HasAudio: true}
}

func setupTestDB(t *testing.T) (*db.DB, *SQLiteRepository) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewRepository(database.Conn())
}

func setupService(t *testing.T) (*Service, *fakeProber) {
	_, repo := setupTestDB(t)
	prober := &fakeProber{descs: map[string]*media.Descriptor{
		"/media/a.mp4": video("/media/a.mp4", 10),
		"/media/b.mp4": video("/media/b.mp4", 8),
		"/media/c.mp4": video("/media/c.mp4", 5),
	}}
	return NewService(repo, prober, nil), prober
}

func TestService_AddClip_DefaultsAndOrder(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	a, err := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/a.mp4"})
	if err != nil {
		t.Fatalf("AddClip() error = %v", err)
	}
	if a.SourceEnd != 10 || a.Order != 0 {
		t.Errorf("first clip = end %v order %d, want end 10 order 0", a.SourceEnd, a.Order)
	}

	b, err := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/b.mp4", SourceStart: 1, SourceEnd: timeline.Float(7)})
	if err != nil {
		t.Fatalf("AddClip() error = %v", err)
	}
	if b.Order != 1 || b.Duration() != 6 {
		t.Errorf("second clip = order %d duration %v, want 1 and 6", b.Order, b.Duration())
	}

	got, err := svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if len(got.Clips) != 2 || got.Clips[0].Media == nil {
		t.Fatalf("clips = %+v, want 2 hydrated clips", got.Clips)
	}
	r := timeline.Resolve(got)
	if r.Clips[1].Start != 10 || r.TotalDuration != 16 {
		t.Errorf("resolved = %+v", r.Clips)
	}
}

func TestService_AddClip_Rejects(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	p, _ := svc.CreateProject(ctx, "demo")

	tests := []struct {
		name string
		in   ClipInput
	}{
		{"unprobeable", ClipInput{Path: "/media/missing.mp4"}},
		{"end beyond media", ClipInput{Path: "/media/c.mp4", SourceEnd: timeline.Float(6)}},
		{"empty window", ClipInput{Path: "/media/c.mp4", SourceStart: 3, SourceEnd: timeline.Float(3)}},
		{"negative start", ClipInput{Path: "/media/c.mp4", SourceStart: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddClip(ctx, p.ID, tt.in)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("AddClip() error = %v, want ErrInvalid", err)
			}
		})
	}

	if _, err := svc.AddClip(ctx, "nope", ClipInput{Path: "/media/a.mp4"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddClip() on missing project error = %v, want ErrNotFound", err)
	}
}

func TestService_DeleteClip_CascadesBoundSegments(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	p, _ := svc.CreateProject(ctx, "demo")
	a, _ := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/a.mp4"})
	b, _ := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/b.mp4"})

	if _, err := svc.AddSegment(ctx, p.ID, timeline.Segment{ClipID: a.ID, Start: 1, End: 2, Text: "on a"}); err != nil {
		t.Fatalf("AddSegment() error = %v", err)
	}
	if _, err := svc.AddSegment(ctx, p.ID, timeline.Segment{ClipID: b.ID, Start: 1, End: 2, Text: "on b"}); err != nil {
		t.Fatalf("AddSegment() error = %v", err)
	}
	if _, err := svc.AddSegment(ctx, p.ID, timeline.Segment{Start: 0, End: 1, Text: "generic"}); err != nil {
		t.Fatalf("AddSegment() error = %v", err)
	}
	if _, err := svc.AddMusic(ctx, p.ID, timeline.MusicLayer{Path: "/media/c.mp4", Start: 0, End: 18, Volume: 1}); err != nil {
		t.Fatalf("AddMusic() error = %v", err)
	}

	if err := svc.DeleteClip(ctx, p.ID, a.ID); err != nil {
		t.Fatalf("DeleteClip() error = %v", err)
	}

	got, _ := svc.GetProject(ctx, p.ID)
	if len(got.Clips) != 1 || len(got.Segments) != 2 || len(got.Music) != 1 {
		t.Fatalf("after delete: %d clips, %d segments, %d music; want 1, 2, 1",
			len(got.Clips), len(got.Segments), len(got.Music))
	}
	for _, s := range got.Segments {
		if s.ClipID == a.ID {
			t.Errorf("segment %s still bound to deleted clip", s.ID)
		}
	}
}

func TestService_UpdateSegment_InvalidatesArtifacts(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	p, _ := svc.CreateProject(ctx, "demo")
	c, _ := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/a.mp4"})
	seg, _ := svc.AddSegment(ctx, p.ID, timeline.Segment{ClipID: c.ID, Start: 2, End: 5, Text: "hello"})

	if err := svc.SaveArtifacts(ctx, seg.ID, Artifacts{AudioPath: "/art/a.wav", AudioDuration: 2.5, Key: seg.ContentKey()}); err != nil {
		t.Fatalf("SaveArtifacts() error = %v", err)
	}

	// timing-only edit keeps artifacts
	moved, err := svc.UpdateSegment(ctx, p.ID, seg.ID, SegmentPatch{Start: timeline.Float(3), End: timeline.Float(6)})
	if err != nil {
		t.Fatalf("UpdateSegment() error = %v", err)
	}
	if !moved.HasArtifact() {
		t.Errorf("artifacts dropped on timing change: %+v", moved)
	}

	text := "goodbye"
	edited, err := svc.UpdateSegment(ctx, p.ID, seg.ID, SegmentPatch{Text: &text})
	if err != nil {
		t.Fatalf("UpdateSegment() error = %v", err)
	}
	if edited.AudioPath != "" || edited.ArtifactKey != "" || edited.AudioDuration != 0 {
		t.Errorf("artifacts kept after text change: %+v", edited)
	}

	got, _ := svc.GetProject(ctx, p.ID)
	if s := got.SegmentByID(seg.ID); s.AudioPath != "" || s.Text != "goodbye" {
		t.Errorf("stored segment = %+v", s)
	}
}

func TestService_ReorderAndReposition(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	p, _ := svc.CreateProject(ctx, "demo")
	a, _ := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/a.mp4"})
	b, _ := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/b.mp4"})

	if err := svc.ReorderClips(ctx, p.ID, []string{b.ID, a.ID}); err != nil {
		t.Fatalf("ReorderClips() error = %v", err)
	}
	got, _ := svc.GetProject(ctx, p.ID)
	r := timeline.Resolve(got)
	if r.Clips[0].ID != b.ID || r.Clips[1].Start != 8 {
		t.Errorf("after reorder = %+v", r.Clips)
	}

	if err := svc.ReorderClips(ctx, p.ID, []string{b.ID}); !errors.Is(err, ErrInvalid) {
		t.Errorf("partial reorder error = %v, want ErrInvalid", err)
	}

	if _, err := svc.RepositionClip(ctx, p.ID, a.ID, Placement{TimelineStart: timeline.Float(20)}); err != nil {
		t.Fatalf("RepositionClip() error = %v", err)
	}
	got, _ = svc.GetProject(ctx, p.ID)
	r = timeline.Resolve(got)
	if r.Mode != timeline.ModeExplicit {
		t.Fatalf("mode = %s, want explicit", r.Mode)
	}
	span, _ := r.Clip(a.ID)
	if span.Start != 20 || span.End != 30 {
		t.Errorf("repositioned span = %+v, want [20,30)", span)
	}

	if _, err := svc.RepositionClip(ctx, p.ID, a.ID, Placement{ClearExplicit: true}); err != nil {
		t.Fatalf("RepositionClip(clear) error = %v", err)
	}
	got, _ = svc.GetProject(ctx, p.ID)
	if timeline.Resolve(got).Mode != timeline.ModeImplicit {
		t.Error("clearing placement should return to implicit mode")
	}
}

func TestService_TrimClip(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	p, _ := svc.CreateProject(ctx, "demo")
	c, _ := svc.AddClip(ctx, p.ID, ClipInput{Path: "/media/a.mp4"})

	trimmed, err := svc.TrimClip(ctx, p.ID, c.ID, 2, 9)
	if err != nil {
		t.Fatalf("TrimClip() error = %v", err)
	}
	if trimmed.Duration() != 7 {
		t.Errorf("Duration() = %v, want 7", trimmed.Duration())
	}
	if _, err := svc.TrimClip(ctx, p.ID, c.ID, 2, 11); !errors.Is(err, ErrInvalid) {
		t.Errorf("TrimClip() beyond media error = %v, want ErrInvalid", err)
	}
	if _, err := svc.TrimClip(ctx, p.ID, "nope", 0, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("TrimClip() missing clip error = %v, want ErrNotFound", err)
	}
}

func TestService_Music(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	p, _ := svc.CreateProject(ctx, "demo")

	m, err := svc.AddMusic(ctx, p.ID, timeline.MusicLayer{Path: "/media/c.mp4", Start: 0, End: 30, Volume: 0.8, Loop: true})
	if err != nil {
		t.Fatalf("AddMusic() error = %v", err)
	}
	muted := true
	updated, err := svc.UpdateMusic(ctx, p.ID, m.ID, MusicPatch{Muted: &muted, FadeOut: timeline.Float(2)})
	if err != nil {
		t.Fatalf("UpdateMusic() error = %v", err)
	}
	if !updated.Muted || updated.FadeOut != 2 || !updated.Loop {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := svc.UpdateMusic(ctx, p.ID, m.ID, MusicPatch{End: timeline.Float(-1)}); !errors.Is(err, ErrInvalid) {
		t.Errorf("UpdateMusic() bad interval error = %v, want ErrInvalid", err)
	}
	if err := svc.DeleteMusic(ctx, p.ID, m.ID); err != nil {
		t.Fatalf("DeleteMusic() error = %v", err)
	}
	if err := svc.DeleteMusic(ctx, p.ID, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteMusic() error = %v, want ErrNotFound", err)
	}
}

func sampleProject() *timeline.Project {
	return &timeline.Project{
		ID:   "p1",
		Name: "round trip",
		Clips: []timeline.Clip{
			{ID: "c2", Order: 1, Path: "/media/b.mp4", SourceStart: 0, SourceEnd: 8},
			{ID: "c1", Order: 0, Path: "/media/a.mp4", SourceStart: 0, SourceEnd: 10},
			{ID: "c3", Order: 2, Path: "/media/c.mp4", SourceStart: 0.5, SourceEnd: 4.25},
		},
		Segments: []timeline.Segment{
			{ID: "s2", ClipID: "c2", Start: 2, End: 5, Text: "second", Voice: timeline.VoiceParams{Voice: "nova", Speed: 1}},
			{ID: "s1", ClipID: "c1", Start: 1, End: 3, Text: "first", Voice: timeline.VoiceParams{Voice: "nova", Speed: 1}},
			{ID: "g1", Start: 19, End: 21.5, Text: "generic", Voice: timeline.VoiceParams{Voice: "onyx", Language: "en", Speed: 1.2, Pitch: -2}},
		},
		Music: []timeline.MusicLayer{
			{ID: "m1", Order: 0, Path: "/media/music.mp3", Start: 0, End: 30, Volume: 0.5, FadeIn: 1, FadeOut: 2, Loop: true},
		},
		Mix: timeline.MixSettings{NarrationGain: timeline.Float(1.8), AllowOverlappingSegments: true},
	}
}

func resolvedJSON(t *testing.T, p *timeline.Project) string {
	t.Helper()
	data, err := json.Marshal(timeline.Resolve(p))
	if err != nil {
		t.Fatalf("marshal resolved: %v", err)
	}
	return string(data)
}

func TestRepository_RoundTripResolvesIdentically(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	p := sampleProject()
	want := resolvedJSON(t, p)

	if err := repo.ImportProject(ctx, p); err != nil {
		t.Fatalf("ImportProject() error = %v", err)
	}
	got, err := repo.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if g := resolvedJSON(t, got); g != want {
		t.Errorf("resolution changed after round trip\n got: %s\nwant: %s", g, want)
	}
	if got.Mix.NarrationGain == nil || *got.Mix.NarrationGain != 1.8 || got.Mix.OriginalVolume != nil {
		t.Errorf("mix = %+v", got.Mix)
	}
	if s := got.SegmentByID("g1"); s.Voice.Pitch != -2 || s.Voice.Language != "en" {
		t.Errorf("voice params lost: %+v", s.Voice)
	}
}

func TestRepository_GetMissingReturnsNil(t *testing.T) {
	_, repo := setupTestDB(t)
	p, err := repo.GetProject(context.Background(), "missing")
	if err != nil || p != nil {
		t.Errorf("GetProject(missing) = %v, %v; want nil, nil", p, err)
	}
}

func TestRepository_Config(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "auth_token"); err != nil || v != "" {
		t.Errorf("GetConfig(unset) = %q, %v", v, err)
	}
	repo.SetConfig(ctx, "auth_token", "one")
	repo.SetConfig(ctx, "auth_token", "two")
	if v, _ := repo.GetConfig(ctx, "auth_token"); v != "two" {
		t.Errorf("GetConfig() = %q, want two", v)
	}
}

func TestRepository_ListProjects(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	if err := repo.ImportProject(ctx, sampleProject()); err != nil {
		t.Fatalf("ImportProject() error = %v", err)
	}
	list, err := repo.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(list) != 1 || list[0].Clips != 3 || list[0].Name != "round trip" {
		t.Errorf("ListProjects() = %+v", list)
	}
}
