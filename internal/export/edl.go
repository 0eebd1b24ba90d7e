package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

// EDLEvent is one edit: a source window placed at a record position.
type EDLEvent struct {
	Name      string
	MediaPath string
	// Track is "V" for picture or "A" for narration audio.
	Track     string
	SourceIn  float64
	SourceOut float64
	RecordIn  float64
}

// EDLEvents lists the resolved clips in timeline order, followed by
// synthesized narration as audio events.
func EDLEvents(p *timeline.Project, r *timeline.Resolved) []EDLEvent {
	var events []EDLEvent
	for _, span := range r.Clips {
		c := p.ClipByID(span.ID)
		if c == nil {
			continue
		}
		played := min(span.Len(), c.Duration())
		events = append(events, EDLEvent{
			Name:      SanitizeName(strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path)), 160),
			MediaPath: c.Path,
			Track:     "V",
			SourceIn:  c.SourceStart,
			SourceOut: c.SourceStart + played,
			RecordIn:  span.Start,
		})
	}
	for _, span := range r.Segments {
		seg := p.SegmentByID(span.ID)
		if span.Orphan || seg == nil || seg.AudioPath == "" {
			continue
		}
		length := span.Len()
		if seg.AudioDuration > 0 {
			length = min(length, seg.AudioDuration)
		}
		events = append(events, EDLEvent{
			Name:      "narration " + seg.ID,
			MediaPath: seg.AudioPath,
			Track:     "A",
			SourceIn:  0,
			SourceOut: length,
			RecordIn:  span.Start,
		})
	}
	return events
}

// GenerateEDL renders events as a CMX3600 edit decision list.
func GenerateEDL(events []EDLEvent, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		track := ev.Track
		if track == "" {
			track = "V"
		}
		recOut := ev.RecordIn + (ev.SourceOut - ev.SourceIn)
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", track,
				secondsToTimecode(ev.SourceIn, fps), secondsToTimecode(ev.SourceOut, fps),
				secondsToTimecode(ev.RecordIn, fps), secondsToTimecode(recOut, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(max(0, sec) * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
