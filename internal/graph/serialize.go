package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

const (
	audioRate   = 48000
	audioFormat = "aformat=sample_fmts=fltp:sample_rates=48000:channel_layouts=stereo"
)

// Input is one ffmpeg input with its per-input options.
type Input struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
}

// Description is a graph serialized for ffmpeg: inputs, a filter_complex
// script and the labels of the two output streams.
type Description struct {
	Inputs        []Input         `json:"inputs"`
	FilterComplex string          `json:"filter_complex"`
	VideoLabel    string          `json:"video_label"`
	AudioLabel    string          `json:"audio_label"`
	Format        timeline.Format `json:"format"`
	Duration      float64         `json:"duration"`
}

// InputArgs flattens the inputs into ffmpeg arguments.
func (d *Description) InputArgs() []string {
	var args []string
	for _, in := range d.Inputs {
		args = append(args, in.Args...)
		args = append(args, "-i", in.Path)
	}
	return args
}

type inputKey struct {
	path       string
	start, end float64
	loop       bool
}

type serializer struct {
	g       *Graph
	desc    *Description
	inputs  map[inputKey]int
	used    map[string]bool
	filters []string
}

// Serialize renders g as ffmpeg inputs and a filter_complex script.
// Every node becomes one labelled chain, emitted in graph order.
func Serialize(g *Graph) (*Description, error) {
	if err := g.Check(); err != nil {
		return nil, err
	}
	out := g.Nodes[g.Output].Op.(Output)

	s := &serializer{
		g:      g,
		desc:   &Description{Format: out.Format, Duration: g.Duration()},
		inputs: make(map[inputKey]int),
		used:   make(map[string]bool),
	}

	for _, n := range g.Nodes {
		if n.Kind() == KindOutput {
			continue
		}
		chain, err := s.chain(n)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", n.ID, n.Kind(), err)
		}
		s.filters = append(s.filters, chain)
	}

	s.desc.FilterComplex = strings.Join(s.filters, ";\n")
	s.desc.VideoLabel = label(g.Video)
	s.desc.AudioLabel = label(g.Audio)
	return s.desc, nil
}

func (s *serializer) chain(n *Node) (string, error) {
	in := s.inputLabels(n)
	out := label(n.ID)

	switch op := n.Op.(type) {
	case Source:
		stream := s.input(op)
		if op.Stream == StreamVideo {
			return fmt.Sprintf("[%s]setpts=PTS-STARTPTS,setsar=1%s", stream, out), nil
		}
		return fmt.Sprintf("[%s]%s,asetpts=PTS-STARTPTS%s", stream, audioFormat, out), nil

	case Normalize:
		f := op.Format
		return fmt.Sprintf("%sscale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%s%s",
			in, f.Width, f.Height, f.Width, f.Height, rate(f.FrameRate), out), nil

	case Gap:
		f := op.Format
		return fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=%s,setsar=1%s",
			f.Width, f.Height, rate(f.FrameRate), seconds(op.Duration), out), nil

	case SilentAudio:
		return fmt.Sprintf("anullsrc=r=%d:cl=stereo,atrim=duration=%s,%s%s",
			audioRate, seconds(op.Duration), audioFormat, out), nil

	case ConcatVideo:
		return fmt.Sprintf("%sconcat=n=%d:v=1:a=0%s", in, len(n.Inputs), out), nil

	case ConcatAudio:
		return fmt.Sprintf("%sconcat=n=%d:v=0:a=1%s", in, len(n.Inputs), out), nil

	case Delay:
		ms := Milliseconds(op.Offset)
		return fmt.Sprintf("%sadelay=%d|%d%s", in, ms, ms, out), nil

	case Loop, Trim:
		var until float64
		if l, ok := op.(Loop); ok {
			until = l.Until
		} else {
			until = op.(Trim).Until
		}
		return fmt.Sprintf("%satrim=end=%s,asetpts=PTS-STARTPTS%s", in, seconds(until), out), nil

	case Fade:
		var parts []string
		if op.In > 0 {
			parts = append(parts, fmt.Sprintf("afade=t=in:st=%s:d=%s", seconds(op.Start), seconds(op.In)))
		}
		if op.Out > 0 {
			parts = append(parts, fmt.Sprintf("afade=t=out:st=%s:d=%s", seconds(max(op.Start, op.End-op.Out)), seconds(op.Out)))
		}
		if len(parts) == 0 {
			parts = append(parts, "anull")
		}
		return in + strings.Join(parts, ",") + out, nil

	case Volume:
		return fmt.Sprintf("%svolume=%s%s", in, strconv.FormatFloat(op.Gain, 'f', -1, 64), out), nil

	case Mix:
		if op.Policy != MixLongest {
			return "", fmt.Errorf("unsupported mix policy %q", op.Policy)
		}
		return fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0:normalize=0%s", in, len(n.Inputs), out), nil

	case Overlay:
		return fmt.Sprintf("%ssubtitles=%s%s", in, escapeFilterPath(op.SubtitlePath), out), nil
	}
	return "", fmt.Errorf("unsupported operation %T", n.Op)
}

// input returns the stream specifier for a Source, sharing one ffmpeg
// input between the video and audio of the same trimmed clip.
func (s *serializer) input(src Source) string {
	key := inputKey{path: src.Path, start: src.TrimStart, end: src.TrimEnd, loop: src.Loop}
	kind := "v"
	if src.Stream == StreamAudio {
		kind = "a"
	}

	idx, ok := s.inputs[key]
	if !ok || s.used[fmt.Sprintf("%d:%s", idx, kind)] {
		idx = len(s.desc.Inputs)
		s.inputs[key] = idx
		s.desc.Inputs = append(s.desc.Inputs, Input{Path: src.Path, Args: inputArgs(src)})
	}
	spec := fmt.Sprintf("%d:%s", idx, kind)
	s.used[spec] = true
	return spec + ":0"
}

func inputArgs(src Source) []string {
	var args []string
	if src.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	if src.TrimStart > 0 {
		args = append(args, "-ss", seconds(src.TrimStart))
	}
	if src.TrimEnd > src.TrimStart {
		args = append(args, "-t", seconds(src.TrimEnd-src.TrimStart))
	}
	return args
}

func (s *serializer) inputLabels(n *Node) string {
	var b strings.Builder
	for _, id := range n.Inputs {
		b.WriteString(label(id))
	}
	return b.String()
}

func label(id int) string {
	return fmt.Sprintf("[n%d]", id)
}

// Milliseconds rounds an offset in seconds to whole milliseconds.
func Milliseconds(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

// seconds formats with millisecond precision and no trailing zeros.
func seconds(v float64) string {
	return strconv.FormatFloat(float64(Milliseconds(v))/1000, 'f', -1, 64)
}

func rate(fps float64) string {
	return strconv.FormatFloat(math.Round(fps*1000)/1000, 'f', -1, 64)
}

// escapeFilterPath escapes a path first as a filter option value, then
// for the filtergraph itself.
func escapeFilterPath(p string) string {
	opt := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`).Replace(p)
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`).Replace(opt)
}
