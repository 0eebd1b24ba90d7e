package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	govalidator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/voxreel/voxreel-agent/internal/timeline"
)

var structValidator = govalidator.New(govalidator.WithRequiredStructEnabled())

// LoadFile reads a project from a .yaml, .yml or .json file. Relative
// media paths are resolved against the file's directory.
func LoadFile(path string) (*timeline.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	base := filepath.Dir(path)
	for i := range p.Clips {
		p.Clips[i].Path = resolvePath(base, p.Clips[i].Path)
	}
	for i := range p.Music {
		p.Music[i].Path = resolvePath(base, p.Music[i].Path)
	}
	return p, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Decode parses a project document. ext selects JSON for ".json" and YAML
// otherwise. The result is structurally validated.
func Decode(data []byte, ext string) (*timeline.Project, error) {
	var p timeline.Project
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := defaultMusicVolumes(&p, data, ext); err != nil {
		return nil, err
	}
	if err := CheckStructure(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// defaultMusicVolumes sets DefaultMusicVolume on layers whose document
// omits volume. An explicit 0 is kept.
func defaultMusicVolumes(p *timeline.Project, data []byte, ext string) error {
	if len(p.Music) == 0 {
		return nil
	}
	var doc struct {
		Music []struct {
			Volume *float64 `json:"volume" yaml:"volume"`
		} `json:"music" yaml:"music"`
	}
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return fmt.Errorf("parse music volumes: %w", err)
	}
	for i := range p.Music {
		if i < len(doc.Music) && doc.Music[i].Volume == nil {
			p.Music[i].Volume = timeline.DefaultMusicVolume
		}
	}
	return nil
}

// CheckStructure runs the struct tag rules on p and reports each failing
// field.
func CheckStructure(p *timeline.Project) error {
	err := structValidator.Struct(p)
	if err == nil {
		return nil
	}
	var verrs govalidator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// SaveFile writes p as YAML or JSON depending on the extension.
func SaveFile(path string, p *timeline.Project) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(p, "", "  ")
		data = append(data, '\n')
	} else {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(p); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
