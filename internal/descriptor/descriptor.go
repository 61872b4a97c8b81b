// Package descriptor reads and writes application descriptor files in YAML,
// JSON or TOML. Unknown keys are rejected so typos do not silently drop
// configuration.
package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/gia-client/internal/constants"
	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

// Format is a descriptor serialization.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// File is the on-disk shape of a descriptor.
type File struct {
	ID          string                `json:"id,omitempty"          yaml:"id,omitempty"          toml:"id,omitempty"`
	Name        string                `json:"name"                  yaml:"name"                  toml:"name"`
	Description string                `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	OwnerIDs    []string              `json:"owner_ids,omitempty"   yaml:"owner_ids,omitempty"   toml:"owner_ids,omitempty"`
	Icon        string                `json:"icon,omitempty"        yaml:"icon,omitempty"        toml:"icon,omitempty"`
	ObjectTypes map[string]ObjectType `json:"object_types,omitempty" yaml:"object_types,omitempty" toml:"object_types,omitempty"`
}

// ObjectType is the descriptor form of gia.ObjectType.
type ObjectType struct {
	Type       string              `json:"type"                 yaml:"type"                 toml:"type"`
	Properties map[string]Property `json:"properties,omitempty" yaml:"properties,omitempty" toml:"properties,omitempty"`
}

// Property is the descriptor form of gia.PropertyDescriptor.
type Property struct {
	Type        string `json:"type"                  yaml:"type"                  toml:"type"`
	Required    bool   `json:"required,omitempty"    yaml:"required,omitempty"    toml:"required,omitempty"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty" toml:"displayName,omitempty"`
	MultiValued bool   `json:"multiValued,omitempty" yaml:"multiValued,omitempty" toml:"multiValued,omitempty"`
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", constants.ErrUnsupportedFileFormat, filepath.Ext(path))
	}
}

// Load reads and validates the descriptor at path.
func Load(path string) (*gia.DesiredState, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	return Parse(data, format)
}

// Parse decodes and validates a descriptor.
func Parse(data []byte, format Format) (*gia.DesiredState, error) {
	var file File

	err := decode(data, format, &file)
	if err != nil {
		return nil, err
	}

	desired := file.DesiredState()

	err = desired.Validate()
	if err != nil {
		return nil, err //nolint:wrapcheck // ValidationError is reported as-is
	}

	return desired, nil
}

func decode(data []byte, format Format, file *File) error {
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)

		err := decoder.Decode(file)
		if err != nil {
			return decodeError(err)
		}
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()

		err := decoder.Decode(file)
		if err != nil {
			return decodeError(err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), file)
		if err != nil {
			return &gia.ValidationError{Reason: err.Error()}
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return &gia.ValidationError{Field: undecoded[0].String(), Reason: "is not a known field"}
		}
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnsupportedFileFormat, format)
	}

	return nil
}

var (
	yamlUnknownField = regexp.MustCompile(`field (\S+) not found`)
	jsonUnknownField = regexp.MustCompile(`unknown field "([^"]+)"`)
)

func decodeError(err error) error {
	if errors.Is(err, io.EOF) {
		return &gia.ValidationError{Reason: "descriptor is empty"}
	}

	msg := err.Error()

	for _, pattern := range []*regexp.Regexp{yamlUnknownField, jsonUnknownField} {
		if match := pattern.FindStringSubmatch(msg); match != nil {
			return &gia.ValidationError{Field: match[1], Reason: "is not a known field"}
		}
	}

	return &gia.ValidationError{Reason: msg}
}

// DesiredState converts the file into the reconciler input.
func (f *File) DesiredState() *gia.DesiredState {
	desired := &gia.DesiredState{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		OwnerIDs:    f.OwnerIDs,
		Icon:        f.Icon,
		ObjectTypes: make(map[string]gia.ObjectType, len(f.ObjectTypes)),
	}

	for id, objectType := range f.ObjectTypes {
		converted := gia.ObjectType{ID: id, Type: objectType.Type}

		if len(objectType.Properties) > 0 {
			converted.Properties = make(map[string]gia.PropertyDescriptor, len(objectType.Properties))
			for name, property := range objectType.Properties {
				converted.Properties[name] = gia.PropertyDescriptor{
					Type:        property.Type,
					Required:    property.Required,
					DisplayName: property.DisplayName,
					Multivalued: property.MultiValued,
				}
			}
		}

		desired.ObjectTypes[id] = converted
	}

	return desired
}

// FromApplication converts a remote application into descriptor form.
func FromApplication(app *gia.Application) *File {
	file := &File{
		ID:          app.ID,
		Name:        app.Name,
		Description: app.Description,
		OwnerIDs:    app.OwnerIDs,
		Icon:        app.Icon,
	}

	if len(app.ObjectTypes) > 0 {
		file.ObjectTypes = make(map[string]ObjectType, len(app.ObjectTypes))
	}

	for id, objectType := range app.ObjectTypes {
		converted := ObjectType{Type: objectType.Type}

		if len(objectType.Properties) > 0 {
			converted.Properties = make(map[string]Property, len(objectType.Properties))
			for name, property := range objectType.Properties {
				converted.Properties[name] = Property{
					Type:        property.Type,
					Required:    property.Required,
					DisplayName: property.DisplayName,
					MultiValued: property.Multivalued,
				}
			}
		}

		file.ObjectTypes[id] = converted
	}

	return file
}

// Export serializes app as a descriptor. Map keys are written in sorted
// order by every encoder, so output is stable.
func Export(app *gia.Application, format Format) ([]byte, error) {
	file := FromApplication(app)

	switch format {
	case FormatYAML:
		var buf bytes.Buffer

		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)

		err := encoder.Encode(file)
		if err != nil {
			return nil, fmt.Errorf("encoding YAML descriptor: %w", err)
		}

		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding JSON descriptor: %w", err)
		}

		return append(data, '\n'), nil
	case FormatTOML:
		var buf bytes.Buffer

		err := toml.NewEncoder(&buf).Encode(file)
		if err != nil {
			return nil, fmt.Errorf("encoding TOML descriptor: %w", err)
		}

		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", constants.ErrUnsupportedFileFormat, format)
	}
}
