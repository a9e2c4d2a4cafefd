package mapping

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gethiox/keymapper/internal/pkg/logger"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var log = logger.GetLogger()

type TOMLMappingFile struct {
	Device struct {
		Name string `toml:"name"`
	} `toml:"device"`
	Keys map[string]string `toml:"keys"`
}

type YamlMappingFile struct {
	Device struct {
		Name string `yaml:"name"`
	} `yaml:"device"`
	Keys map[string]string `yaml:"keys"`
}

// File is a mapping loaded from disk, bound to a device by its name
type File struct {
	Path    string
	Device  string
	Mapping Mapping
}

func build(device string, keys map[string]string) (File, error) {
	if strings.TrimSpace(device) == "" {
		return File{}, fmt.Errorf("device name is not set")
	}

	m := make(Mapping, len(keys))
	for rawKey, output := range keys {
		key, err := ParseKey(rawKey)
		if err != nil {
			return File{}, fmt.Errorf("failed to parse key: %w", err)
		}
		if _, ok := m[key]; ok {
			return File{}, fmt.Errorf("%s: key defined more than once", rawKey)
		}
		m[key] = output
	}
	return File{Device: device, Mapping: m}, nil
}

func ParseTOML(data []byte) (File, error) {
	raw := TOMLMappingFile{}

	d := toml.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()

	err := d.Decode(&raw)
	if err != nil {
		return File{}, fmt.Errorf("parsing toml failed: %w", err)
	}
	return build(raw.Device.Name, raw.Keys)
}

func ParseYAML(data []byte) (File, error) {
	raw := YamlMappingFile{}

	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)

	err := d.Decode(&raw)
	if err != nil {
		return File{}, fmt.Errorf("parsing yaml failed: %w", err)
	}
	return build(raw.Device.Name, raw.Keys)
}

func isMappingFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".toml") || strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("cannot read mapping file: %w", err)
	}

	var f File
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		f, err = ParseTOML(data)
	} else {
		f, err = ParseYAML(data)
	}
	if err != nil {
		return File{}, err
	}
	f.Path = path
	return f, nil
}

// Collection keeps mappings indexed by device name
type Collection map[string]File

func (c Collection) Find(device string) (File, bool) {
	f, ok := c[device]
	return f, ok
}

// LoadDirectory reads every mapping file under root, broken files are reported and skipped
func LoadDirectory(root string) (Collection, error) {
	collection := make(Collection)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !isMappingFile(entry.Name()) {
			return nil
		}

		f, err := ReadFile(path)
		if err != nil {
			log.Info(fmt.Sprintf("mapping load failed: %s", err), zap.String("mapping", path), logger.Warning)
			return nil
		}

		if previous, ok := collection[f.Device]; ok {
			log.Info(fmt.Sprintf("device already mapped by %s, ignoring", previous.Path),
				zap.String("mapping", path), zap.String("device_name", f.Device), logger.Warning)
			return nil
		}
		collection[f.Device] = f
		log.Info("mapping loaded", zap.String("mapping", path), zap.String("device_name", f.Device), logger.Debug)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk failed: %w", err)
	}
	return collection, nil
}
