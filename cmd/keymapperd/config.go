package main

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gethiox/keymapper/internal/pkg/logger"
)

//go:embed keymapper-config/keymapper.config
//go:embed keymapper-config/*/*
var templateConfig embed.FS

const (
	templateDir      = "keymapper-config"
	defaultConfigDir = "keymapper-config"
	configFile       = "keymapper.config"
	mappingsDir      = "mappings"
	examplesDir      = "examples"
)

func writeTemplate(src, dst string) error {
	data, err := fs.ReadFile(templateConfig, src)
	if err != nil {
		return fmt.Errorf("cannot read \"%s\" template file: %w", src, err)
	}
	err = os.WriteFile(dst, data, 0o666)
	if err != nil {
		return fmt.Errorf("cannot write data into \"%s\" file: %w", dst, err)
	}
	return nil
}

// createConfigDirectoryIfNeeded creates config directory if necessary.
// It also refreshes example mappings, keymapper.config and user mappings stay intact.
func createConfigDirectoryIfNeeded(dir string) error {
	_, err := os.Stat(dir)
	if err == nil {
		return updateExamples(dir)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot open config directory: %w", err)
	}

	log.Info("config not exist, generating tree...", logger.Info)
	err = fs.WalkDir(templateConfig, templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(templateDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, rel)

		if d.IsDir() {
			err := os.MkdirAll(dst, 0o777)
			if err != nil {
				return fmt.Errorf("cannot create \"%s\" directory: %w", dst, err)
			}
			return nil
		}

		if err := writeTemplate(path, dst); err != nil {
			return err
		}
		log.Info(fmt.Sprintf("Created \"%s\" file", dst), logger.Debug)
		return nil
	})
	if err != nil {
		return fmt.Errorf("config generation failed: %w", err)
	}
	log.Info("config generation done", logger.Info)
	return nil
}

func updateExamples(dir string) error {
	root := templateDir + "/" + examplesDir
	err := fs.WalkDir(templateConfig, root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(templateDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, rel)

		if entry.IsDir() {
			// ensure directories exists
			err := os.MkdirAll(dst, 0o777)
			if err != nil {
				return fmt.Errorf("cannot create \"%s\" directory: %w", dst, err)
			}
			return nil
		}

		data, err := os.ReadFile(dst)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("cannot open \"%s\" file: %w", dst, err)
			}
			log.Info(fmt.Sprintf("Creating new example mapping: \"%s\"", dst), logger.Debug)
			return writeTemplate(path, dst)
		}

		newData, err := fs.ReadFile(templateConfig, path)
		if err != nil {
			return fmt.Errorf("cannot open \"%s\" file template: %w", path, err)
		}
		if bytes.Equal(data, newData) {
			log.Info(fmt.Sprintf("File \"%s\" not changed", dst), logger.Debug)
			return nil
		}
		log.Info(fmt.Sprintf("File \"%s\" changed, replacing data...", dst), logger.Debug)
		return writeTemplate(path, dst)
	})
	if err != nil {
		return fmt.Errorf("update example mappings failed: %w", err)
	}
	return nil
}
