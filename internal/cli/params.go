package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"Accumulus/internal/accumulator"
)

// ParamsFile is the on-disk form of genesis material. Integers are hex.
// A file without phi configures a verifier-only deployment.
type ParamsFile struct {
	N           string `yaml:"n"`
	G           string `yaml:"g"`
	Phi         string `yaml:"phi,omitempty"`
	Attestation string `yaml:"attestation"`
}

// LoadParams reads genesis material from a YAML params file.
func LoadParams(path string) (accumulator.Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return accumulator.Genesis{}, fmt.Errorf("read params %s:\n%w", path, err)
	}

	var doc ParamsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return accumulator.Genesis{}, fmt.Errorf("parse params %s:\n%w", path, err)
	}

	n, err := parseHexInt("n", doc.N)
	if err != nil {
		return accumulator.Genesis{}, err
	}

	g, err := parseHexInt("g", doc.G)
	if err != nil {
		return accumulator.Genesis{}, err
	}

	genesis := accumulator.Genesis{
		Params:      accumulator.Params{N: n, G: g},
		Attestation: doc.Attestation,
	}

	if doc.Phi != "" {
		phi, err := parseHexInt("phi", doc.Phi)
		if err != nil {
			return accumulator.Genesis{}, err
		}
		genesis.Trapdoor = &accumulator.Trapdoor{Phi: phi}
	}

	if err := genesis.Params.Validate(); err != nil {
		return accumulator.Genesis{}, fmt.Errorf("params %s:\n%w", path, err)
	}

	return genesis, nil
}

// SaveParams writes genesis material to path. The file is private to the
// owner since it may hold the trapdoor. An existing file is only replaced
// when force is set.
func SaveParams(path string, g accumulator.Genesis, force bool) error {
	doc := ParamsFile{
		N:           hexInt(g.Params.N),
		G:           hexInt(g.Params.G),
		Attestation: g.Attestation,
	}

	if g.Trapdoor != nil {
		doc.Phi = hexInt(g.Trapdoor.Phi)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode params:\n%w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create params dir:\n%w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("params file %s exists (use --force to replace):\n%w", path, err)
	}
	if err != nil {
		return fmt.Errorf("create params %s:\n%w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write params %s:\n%w", path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync params %s:\n%w", path, err)
	}

	return f.Close()
}
