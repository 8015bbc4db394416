package cnn

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// FormatVersion tags every artifact written by this package.
const FormatVersion = "leafnet.v1"

// magic opens every artifact file.
var magic = []byte("LEAFNET\x00")

// ErrInvalidArtifact is returned for files that are not readable artifacts.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Header is the metadata stored ahead of the parameters.
type Header struct {
	Version   string
	Topology  Topology
	Classes   []string
	CreatedAt time.Time
}

// Artifact is a decoded model file.
type Artifact struct {
	Header  Header
	Network *Network
}

// Save writes net and its class order to path. The file is written to a
// temporary sibling first and renamed into place.
//
// Arguments:
//   - path: Destination file; parent directories are created.
//   - net: The trained network.
//   - classes: Class names in output order.
//
// Returns:
//   - error: An error if the artifact cannot be encoded or written.
func Save(path string, net *Network, classes []string) error {
	if len(classes) != net.Topology.NumClasses {
		return errors.Errorf("network has %d outputs but %d classes were given", net.Topology.NumClasses, len(classes))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create artifact directory")
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create artifact")
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := Encode(w, net, classes); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write artifact")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "failed to move artifact into place")
}

// Encode writes the artifact stream: magic, gob header, gob parameters.
func Encode(w io.Writer, net *Network, classes []string) error {
	if _, err := w.Write(magic); err != nil {
		return errors.Wrap(err, "failed to write artifact")
	}

	enc := gob.NewEncoder(w)
	header := Header{
		Version:   FormatVersion,
		Topology:  net.Topology,
		Classes:   append([]string(nil), classes...),
		CreatedAt: time.Now().UTC(),
	}
	if err := enc.Encode(header); err != nil {
		return errors.Wrap(err, "failed to encode artifact header")
	}
	if err := enc.Encode(net.Params); err != nil {
		return errors.Wrap(err, "failed to encode parameters")
	}
	return nil
}

// Load reads an artifact from disk.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open artifact")
	}
	defer f.Close()

	artifact, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	return artifact, nil
}

// Decode reads an artifact stream and checks every parameter against the
// stored topology.
func Decode(r io.Reader) (*Artifact, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, errors.Wrap(ErrInvalidArtifact, "file too short")
	}
	if !bytes.Equal(head, magic) {
		return nil, errors.Wrap(ErrInvalidArtifact, "bad magic")
	}

	dec := gob.NewDecoder(r)
	var header Header
	if err := dec.Decode(&header); err != nil {
		return nil, errors.Wrapf(ErrInvalidArtifact, "header: %v", err)
	}
	if header.Version != FormatVersion {
		return nil, errors.Wrapf(ErrInvalidArtifact, "unsupported format version %q", header.Version)
	}
	if len(header.Classes) != header.Topology.NumClasses {
		return nil, errors.Wrapf(ErrInvalidArtifact, "%d classes for %d outputs", len(header.Classes), header.Topology.NumClasses)
	}

	var params []Param
	if err := dec.Decode(&params); err != nil {
		return nil, errors.Wrapf(ErrInvalidArtifact, "parameters: %v", err)
	}

	net, err := Assemble(header.Topology, params)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArtifact, "%v", err)
	}
	return &Artifact{Header: header, Network: net}, nil
}
