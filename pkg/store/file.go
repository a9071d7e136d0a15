package store

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

const (
	matrixFile   = "embeddings.f32"
	manifestFile = "map.txt"
)

var matrixMagic = [4]byte{'E', 'M', 'B', '1'}

type matrixHeader struct {
	Magic [4]byte
	Rows  uint32
	Dims  uint32
	Sum   [32]byte
}

// FileStore keeps the embedding matrix and its text manifest side by side in
// one directory. The matrix header carries the manifest checksum so a torn
// pair is detected on load.
//
// Matrix layout (little endian): magic, rows uint32, dims uint32,
// sha256(manifest), rows*dims float32.
// Manifest layout: one JSON string per line, in row order.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Load returns nil slices when nothing is stored or the pair does not match.
func (s *FileStore) Load(ctx context.Context) ([]string, [][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifest: %w", err)
	}

	matrix, err := os.ReadFile(filepath.Join(s.dir, matrixFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading matrix: %w", err)
	}

	texts, err := decodeManifest(manifest)
	if err != nil {
		return nil, nil, nil
	}
	embeddings, sum, err := decodeMatrix(matrix)
	if err != nil {
		return nil, nil, nil
	}
	if sum != sha256.Sum256(manifest) || len(texts) != len(embeddings) {
		return nil, nil, nil
	}
	return texts, embeddings, nil
}

// Save replaces both files through temp files and renames.
func (s *FileStore) Save(ctx context.Context, texts []string, embeddings [][]float32) error {
	if len(texts) != len(embeddings) {
		return fmt.Errorf("cannot save %d texts with %d embeddings", len(texts), len(embeddings))
	}

	manifest, err := encodeManifest(texts)
	if err != nil {
		return err
	}
	var matrix bytes.Buffer
	if err := encodeMatrix(&matrix, embeddings, sha256.Sum256(manifest)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(filepath.Join(s.dir, matrixFile), matrix.Bytes()); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.dir, manifestFile), manifest)
}

func encodeManifest(texts []string) ([]byte, error) {
	var buf bytes.Buffer
	for _, t := range texts {
		line, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encoding manifest: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func decodeManifest(data []byte) ([]string, error) {
	var texts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var t string
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, scanner.Err()
}

func encodeMatrix(w io.Writer, embeddings [][]float32, sum [32]byte) error {
	dims := 0
	if len(embeddings) > 0 {
		dims = len(embeddings[0])
	}
	header := matrixHeader{matrixMagic, uint32(len(embeddings)), uint32(dims), sum}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}

	row := make([]byte, 4*dims)
	for i, vec := range embeddings {
		if len(vec) != dims {
			return fmt.Errorf("row %d has %d dims, expected %d", i, len(vec), dims)
		}
		for j, x := range vec {
			binary.LittleEndian.PutUint32(row[4*j:], math.Float32bits(x))
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func decodeMatrix(data []byte) ([][]float32, [32]byte, error) {
	var header matrixHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, header.Sum, err
	}
	if header.Magic != matrixMagic {
		return nil, header.Sum, errors.New("bad matrix magic")
	}
	if int64(r.Len()) != 4*int64(header.Rows)*int64(header.Dims) {
		return nil, header.Sum, errors.New("matrix size does not match header")
	}

	embeddings := make([][]float32, header.Rows)
	row := make([]byte, 4*header.Dims)
	for i := range embeddings {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, header.Sum, err
		}
		vec := make([]float32, header.Dims)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:]))
		}
		embeddings[i] = vec
	}
	return embeddings, header.Sum, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
