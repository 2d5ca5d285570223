// Package mnist loads the MNIST handwritten-digit dataset from the
// classic IDX files, gzipped or plain, and serves shuffled, binarized
// training batches.
package mnist

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801

	// DefaultBaseURL hosts the four canonical dataset files.
	DefaultBaseURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"
)

// The canonical file names of the MNIST distribution.
const (
	TrainImagesFile = "train-images-idx3-ubyte.gz"
	TrainLabelsFile = "train-labels-idx1-ubyte.gz"
	TestImagesFile  = "t10k-images-idx3-ubyte.gz"
	TestLabelsFile  = "t10k-labels-idx1-ubyte.gz"
)

// ErrInvalidFormat indicates a file that is not valid IDX data.
var ErrInvalidFormat = errors.New("invalid idx format")

// Dataset is an in-memory image set. Pixels are stored flat per image,
// scaled to [0,1].
type Dataset struct {
	Images []float32 // N * Rows * Cols
	Labels []uint8   // N
	N      int
	Rows   int
	Cols   int
}

// Pixels returns the flattened image size.
func (d *Dataset) Pixels() int { return d.Rows * d.Cols }

// Image returns the flat pixel slice of image i.
func (d *Dataset) Image(i int) []float32 {
	p := d.Pixels()
	return d.Images[i*p : (i+1)*p]
}

// Load reads the train and test splits from dir.
func Load(dir string) (train, test *Dataset, err error) {
	train, err = Open(filepath.Join(dir, TrainImagesFile), filepath.Join(dir, TrainLabelsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("load train split: %w", err)
	}
	test, err = Open(filepath.Join(dir, TestImagesFile), filepath.Join(dir, TestLabelsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("load test split: %w", err)
	}
	return train, test, nil
}

// Open reads one split from an images file and a labels file.
// Files ending in .gz are decompressed transparently.
func Open(imagesPath, labelsPath string) (*Dataset, error) {
	ir, closeImages, err := openMaybeGzip(imagesPath)
	if err != nil {
		return nil, err
	}
	defer closeImages()

	ds, err := readImages(ir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", imagesPath, err)
	}

	lr, closeLabels, err := openMaybeGzip(labelsPath)
	if err != nil {
		return nil, err
	}
	defer closeLabels()

	labels, err := readLabels(lr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", labelsPath, err)
	}
	if len(labels) != ds.N {
		return nil, fmt.Errorf("%w: %d labels for %d images", ErrInvalidFormat, len(labels), ds.N)
	}
	ds.Labels = labels
	return ds, nil
}

// Download fetches any missing dataset files into dir from baseURL
// (DefaultBaseURL when empty).
func Download(ctx context.Context, dir, baseURL string) error {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, name := range []string{TrainImagesFile, TrainLabelsFile, TestImagesFile, TestLabelsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := downloadFile(ctx, baseURL+name, path); err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}
	}
	return nil
}

func downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Fake builds a random dataset with the MNIST geometry, for tests and the
// -fake-data mode.
func Fake(rng *rand.Rand, n int) *Dataset {
	const rows, cols = 28, 28
	images := make([]float32, n*rows*cols)
	for i := range images {
		images[i] = rng.Float32()
	}
	labels := make([]uint8, n)
	for i := range labels {
		labels[i] = uint8(rng.Intn(10))
	}
	return &Dataset{Images: images, Labels: labels, N: n, Rows: rows, Cols: cols}
}

func openMaybeGzip(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, func() { f.Close() }, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return gz, func() {
		gz.Close()
		f.Close()
	}, nil
}

func readImages(r io.Reader) (*Dataset, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if header[0] != imageMagic {
		return nil, fmt.Errorf("%w: bad image magic 0x%08x", ErrInvalidFormat, header[0])
	}
	n, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if n < 0 || rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%dx%d", ErrInvalidFormat, n, rows, cols)
	}

	raw := make([]uint8, n*rows*cols)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: truncated image data: %v", ErrInvalidFormat, err)
	}

	images := make([]float32, len(raw))
	for i, b := range raw {
		images[i] = float32(b) / 255
	}
	return &Dataset{Images: images, N: n, Rows: rows, Cols: cols}, nil
}

func readLabels(r io.Reader) ([]uint8, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if header[0] != labelMagic {
		return nil, fmt.Errorf("%w: bad label magic 0x%08x", ErrInvalidFormat, header[0])
	}
	labels := make([]uint8, int(header[1]))
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("%w: truncated label data: %v", ErrInvalidFormat, err)
	}
	return labels, nil
}
