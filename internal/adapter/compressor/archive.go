package compressor

import (
	"archive/tar"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

// archiveWriter is the per-format strategy. header starts a new entry and
// returns the writer for its body (ignored for directories and symlinks).
type archiveWriter interface {
	header(e entry) (io.Writer, error)
	Close() error
}

func newArchiveWriter(w io.Writer, kind domain.CompressionKind, level int) (archiveWriter, error) {
	switch kind {
	case domain.KindZip:
		return newZipWriter(w, level), nil
	case domain.KindTar:
		return newTarWriter(w, nil), nil
	case domain.KindTarGz:
		gz, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return newTarWriter(gz, gz), nil
	case domain.KindTarLz4:
		lw := lz4.NewWriter(w)
		return newTarWriter(lw, lw), nil
	case domain.KindTarXz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return newTarWriter(xw, xw), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedCompression, kind)
	}
}

type zipWriter struct {
	zw *zip.Writer
}

func newZipWriter(w io.Writer, level int) *zipWriter {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return &zipWriter{zw: zw}
}

func (z *zipWriter) header(e entry) (io.Writer, error) {
	hdr, err := zip.FileInfoHeader(e.info)
	if err != nil {
		return nil, err
	}
	hdr.Name = e.rel

	switch {
	case e.info.IsDir():
		hdr.Method = zip.Store
		return z.zw.CreateHeader(hdr)
	case e.link != "":
		hdr.Method = zip.Store
		w, err := z.zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		_, err = io.WriteString(w, e.link)
		return w, err
	default:
		hdr.Method = zip.Deflate
		return z.zw.CreateHeader(hdr)
	}
}

func (z *zipWriter) Close() error {
	return z.zw.Close()
}

// tarWriter writes a tar stream, optionally through a compressor that is
// closed after the tar trailer.
type tarWriter struct {
	tw      *tar.Writer
	closers []io.Closer
}

func newTarWriter(w io.Writer, codec io.Closer) *tarWriter {
	t := &tarWriter{tw: tar.NewWriter(w)}
	if codec != nil {
		t.closers = append(t.closers, codec)
	}
	t.closers = append(t.closers, t.tw)
	return t
}

func (t *tarWriter) header(e entry) (io.Writer, error) {
	hdr, err := tar.FileInfoHeader(e.info, e.link)
	if err != nil {
		return nil, err
	}
	hdr.Name = e.rel
	if err := t.tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	return t.tw, nil
}

// Close closes the tar writer and then the codec, returning the first error.
func (t *tarWriter) Close() error {
	var firstErr error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
