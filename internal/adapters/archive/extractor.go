// Package archive implements the Extractor port for compressed tarballs.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Extractor implements ports.Extractor for gzip, xz and zstd compressed tar archives.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archivePath into dstDir. The compression is detected from the
// archive's leading bytes. File modification times are restored so that
// generated autotools files stay newer than their inputs.
func (e *Extractor) Extract(ctx context.Context, archivePath, dstDir string) error {
	//nolint:gosec // archivePath is created by kiln inside its work directory
	f, err := os.Open(archivePath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open archive"), "path", archivePath)
	}
	defer func() {
		_ = f.Close()
	}()

	r, closeFn, err := decompress(bufio.NewReader(f))
	if err != nil {
		return zerr.With(err, "path", archivePath)
	}
	defer closeFn()

	if err := os.MkdirAll(dstDir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination"), "path", dstDir)
	}

	if err := untar(ctx, tar.NewReader(r), dstDir); err != nil {
		return zerr.With(err, "path", archivePath)
	}
	return nil
}

func decompress(br *bufio.Reader) (io.Reader, func(), error) {
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, zerr.Wrap(err, "failed to read archive header")
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to create gzip reader")
		}
		return gz, func() { _ = gz.Close() }, nil
	case bytes.HasPrefix(head, xzMagic):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to create xz reader")
		}
		return xzr, func() {}, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to create zstd reader")
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, domain.ErrUnsupportedArchive
	}
}

type dirTime struct {
	name string
	hdr  *tar.Header
}

// untar writes entries through an os.Root so that no path, including one
// reached through symlinks created by earlier entries, resolves outside dstDir.
func untar(ctx context.Context, tr *tar.Reader, dstDir string) error {
	root, err := os.OpenRoot(dstDir)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open destination"), "path", dstDir)
	}
	defer func() {
		_ = root.Close()
	}()

	var dirs []dirTime
	entries := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return zerr.Wrap(err, "failed to read tar entry")
		}
		entries++

		name, err := entryName(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, dirMode(hdr)); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "entry", hdr.Name)
			}
			dirs = append(dirs, dirTime{name: name, hdr: hdr})
		case tar.TypeReg:
			if err := writeFile(root, tr, name, hdr); err != nil {
				return zerr.With(err, "entry", hdr.Name)
			}
		case tar.TypeSymlink:
			if err := checkLink(name, hdr.Linkname); err != nil {
				return zerr.With(err, "entry", hdr.Name)
			}
			if err := root.MkdirAll(filepath.Dir(name), domain.DirPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "entry", hdr.Name)
			}
			if err := root.Symlink(hdr.Linkname, name); err != nil && !os.IsExist(err) {
				return zerr.With(zerr.Wrap(err, "failed to create symlink"), "entry", hdr.Name)
			}
		case tar.TypeLink:
			source, err := entryName(hdr.Linkname)
			if err != nil {
				return zerr.With(err, "entry", hdr.Name)
			}
			if err := root.MkdirAll(filepath.Dir(name), domain.DirPerm); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create directory"), "entry", hdr.Name)
			}
			if err := root.Link(source, name); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to create hard link"), "entry", hdr.Name)
			}
		default:
			// Devices, FIFOs and PAX metadata entries carry nothing a build needs.
		}
	}

	if entries == 0 {
		return domain.ErrEmptyArchive
	}

	// Directory times are restored last since writing children touches them.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = root.Chtimes(dirs[i].name, dirs[i].hdr.AccessTime, dirs[i].hdr.ModTime)
	}
	return nil
}

func writeFile(root *os.Root, r io.Reader, name string, hdr *tar.Header) error {
	if err := root.MkdirAll(filepath.Dir(name), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create directory")
	}

	out, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(hdr))
	if err != nil {
		return zerr.Wrap(err, "failed to create file")
	}
	//nolint:gosec // size is bounded by the tar header
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return zerr.Wrap(err, "failed to write file")
	}
	if err := out.Close(); err != nil {
		return zerr.Wrap(err, "failed to write file")
	}

	if err := root.Chtimes(name, hdr.AccessTime, hdr.ModTime); err != nil {
		return zerr.Wrap(err, "failed to restore file times")
	}
	return nil
}

// entryName cleans an entry name into a path relative to the destination and
// rejects names that leave it.
func entryName(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", zerr.With(domain.ErrUnsafeArchivePath, "entry", name)
	}
	rel := filepath.Clean(filepath.FromSlash(name))
	if escapes(rel) {
		return "", zerr.With(domain.ErrUnsafeArchivePath, "entry", name)
	}
	return rel, nil
}

// checkLink rejects symlinks whose target is absolute or climbs out of the
// destination. Chains of relative links are caught by the root on use.
func checkLink(name, linkname string) error {
	if filepath.IsAbs(linkname) {
		return zerr.With(domain.ErrUnsafeArchivePath, "link", linkname)
	}
	if escapes(filepath.Join(filepath.Dir(name), filepath.FromSlash(linkname))) {
		return zerr.With(domain.ErrUnsafeArchivePath, "link", linkname)
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func fileMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm() //nolint:gosec // tar modes fit in FileMode
	if mode == 0 {
		return domain.FilePerm
	}
	return mode | 0o200
}

func dirMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm() //nolint:gosec // tar modes fit in FileMode
	if mode == 0 {
		return domain.DirPerm
	}
	return mode | 0o700
}
