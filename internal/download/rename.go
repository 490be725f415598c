package download

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	thumbSuffixRe = regexp.MustCompile(`^_[0-5]\.[A-Za-z0-9]+$`)
	sideSuffixRe  = regexp.MustCompile(`^\.(subtitle|caption)\.[^.]+\.[^.]+$`)
)

// renamePass rewrites every file of iid in dir to the "<name>-<iid><suffix>"
// form. Suffix classes are preserved; bare files are content-probed and
// either extension-tagged or transmuxed. Dotfiles (including resource-fork
// style "._" names) are never touched. Unknown content is an error rather
// than a silent rewrite.
func (c *Coordinator) renamePass(dir, iid, name string) (renamed bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || strings.HasPrefix(fname, ".") || !strings.Contains(fname, iid) {
			continue
		}
		idx := strings.Index(fname, iid)
		suffix := fname[idx+len(iid):]

		switch {
		case suffix == "":
			suffix, err = c.tagBareFile(filepath.Join(dir, fname))
			if err != nil {
				return renamed, err
			}
			fname += suffix // tagBareFile renamed on disk
		case suffix == ".json":
			// The extractor's metadata file without its full suffix.
			suffix = ".info.json"
		case suffix == ".info.json",
			thumbSuffixRe.MatchString(suffix),
			sideSuffixRe.MatchString(suffix):
			// known class, keep as is
		default:
			dot := strings.LastIndex(suffix, ".")
			if dot < 0 {
				return renamed, fmt.Errorf("unrecognized suffix on %s", fname)
			}
			suffix = suffix[dot:]
		}

		want := name + "-" + iid + suffix
		if fname == want {
			continue
		}
		if err := os.Rename(filepath.Join(dir, fname), filepath.Join(dir, want)); err != nil {
			return renamed, fmt.Errorf("rename %s: %w", fname, err)
		}
		c.logger.Debug().Str("from", fname).Str("to", want).Msg("renamed")
		renamed = true
	}
	return renamed, nil
}

// tagBareFile probes an extensionless file. MP4 payloads are transmuxed to
// the archive container and the original deleted; files already in the
// container just gain the extension. Returns the suffix added on disk.
func (c *Coordinator) tagBareFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	head := make([]byte, 12)
	n, _ := f.Read(head)
	f.Close()
	head = head[:n]

	switch {
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		if err := c.transmux(path, path+".mkv"); err != nil {
			return "", err
		}
		if err := os.Remove(path); err != nil {
			return "", err
		}
		return ".mkv", nil
	case len(head) >= 4 && bytes.Equal(head[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML magic: already the archive container.
		if err := os.Rename(path, path+".mkv"); err != nil {
			return "", err
		}
		return ".mkv", nil
	}
	return "", fmt.Errorf("cannot identify content of %s", path)
}

// transmux remuxes without re-encoding.
func (c *Coordinator) transmux(in, out string) error {
	cmd := exec.Command(c.cfg.FFmpegBin, "-y", "-i", in, "-c", "copy", out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("transmux %s: %s", in, strings.TrimSpace(stderr.String()))
	}
	return nil
}
