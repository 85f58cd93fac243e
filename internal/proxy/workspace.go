package proxy

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/manatee-project/manatee-jobs/constants"
)

// EnvVar is one extra environment variable handed to the job executor.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// skipWorkspaceEntry reports whether a file or directory stays out of the
// workspace archive.
func skipWorkspaceEntry(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "lost+found")
}

// packWorkspace writes dir as a gzipped tar to dst. Entries are stored under
// arcname, hidden files and directories are left out.
func packWorkspace(dst io.Writer, dir, arcname string) error {
	gw := gzip.NewWriter(dst)
	tw := tar.NewWriter(gw)

	err := filepath.Walk(dir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		if rel != "." && skipWorkspaceEntry(fi.Name()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !fi.Mode().IsRegular() && !fi.IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(arcname, rel))
		if fi.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// extraEnvs collects the MANATEE_EXTRA_ENV_ variables of environ with the
// prefix stripped, sorted by key.
func extraEnvs(environ []string) []EnvVar {
	envs := []EnvVar{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, constants.ExtraEnvPrefix) {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimPrefix(kv, constants.ExtraEnvPrefix), "=")
		if key == "" {
			continue
		}
		envs = append(envs, EnvVar{Key: key, Value: value})
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Key < envs[j].Key })
	return envs
}
